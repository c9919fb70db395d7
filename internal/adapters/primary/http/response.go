package http

import (
	"encoding/json"
	"net/http"
)

// AcceptedResponse acknowledges an event handed to the bus.
type AcceptedResponse struct {
	ID string `json:"id"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The header has already been sent, so an encode error cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteAccepted writes a 202 with the published event ID.
func WriteAccepted(w http.ResponseWriter, id string) {
	WriteJSON(w, http.StatusAccepted, AcceptedResponse{ID: id})
}
