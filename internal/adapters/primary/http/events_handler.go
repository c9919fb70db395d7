package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lorrc/service-desk-notifier/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// PublishEventRequest is the body of POST /events.
type PublishEventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventsHandler accepts domain events from producers and hands them to the bus.
type EventsHandler struct {
	publisher    ports.EventPublisher
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(publisher ports.EventPublisher, errorHandler *ErrorHandler, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		publisher:    publisher,
		errorHandler: errorHandler,
		logger:       logger.With("component", "events_handler"),
	}
}

// RegisterRoutes registers the event routes on r.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandlePublish)
}

// HandlePublish decodes one event and publishes it. The response only
// acknowledges acceptance; delivery happens asynchronously.
func (h *EventsHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[PublishEventRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	v := validation.NewValidator().
		Required("type", req.Type).
		OneOf("type", req.Type, eventKindNames())
	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	event, err := domain.DecodeEvent(domain.EventKind(req.Type), req.Payload)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	id, err := h.publisher.Publish(r.Context(), event)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.DebugContext(r.Context(), "event accepted", "event_id", id, "kind", req.Type)
	WriteAccepted(w, id.String())
}

func eventKindNames() []string {
	kinds := domain.EventKinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return names
}
