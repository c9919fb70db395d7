package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// DefaultBufferSize is the number of frames the hub queues before Broadcast
// starts rejecting.
const DefaultBufferSize = 256

// Frame is the envelope written to every websocket client.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub maintains the set of active Clients and broadcasts frames to all of them.
type Hub struct {
	// clients maps token subjects to their active connections.
	// A single subject can have multiple connections (multiple tabs/devices).
	clients map[string]map[*Client]bool

	// Broadcast channel for frames
	broadcast chan Frame

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// mu protects the clients map
	mu sync.RWMutex

	logger *slog.Logger
}

var _ ports.Broadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub with a frame buffer of bufferSize.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan Frame, bufferSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast encodes payload and queues it for every connected client under
// channel. It never blocks: a full buffer drops the frame and returns an error.
func (h *Hub) Broadcast(channel string, payload any) error {
	frame := Frame{Event: channel}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", channel, err)
		}
		frame.Data = data
	}

	select {
	case h.broadcast <- frame:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping frame", "channel", channel)
		return fmt.Errorf("%w: websocket hub buffer full", apperrors.ErrDeliveryFailed)
	}
}

// Run starts the hub's event loop until ctx is done, then disconnects every
// client. This MUST be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case frame := <-h.broadcast:
			h.broadcastFrame(frame)

		case <-ctx.Done():
			h.shutdown()
			close(h.done)
			return
		}
	}
}

// Connect hands client to the running hub. It reports false once the hub has
// stopped.
func (h *Hub) Connect(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// disconnect removes client unless the hub has already stopped.
func (h *Hub) disconnect(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.Subject] == nil {
		h.clients[client.Subject] = make(map[*Client]bool)
	}
	h.clients[client.Subject][client] = true

	h.logger.Info("client registered",
		"subject", client.Subject,
		"total_connections", len(h.clients[client.Subject]),
	)
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subjectClients, ok := h.clients[client.Subject]; ok {
		if _, exists := subjectClients[client]; exists {
			delete(subjectClients, client)
			if len(subjectClients) == 0 {
				delete(h.clients, client.Subject)
			}
		}
	}

	client.CloseSend()

	h.logger.Info("client unregistered", "subject", client.Subject)
}

// broadcastFrame sends a frame to every connected client
func (h *Hub) broadcastFrame(frame Frame) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, subjectClients := range h.clients {
		for client := range subjectClients {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting frame",
		"channel", frame.Event,
		"client_count", len(clients),
	)

	for _, client := range clients {
		select {
		case client.Send <- frame:
		default:
			// Client's send buffer is full, drop them
			h.logger.Warn("client send buffer full, unregistering", "subject", client.Subject)
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subject, subjectClients := range h.clients {
		for client := range subjectClients {
			client.CloseSend()
		}
		delete(h.clients, subject)
	}
	h.logger.Info("websocket hub stopped")
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subjectClients := range h.clients {
		count += len(subjectClients)
	}
	return count
}

// IsSubjectConnected checks if a token subject has any active connections
func (h *Hub) IsSubjectConnected(subject string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[subject]
	return ok && len(clients) > 0
}

// CreatedTicketBroadcaster is the default handler for newly created tickets:
// it announces them to realtime clients.
type CreatedTicketBroadcaster struct {
	hub ports.Broadcaster
}

var _ ports.CreatedTicketNotifier = (*CreatedTicketBroadcaster)(nil)

// NewCreatedTicketBroadcaster creates a notifier broadcasting through hub.
func NewCreatedTicketBroadcaster(hub ports.Broadcaster) *CreatedTicketBroadcaster {
	return &CreatedTicketBroadcaster{hub: hub}
}

func (b *CreatedTicketBroadcaster) TicketCreated(_ context.Context, ticket domain.TicketSnapshot) error {
	return b.hub.Broadcast(domain.ChannelTicketCreated, domain.TicketCreated{Ticket: ticket})
}
