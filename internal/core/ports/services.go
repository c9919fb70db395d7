package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
)

// EventHandler consumes one envelope. Returned errors are logged by the bus.
type EventHandler func(ctx context.Context, env domain.Envelope) error

// EventPublisher is the producer side of the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) (uuid.UUID, error)
}

// EventBus routes published events to the handlers registered for their kind.
type EventBus interface {
	EventPublisher
	Subscribe(kind domain.EventKind, name string, handler EventHandler) error
}

// Broadcaster pushes a named message to every connected realtime client.
type Broadcaster interface {
	Broadcast(channel string, payload any) error
}

// Mailer delivers a rendered message to its recipients.
type Mailer interface {
	Send(ctx context.Context, msg domain.RenderedMessage) error
}

// PushForwarder relays a summary to the third-party push service.
type PushForwarder interface {
	Forward(ctx context.Context, creds domain.PushCredentials, summary domain.PushSummary) error
	// Configured reports whether an endpoint is set. Unconfigured forwarders are skipped.
	Configured() bool
}

// TemplateRenderer renders a named email template.
type TemplateRenderer interface {
	Render(ctx context.Context, name string, data domain.TemplateData) (string, error)
}

// SettingsResolver produces the feature flags for one dispatch.
type SettingsResolver interface {
	Resolve(ctx context.Context, kind domain.EventKind) (domain.FeatureSettings, error)
}

// RecipientResolver computes who gets an email for a ticket event.
type RecipientResolver interface {
	Resolve(ticket domain.TicketSnapshot, actorID string) domain.RecipientSet
	AccountIDs(ticket domain.TicketSnapshot, actorID string) []string
}

// ContentTransformer turns a snapshot into its rendering-ready view.
type ContentTransformer interface {
	Transform(ticket domain.TicketSnapshot, referenceDate time.Time, baseURL string) domain.RenderedTicketView
	RenderEntry(entry domain.Entry, baseURL string) domain.RenderedEntry
}

// PermissionCache answers role permission checks from memory.
type PermissionCache interface {
	Rebuild(ctx context.Context) error
	Can(role, permission string) bool
}

// CreatedTicketNotifier handles newly created tickets. It is an external
// collaborator; the dispatcher only forwards the event to it.
type CreatedTicketNotifier interface {
	TicketCreated(ctx context.Context, ticket domain.TicketSnapshot) error
}
