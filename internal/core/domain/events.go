package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a domain event topic. The set is closed: producers
// cannot invent new kinds, and handlers can only be registered for these.
type EventKind string

const (
	EventTicketCreated       EventKind = "ticket:created"
	EventTicketUpdated       EventKind = "ticket:updated"
	EventTicketDeleted       EventKind = "ticket:deleted"
	EventSubscriberUpdated   EventKind = "ticket:subscriber:update"
	EventCommentAdded        EventKind = "ticket:comment:added"
	EventNoteAdded           EventKind = "ticket:note:added"
	EventProfileImageUpdated EventKind = "profile:image:update"
	EventRolesFlushed        EventKind = "roles:flush"
)

// EventKinds returns every known event kind.
func EventKinds() []EventKind {
	return []EventKind{
		EventTicketCreated,
		EventTicketUpdated,
		EventTicketDeleted,
		EventSubscriberUpdated,
		EventCommentAdded,
		EventNoteAdded,
		EventProfileImageUpdated,
		EventRolesFlushed,
	}
}

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// HasRecipients reports whether events of this kind produce recipient-facing content.
func (k EventKind) HasRecipients() bool {
	return k == EventCommentAdded || k == EventNoteAdded
}

func (k EventKind) String() string {
	return string(k)
}

// Event is an immutable record of something that happened to a ticket or
// account. Only the variants in this package implement it.
type Event interface {
	Kind() EventKind
	isEvent()
}

// Envelope is what the bus hands to subscribers.
type Envelope struct {
	ID          uuid.UUID
	PublishedAt time.Time
	Event       Event
}

// Kind is a shortcut for e.Event.Kind().
func (e Envelope) Kind() EventKind {
	if e.Event == nil {
		return ""
	}
	return e.Event.Kind()
}

// TicketCreated is published after a ticket has been persisted.
type TicketCreated struct {
	Ticket TicketSnapshot `json:"ticket"`
}

// TicketUpdated is published after any ticket field changed.
type TicketUpdated struct {
	Ticket TicketSnapshot `json:"ticket"`
}

// TicketDeleted carries only the identifier of the removed ticket.
type TicketDeleted struct {
	TicketID string `json:"ticketId"`
}

// SubscriberUpdated is the delta when an account (un)subscribes from a ticket.
type SubscriberUpdated struct {
	TicketID   string `json:"ticketId"`
	AccountID  string `json:"accountId"`
	Subscribed bool   `json:"subscribed"`
}

// CommentAdded is published after a public comment was appended to a ticket.
type CommentAdded struct {
	Ticket   TicketSnapshot `json:"ticket"`
	Comment  Entry          `json:"comment"`
	Hostname string         `json:"hostname,omitempty"`
}

// NoteAdded is published after an internal note was appended to a ticket.
type NoteAdded struct {
	Ticket   TicketSnapshot `json:"ticket"`
	Note     Entry          `json:"note"`
	Hostname string         `json:"hostname,omitempty"`
}

// ProfileImageUpdated is published when an account uploads a new avatar.
type ProfileImageUpdated struct {
	AccountID string `json:"accountId"`
	Image     string `json:"image"`
}

// RolesFlushed asks every node to rebuild its permission cache.
type RolesFlushed struct{}

func (TicketCreated) Kind() EventKind       { return EventTicketCreated }
func (TicketUpdated) Kind() EventKind       { return EventTicketUpdated }
func (TicketDeleted) Kind() EventKind       { return EventTicketDeleted }
func (SubscriberUpdated) Kind() EventKind   { return EventSubscriberUpdated }
func (CommentAdded) Kind() EventKind        { return EventCommentAdded }
func (NoteAdded) Kind() EventKind           { return EventNoteAdded }
func (ProfileImageUpdated) Kind() EventKind { return EventProfileImageUpdated }
func (RolesFlushed) Kind() EventKind        { return EventRolesFlushed }

func (TicketCreated) isEvent()       {}
func (TicketUpdated) isEvent()       {}
func (TicketDeleted) isEvent()       {}
func (SubscriberUpdated) isEvent()   {}
func (CommentAdded) isEvent()        {}
func (NoteAdded) isEvent()           {}
func (ProfileImageUpdated) isEvent() {}
func (RolesFlushed) isEvent()        {}

// ActorID returns the account that caused a recipient-facing event, or ""
// for kinds that have no actor.
func ActorID(e Event) string {
	switch ev := e.(type) {
	case CommentAdded:
		return ev.Comment.OwnerID
	case NoteAdded:
		return ev.Note.OwnerID
	case ProfileImageUpdated:
		return ev.AccountID
	case SubscriberUpdated:
		return ev.AccountID
	default:
		return ""
	}
}
