package domain

import (
	"time"
)

// Subscriber is an account subscribed to a ticket's updates.
type Subscriber struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// Entry is a comment or an internal note on a ticket.
type Entry struct {
	ID        string    `json:"id,omitempty"`
	OwnerID   string    `json:"owner"`
	OwnerName string    `json:"ownerName,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"date"`
}

// TicketSnapshot is a read-only projection of a ticket at event time.
// Producers hand ownership to the bus; consumers must not mutate it and use
// Clone when they need a modified copy.
type TicketSnapshot struct {
	ID           string       `json:"id"`
	UID          int64        `json:"uid"`
	Subject      string       `json:"subject"`
	Issue        string       `json:"issue"`
	TypeName     string       `json:"type"`
	PriorityName string       `json:"priority"`
	Status       string       `json:"status"`
	CreatedAt    time.Time    `json:"date"`
	UpdatedAt    *time.Time   `json:"updated,omitempty"`
	Subscribers  []Subscriber `json:"subscribers"`
	Comments     []Entry      `json:"comments"`
	Notes        []Entry      `json:"notes"`
}

// Clone returns a deep copy of the snapshot.
func (t TicketSnapshot) Clone() TicketSnapshot {
	clone := t
	if t.UpdatedAt != nil {
		updated := *t.UpdatedAt
		clone.UpdatedAt = &updated
	}
	if t.Subscribers != nil {
		clone.Subscribers = append([]Subscriber(nil), t.Subscribers...)
	}
	if t.Comments != nil {
		clone.Comments = append([]Entry(nil), t.Comments...)
	}
	if t.Notes != nil {
		clone.Notes = append([]Entry(nil), t.Notes...)
	}
	return clone
}

// OwnerIDs returns the distinct owners of every comment and note, in order of
// first appearance.
func (t TicketSnapshot) OwnerIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, list := range [][]Entry{t.Comments, t.Notes} {
		for _, e := range list {
			if e.OwnerID == "" {
				continue
			}
			if _, ok := seen[e.OwnerID]; ok {
				continue
			}
			seen[e.OwnerID] = struct{}{}
			ids = append(ids, e.OwnerID)
		}
	}
	return ids
}

// Account is the directory record of a user, used to populate entry owners.
type Account struct {
	ID       string
	FullName string
	Email    string
	Deleted  bool
}
