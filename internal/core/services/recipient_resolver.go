package services

import (
	"strings"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// DefaultFallbackEmail is added to every recipient set when no support
// address is configured.
const DefaultFallbackEmail = "support@localhost"

// RecipientResolver filters ticket subscribers down to the people who should
// hear about an event.
type RecipientResolver struct {
	fallback string
}

var _ ports.RecipientResolver = (*RecipientResolver)(nil)

// NewRecipientResolver creates a resolver that always adds fallback. An empty
// fallback means DefaultFallbackEmail.
func NewRecipientResolver(fallback string) ports.RecipientResolver {
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = DefaultFallbackEmail
	}
	return &RecipientResolver{fallback: fallback}
}

// Resolve returns the subscriber emails minus the actor and deleted accounts,
// deduplicated, plus the fallback address.
func (r *RecipientResolver) Resolve(ticket domain.TicketSnapshot, actorID string) domain.RecipientSet {
	emails := make([]string, 0, len(ticket.Subscribers)+1)
	for _, sub := range ticket.Subscribers {
		if !notifiable(sub, actorID) || strings.TrimSpace(sub.Email) == "" {
			continue
		}
		emails = append(emails, sub.Email)
	}
	set := domain.NewRecipientSet(emails...)
	set.Add(r.fallback)
	return set
}

// AccountIDs applies the same filter as Resolve but returns account IDs. The
// fallback address has no account and is not included.
func (r *RecipientResolver) AccountIDs(ticket domain.TicketSnapshot, actorID string) []string {
	seen := make(map[string]struct{}, len(ticket.Subscribers))
	ids := make([]string, 0, len(ticket.Subscribers))
	for _, sub := range ticket.Subscribers {
		if !notifiable(sub, actorID) || sub.ID == "" {
			continue
		}
		if _, ok := seen[sub.ID]; ok {
			continue
		}
		seen[sub.ID] = struct{}{}
		ids = append(ids, sub.ID)
	}
	return ids
}

func notifiable(sub domain.Subscriber, actorID string) bool {
	if sub.Deleted {
		return false
	}
	return actorID == "" || sub.ID != actorID
}
