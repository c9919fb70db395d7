package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
)

// DecodeEvent builds the event variant for kind from its JSON payload and
// validates the fields each kind depends on.
func DecodeEvent(kind EventKind, payload json.RawMessage) (Event, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEventKind, kind)
	}

	switch kind {
	case EventTicketCreated:
		var ev TicketCreated
		if err := decodeStrict(payload, &ev); err != nil {
			return nil, err
		}
		if err := requireTicket(ev.Ticket); err != nil {
			return nil, err
		}
		return ev, nil
	case EventTicketUpdated:
		var ev TicketUpdated
		if err := decodeStrict(payload, &ev); err != nil {
			return nil, err
		}
		if err := requireTicket(ev.Ticket); err != nil {
			return nil, err
		}
		return ev, nil
	case EventTicketDeleted:
		var ev TicketDeleted
		if err := decodeStrict(payload, &ev); err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.TicketID) == "" {
			return nil, apperrors.ErrTicketIDRequired
		}
		return ev, nil
	case EventSubscriberUpdated:
		var ev SubscriberUpdated
		if err := decodeStrict(payload, &ev); err != nil {
			return nil, err
		}
		errs := apperrors.NewValidationErrors()
		if strings.TrimSpace(ev.TicketID) == "" {
			errs.Add("ticketId", "Ticket ID is required")
		}
		if strings.TrimSpace(ev.AccountID) == "" {
			errs.Add("accountId", "Account ID is required")
		}
		if errs.HasErrors() {
			return nil, errs
		}
		return ev, nil
	case EventCommentAdded:
		var ev CommentAdded
		if err := decodeStrict(payload, &ev); err != nil {
			return nil, err
		}
		if err := validateEntryEvent(ev.Ticket, ev.Comment, "comment"); err != nil {
			return nil, err
		}
		return ev, nil
	case EventNoteAdded:
		var ev NoteAdded
		if err := decodeStrict(payload, &ev); err != nil {
			return nil, err
		}
		if err := validateEntryEvent(ev.Ticket, ev.Note, "note"); err != nil {
			return nil, err
		}
		return ev, nil
	case EventProfileImageUpdated:
		var ev ProfileImageUpdated
		if err := decodeStrict(payload, &ev); err != nil {
			return nil, err
		}
		if strings.TrimSpace(ev.AccountID) == "" {
			return nil, apperrors.ErrAccountIDRequired
		}
		return ev, nil
	case EventRolesFlushed:
		return RolesFlushed{}, nil
	}

	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEventKind, kind)
}

func decodeStrict(payload json.RawMessage, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: payload is empty", apperrors.ErrInvalidEventPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidEventPayload, err)
	}
	return nil
}

func requireTicket(t TicketSnapshot) error {
	if strings.TrimSpace(t.ID) == "" {
		return apperrors.ErrTicketIDRequired
	}
	return nil
}

func validateEntryEvent(t TicketSnapshot, e Entry, field string) error {
	errs := apperrors.NewValidationErrors()
	if strings.TrimSpace(t.ID) == "" {
		errs.Add("ticket.id", "Ticket ID is required")
	}
	if strings.TrimSpace(e.OwnerID) == "" {
		errs.Add(field+".owner", "Owner is required")
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
