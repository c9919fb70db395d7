package domain

import "fmt"

// Realtime channel names the web client listens on.
const (
	ChannelTicketCreated      = "$trudesk:client:ticket:created"
	ChannelTicketUpdated      = "$trudesk:client:ticket:updated"
	ChannelTicketDeleted      = "$trudesk:client:ticket:deleted"
	ChannelSubscriberUpdate   = "ticket:subscriber:update"
	ChannelTicketsUpdate      = "$trudesk:tickets:update"
	ChannelNotesUpdate        = "updateNotes"
	ChannelProfileImageUpdate = "trudesk:profileImageUpdate"
	ChannelRolesFlush         = "$trudesk:roles:flush"
)

// Subject builds the email subject line for an update to ticket.
func Subject(ticket TicketSnapshot) string {
	return fmt.Sprintf("Ticket #%d Updated - %s - %s %s",
		ticket.UID, ticket.Subject, ticket.PriorityName, ticket.TypeName)
}
