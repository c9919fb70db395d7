package domain

// Email template names understood by the renderer.
const (
	TemplateCommentAdded = "ticket-comment-added"
	TemplateNoteAdded    = "ticket-note-added"
)

// RenderedEntry is a comment or note ready for a template.
type RenderedEntry struct {
	Owner string
	Body  string
	Date  string
}

// RenderedTicketView is the rendering-ready copy of a ticket: relative image
// references are absolute and every timestamp is a formatted string.
type RenderedTicketView struct {
	ID        string
	UID       int64
	Subject   string
	Issue     string
	Type      string
	Priority  string
	Status    string
	Date      string
	Updated   string
	EventDate string
	Comments  []RenderedEntry
	Notes     []RenderedEntry
}

// TemplateData is the data bag handed to the template renderer. Exactly one
// of Comment and Note is set.
type TemplateData struct {
	Ticket  RenderedTicketView
	Comment *RenderedEntry
	Note    *RenderedEntry
}

// RenderedMessage is consumed exactly once by the email channel.
type RenderedMessage struct {
	Template   string
	Subject    string
	HTML       string
	Recipients RecipientSet
}

// PushSummary is what gets forwarded to the third-party push service.
type PushSummary struct {
	Kind       EventKind `json:"type"`
	TicketID   string    `json:"ticketId"`
	TicketUID  int64     `json:"ticketUid"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Hostname   string    `json:"hostname,omitempty"`
	AccountIDs []string  `json:"users"`
}
