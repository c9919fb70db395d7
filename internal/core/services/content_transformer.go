package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// DefaultTimezone is the zone email timestamps are rendered in.
const DefaultTimezone = "Europe/Berlin"

const displayLayout = "Jan 02, 2006, 03:04 PM"

// relativeImage matches an img tag whose src starts with "/". Group 1 is
// everything up to and including the opening quote, group 2 the rest of the tag.
var relativeImage = regexp.MustCompile(`(?i)(<img\s+[^>]*src=["'])(/[^"']*["'][^>]*>)`)

// ContentTransformer prepares ticket snapshots for email templates.
type ContentTransformer struct {
	loc *time.Location
}

var _ ports.ContentTransformer = (*ContentTransformer)(nil)

// NewContentTransformer creates a transformer formatting dates in loc. A nil
// loc means DefaultTimezone.
func NewContentTransformer(loc *time.Location) ports.ContentTransformer {
	if loc == nil {
		loc = mustLoadLocation(DefaultTimezone)
	}
	return &ContentTransformer{loc: loc}
}

// LoadLocation resolves a configured zone name, falling back to DefaultTimezone
// when name is empty.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func mustLoadLocation(name string) *time.Location {
	loc, err := LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Transform builds the rendering view of ticket. Relative image references
// become absolute under baseURL and timestamps become display strings. The
// snapshot itself is left untouched.
func (c *ContentTransformer) Transform(ticket domain.TicketSnapshot, referenceDate time.Time, baseURL string) domain.RenderedTicketView {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")

	view := domain.RenderedTicketView{
		ID:        ticket.ID,
		UID:       ticket.UID,
		Subject:   ticket.Subject,
		Issue:     rewriteImages(ticket.Issue, base),
		Type:      ticket.TypeName,
		Priority:  ticket.PriorityName,
		Status:    ticket.Status,
		Date:      c.FormatDate(ticket.CreatedAt),
		EventDate: c.FormatDate(referenceDate),
		Comments:  c.renderEntries(ticket.Comments, base),
		Notes:     c.renderEntries(ticket.Notes, base),
	}
	if ticket.UpdatedAt != nil {
		view.Updated = c.FormatDate(*ticket.UpdatedAt)
	}
	return view
}

// RenderEntry renders a single comment or note.
func (c *ContentTransformer) RenderEntry(e domain.Entry, baseURL string) domain.RenderedEntry {
	return c.renderEntry(e, strings.TrimRight(strings.TrimSpace(baseURL), "/"))
}

// FormatDate renders t as e.g. "Mar 01, 2024, 11:00 AM GMT+1". The zero time
// renders as "".
func (c *ContentTransformer) FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.In(c.loc)
	return local.Format(displayLayout) + " " + gmtOffset(local)
}

func (c *ContentTransformer) renderEntries(entries []domain.Entry, base string) []domain.RenderedEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]domain.RenderedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, c.renderEntry(e, base))
	}
	return out
}

func (c *ContentTransformer) renderEntry(e domain.Entry, base string) domain.RenderedEntry {
	owner := e.OwnerName
	if owner == "" {
		owner = e.OwnerID
	}
	return domain.RenderedEntry{
		Owner: owner,
		Body:  rewriteImages(e.Body, base),
		Date:  c.FormatDate(e.CreatedAt),
	}
}

func rewriteImages(body, base string) string {
	if body == "" || base == "" {
		return body
	}
	return relativeImage.ReplaceAllString(body, "${1}"+strings.ReplaceAll(base, "$", "$$")+"${2}")
}

// gmtOffset formats the zone offset of t the way browsers print short zone
// names for zones without an abbreviation: GMT, GMT+1, GMT-3:30.
func gmtOffset(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return "GMT"
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	if minutes == 0 {
		return fmt.Sprintf("GMT%s%d", sign, hours)
	}
	return fmt.Sprintf("GMT%s%d:%02d", sign, hours, minutes)
}
