package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChannelTimeout bounds a single delivery channel call.
	DefaultChannelTimeout = 30 * time.Second
	// DefaultBaseURL prefixes relative image references when none is configured.
	DefaultBaseURL = "http://localhost:8118"
)

// DispatcherDeps are the collaborators of the dispatcher. Mailer, Push,
// Accounts, Permissions and Created are optional; a nil value skips that work.
type DispatcherDeps struct {
	Broadcaster ports.Broadcaster
	Mailer      ports.Mailer
	Push        ports.PushForwarder
	Renderer    ports.TemplateRenderer
	Settings    ports.SettingsResolver
	Recipients  ports.RecipientResolver
	Transformer ports.ContentTransformer
	Accounts    ports.AccountDirectory
	Permissions ports.PermissionCache
	Created     ports.CreatedTicketNotifier
}

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	BaseURL        string
	ChannelTimeout time.Duration
}

// Dispatcher turns domain events into realtime broadcasts, emails and push
// notifications. It is a best-effort sink: failures are logged and counted,
// never returned to the publisher.
type Dispatcher struct {
	deps   DispatcherDeps
	cfg    DispatcherConfig
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. Zero config values take the defaults.
func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = DefaultChannelTimeout
	}
	return &Dispatcher{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "dispatcher"),
	}
}

// Register subscribes the dispatcher to every event kind on bus.
func (d *Dispatcher) Register(bus ports.EventBus) error {
	for _, kind := range domain.EventKinds() {
		if err := bus.Subscribe(kind, "dispatcher", d.handle); err != nil {
			return fmt.Errorf("subscribe dispatcher to %s: %w", kind, err)
		}
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, env domain.Envelope) error {
	d.Dispatch(ctx, env)
	return nil
}

// Dispatch routes one envelope to its channels and waits for all of them.
func (d *Dispatcher) Dispatch(ctx context.Context, env domain.Envelope) {
	kind := env.Kind()
	logger := logging.LoggerFromContext(ctx, d.logger)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanics.WithLabelValues(kind.String()).Inc()
			logging.LogPanic(logger, r)
		}
		metrics.ObserveDispatch(kind.String(), start)
	}()

	switch ev := env.Event.(type) {
	case domain.TicketCreated:
		d.notifyCreated(ctx, ev)
	case domain.TicketUpdated:
		d.broadcast(ctx, domain.ChannelTicketUpdated, ev)
	case domain.TicketDeleted:
		d.broadcast(ctx, domain.ChannelTicketDeleted, ev.TicketID)
	case domain.SubscriberUpdated:
		d.broadcast(ctx, domain.ChannelSubscriberUpdate, ev)
	case domain.CommentAdded:
		d.fanOut(ctx, env, entryJob{
			ticket:   ev.Ticket,
			entry:    ev.Comment,
			actor:    domain.ActorID(ev),
			hostname: ev.Hostname,
			channel:  domain.ChannelTicketsUpdate,
			template: domain.TemplateCommentAdded,
		})
	case domain.NoteAdded:
		d.fanOut(ctx, env, entryJob{
			ticket:   ev.Ticket,
			entry:    ev.Note,
			actor:    domain.ActorID(ev),
			hostname: ev.Hostname,
			channel:  domain.ChannelNotesUpdate,
			template: domain.TemplateNoteAdded,
			note:     true,
		})
	case domain.ProfileImageUpdated:
		d.broadcast(ctx, domain.ChannelProfileImageUpdate, ev)
	case domain.RolesFlushed:
		d.flushRoles(ctx)
	default:
		logger.Warn("no route for event", "event_kind", kind)
	}
}

// entryJob describes a comment or note dispatch.
type entryJob struct {
	ticket   domain.TicketSnapshot
	entry    domain.Entry
	actor    string
	hostname string
	channel  string
	template string
	note     bool
}

// fanOut runs the realtime, email and push paths concurrently. Settings are
// resolved once and shared by the email and push tasks. No task cancels
// another.
func (d *Dispatcher) fanOut(ctx context.Context, env domain.Envelope, job entryJob) {
	var (
		g        errgroup.Group
		settings domain.FeatureSettings
		resolved = make(chan struct{})
	)

	g.Go(d.task(ctx, "broadcast", func() {
		d.broadcast(ctx, job.channel, job.ticket)
	}))

	g.Go(d.task(ctx, "settings", func() {
		defer close(resolved)
		settings = d.resolveSettings(ctx, env.Kind())
	}))

	g.Go(d.task(ctx, "email", func() {
		<-resolved
		d.sendEmail(ctx, env, job, settings)
	}))

	g.Go(d.task(ctx, "push", func() {
		<-resolved
		d.forwardPush(ctx, env, job, settings)
	}))

	_ = g.Wait()
}

// task adapts fn to errgroup and contains panics so one path cannot take the
// process down.
func (d *Dispatcher) task(ctx context.Context, name string, fn func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				logging.LogPanic(logging.LoggerFromContext(ctx, d.logger).With("task", name), r)
			}
		}()
		fn()
		return nil
	}
}

func (d *Dispatcher) resolveSettings(ctx context.Context, kind domain.EventKind) domain.FeatureSettings {
	if d.deps.Settings == nil {
		return domain.FeatureSettings{}
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
	defer cancel()

	fs, err := d.deps.Settings.Resolve(cctx, kind)
	if err != nil {
		metrics.RecordDelivery(metrics.ChannelSettings, metrics.OutcomeFailed)
		logging.LoggerFromContext(ctx, d.logger).Warn("settings unavailable, channels disabled", "error", err)
	}
	return fs
}

func (d *Dispatcher) broadcast(ctx context.Context, channel string, payload any) {
	if d.deps.Broadcaster == nil {
		return
	}
	err := d.call(ctx, metrics.ChannelRealtime, func(context.Context) error {
		return d.deps.Broadcaster.Broadcast(channel, payload)
	})
	if err != nil {
		logging.LoggerFromContext(ctx, d.logger).Warn("realtime broadcast failed", "channel", channel, "error", err)
	}
}

func (d *Dispatcher) notifyCreated(ctx context.Context, ev domain.TicketCreated) {
	logger := logging.LoggerFromContext(ctx, d.logger)
	if d.deps.Created == nil {
		logger.Debug("no created-ticket notifier configured")
		return
	}
	err := d.call(ctx, metrics.ChannelDelegate, func(ctx context.Context) error {
		return d.deps.Created.TicketCreated(ctx, ev.Ticket)
	})
	if err != nil {
		logger.Warn("created-ticket notifier failed", "ticket_id", ev.Ticket.ID, "error", err)
	}
}

func (d *Dispatcher) flushRoles(ctx context.Context) {
	if d.deps.Permissions != nil {
		cctx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
		err := d.deps.Permissions.Rebuild(cctx)
		cancel()
		if err != nil {
			logging.LoggerFromContext(ctx, d.logger).Warn("permission cache rebuild failed", "error", err)
		}
	}
	d.broadcast(ctx, domain.ChannelRolesFlush, nil)
}

func (d *Dispatcher) sendEmail(ctx context.Context, env domain.Envelope, job entryJob, fs domain.FeatureSettings) {
	logger := logging.LoggerFromContext(ctx, d.logger).With("channel", metrics.ChannelEmail)

	if d.deps.Mailer == nil || !fs.MailerEnabled {
		metrics.RecordDelivery(metrics.ChannelEmail, metrics.OutcomeSkipped)
		logger.Debug("email skipped", "reason", "mailer disabled")
		return
	}

	recipients := d.deps.Recipients.Resolve(job.ticket, job.actor)
	if recipients.IsEmpty() {
		metrics.RecordDelivery(metrics.ChannelEmail, metrics.OutcomeSkipped)
		logger.Debug("email skipped", "reason", "no recipients")
		return
	}

	ticket, entry, err := d.populateOwners(ctx, job.ticket, job.entry)
	if err != nil {
		metrics.RecordDelivery(metrics.ChannelEmail, metrics.OutcomeFailed)
		logger.Warn("email aborted", "error", err)
		return
	}

	rendered := d.deps.Transformer.RenderEntry(entry, d.cfg.BaseURL)
	data := domain.TemplateData{
		Ticket: d.deps.Transformer.Transform(ticket, env.PublishedAt, d.cfg.BaseURL),
	}
	if job.note {
		data.Note = &rendered
	} else {
		data.Comment = &rendered
	}

	html, err := d.deps.Renderer.Render(ctx, job.template, data)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRenderFailed) {
			err = fmt.Errorf("%w: %w", apperrors.ErrRenderFailed, err)
		}
		metrics.RecordDelivery(metrics.ChannelEmail, metrics.OutcomeFailed)
		logger.Warn("email aborted", "template", job.template, "error", err)
		return
	}

	msg := domain.RenderedMessage{
		Template:   job.template,
		Subject:    domain.Subject(ticket),
		HTML:       html,
		Recipients: recipients,
	}
	err = d.call(ctx, metrics.ChannelEmail, func(ctx context.Context) error {
		return d.deps.Mailer.Send(ctx, msg)
	})
	if err != nil {
		logger.Warn("email delivery failed", "recipients", recipients.Len(), "error", err)
		return
	}
	logger.Debug("email sent", "recipients", recipients.Len(), "to", recipients.String())
}

// populateOwners fills in owner names on a copy of ticket and on entry from
// the account directory.
func (d *Dispatcher) populateOwners(ctx context.Context, ticket domain.TicketSnapshot, entry domain.Entry) (domain.TicketSnapshot, domain.Entry, error) {
	ticket = ticket.Clone()
	if d.deps.Accounts == nil {
		return ticket, entry, nil
	}

	ids := ticket.OwnerIDs()
	if entry.OwnerID != "" && !slices.Contains(ids, entry.OwnerID) {
		ids = append(ids, entry.OwnerID)
	}
	if len(ids) == 0 {
		return ticket, entry, nil
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
	defer cancel()

	accounts, err := d.deps.Accounts.ListByIDs(cctx, ids)
	if err != nil {
		return ticket, entry, fmt.Errorf("%w: %w", apperrors.ErrRecipientEnrichmentFailed, err)
	}

	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.FullName
	}
	fill := func(e *domain.Entry) {
		if e.OwnerName != "" {
			return
		}
		if name, ok := names[e.OwnerID]; ok {
			e.OwnerName = name
		}
	}
	for i := range ticket.Comments {
		fill(&ticket.Comments[i])
	}
	for i := range ticket.Notes {
		fill(&ticket.Notes[i])
	}
	fill(&entry)

	return ticket, entry, nil
}

func (d *Dispatcher) forwardPush(ctx context.Context, env domain.Envelope, job entryJob, fs domain.FeatureSettings) {
	logger := logging.LoggerFromContext(ctx, d.logger).With("channel", metrics.ChannelPush)

	if !fs.PushEnabled() {
		metrics.RecordDelivery(metrics.ChannelPush, metrics.OutcomeSkipped)
		return
	}
	if d.deps.Push == nil || !d.deps.Push.Configured() {
		metrics.RecordDelivery(metrics.ChannelPush, metrics.OutcomeSkipped)
		logger.Debug("push skipped", "error", apperrors.ErrChannelNotConfigured)
		return
	}

	summary := domain.PushSummary{
		Kind:       env.Kind(),
		TicketID:   job.ticket.ID,
		TicketUID:  job.ticket.UID,
		Title:      fmt.Sprintf("Ticket #%d Updated", job.ticket.UID),
		Content:    job.entry.Body,
		Hostname:   job.hostname,
		AccountIDs: d.deps.Recipients.AccountIDs(job.ticket, job.actor),
	}
	creds := *fs.Push

	err := d.call(ctx, metrics.ChannelPush, func(ctx context.Context) error {
		return d.deps.Push.Forward(ctx, creds, summary)
	})
	if err != nil {
		logger.Warn("push forward failed", "error", err)
		return
	}
	logger.Debug("push forwarded", "users", len(summary.AccountIDs))
}

// call runs one channel operation under the channel timeout and records its
// outcome. A call that ignores its context is abandoned once the timeout fires.
func (d *Dispatcher) call(ctx context.Context, channel string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.LogPanic(logging.LoggerFromContext(ctx, d.logger).With("channel", channel), r)
				done <- fmt.Errorf("%w: %v", apperrors.ErrHandlerPanic, r)
			}
		}()
		done <- fn(cctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = fmt.Errorf("%s channel: %w", channel, cctx.Err())
	}

	switch {
	case err == nil:
		metrics.RecordDelivery(channel, metrics.OutcomeSent)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordDelivery(channel, metrics.OutcomeTimeout)
	default:
		metrics.RecordDelivery(channel, metrics.OutcomeFailed)
	}
	return err
}
