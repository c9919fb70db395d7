package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/metrics"
)

var _ ports.EventBus = (*Bus)(nil)

// Bus is an in-process publish/subscribe bus. Every subscription owns an
// unbounded mailbox drained by a single goroutine, so Publish never waits on
// handlers and each subscriber sees events of a kind in publication order.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[domain.EventKind][]*subscription
	closed bool

	wg  sync.WaitGroup
	now func() time.Time
}

type delivery struct {
	ctx context.Context
	env domain.Envelope
}

type subscription struct {
	kind    domain.EventKind
	name    string
	handler ports.EventHandler

	mu      sync.Mutex
	queue   []delivery
	closing bool
	signal  chan struct{}
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With("component", "eventbus"),
		subs:   make(map[domain.EventKind][]*subscription),
		now:    time.Now,
	}
}

// Subscribe registers handler for kind under name and starts its worker.
func (b *Bus) Subscribe(kind domain.EventKind, name string, handler ports.EventHandler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownEventKind, kind)
	}
	if handler == nil {
		return fmt.Errorf("eventbus: nil handler for %s", kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return apperrors.ErrBusClosed
	}

	sub := &subscription{
		kind:    kind,
		name:    name,
		handler: handler,
		signal:  make(chan struct{}, 1),
	}
	b.subs[kind] = append(b.subs[kind], sub)

	b.wg.Add(1)
	go b.run(sub)

	b.logger.Debug("handler subscribed", "event_kind", kind, "handler", name)
	return nil
}

// On subscribes a handler typed to one event variant. The kind is derived from
// the variant, so E must be a concrete event type.
func On[E domain.Event](b *Bus, name string, handler func(ctx context.Context, ev E) error) error {
	var zero E
	return b.Subscribe(zero.Kind(), name, func(ctx context.Context, env domain.Envelope) error {
		ev, ok := env.Event.(E)
		if !ok {
			return fmt.Errorf("%w: %s expected %T, got %T", apperrors.ErrInvalidEventPayload, name, zero, env.Event)
		}
		return handler(ctx, ev)
	})
}

// Publish stamps event with an ID and enqueues it for every subscriber of its
// kind. Handlers receive a context that keeps ctx's values but not its
// cancellation.
func (b *Bus) Publish(ctx context.Context, event domain.Event) (uuid.UUID, error) {
	if event == nil || !event.Kind().Valid() {
		return uuid.Nil, apperrors.ErrUnknownEventKind
	}

	env := domain.Envelope{
		ID:          uuid.New(),
		PublishedAt: b.now().UTC(),
		Event:       event,
	}
	detached := context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return uuid.Nil, apperrors.ErrBusClosed
	}

	subs := b.subs[env.Kind()]
	for _, sub := range subs {
		sub.enqueue(delivery{ctx: detached, env: env})
	}

	metrics.EventsPublished.WithLabelValues(env.Kind().String()).Inc()
	logging.LoggerFromContext(ctx, b.logger).Debug("event published",
		"event_id", env.ID.String(),
		"event_kind", env.Kind(),
		"subscribers", len(subs),
	)
	return env.ID, nil
}

// Close stops accepting events and waits until every mailbox has drained or
// ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, subs := range b.subs {
			for _, sub := range subs {
				sub.close()
			}
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus drained")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus drain interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		d, ok := sub.next()
		if !ok {
			return
		}
		b.deliver(sub, d)
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	ctx := logging.WithEvent(d.ctx, d.env.ID.String(), d.env.Kind().String())
	logger := logging.LoggerFromContext(ctx, b.logger).With("handler", sub.name)

	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanics.WithLabelValues(sub.kind.String()).Inc()
			logging.LogPanic(logger, r)
		}
	}()

	if err := sub.handler(ctx, d.env); err != nil {
		logger.Warn("event handler failed", "error", err)
	}
}

func (s *subscription) enqueue(d delivery) {
	s.mu.Lock()
	s.queue = append(s.queue, d)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// next blocks until a delivery is queued. It reports false once the
// subscription is closing and its queue is empty.
func (s *subscription) next() (delivery, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			d := s.queue[0]
			s.queue[0] = delivery{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return d, true
		}
		if s.closing {
			s.mu.Unlock()
			return delivery{}, false
		}
		s.mu.Unlock()
		<-s.signal
	}
}
