package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/mocks"
	"github.com/lorrc/service-desk-notifier/internal/core/services"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/eventbus"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	broadcaster *mocks.MockBroadcaster
	mailer      *mocks.MockMailer
	push        *mocks.MockPushForwarder
	renderer    *mocks.MockTemplateRenderer
	settings    *mocks.MockSettingsRepository
	accounts    *mocks.MockAccountDirectory
	permissions *mocks.MockPermissionCache
	created     *mocks.MockCreatedTicketNotifier
	dispatcher  *services.Dispatcher
}

func newDispatcherFixture(t *testing.T, fallback string, timeout time.Duration) *dispatcherFixture {
	t.Helper()
	loc, err := services.LoadLocation("")
	require.NoError(t, err)

	f := &dispatcherFixture{
		broadcaster: mocks.NewMockBroadcaster(),
		mailer:      mocks.NewMockMailer(),
		push:        mocks.NewMockPushForwarder(),
		renderer:    mocks.NewMockTemplateRenderer(),
		settings:    mocks.NewMockSettingsRepository(),
		accounts:    mocks.NewMockAccountDirectory(),
		permissions: mocks.NewMockPermissionCache(),
		created:     mocks.NewMockCreatedTicketNotifier(),
	}
	f.dispatcher = services.NewDispatcher(services.DispatcherDeps{
		Broadcaster: f.broadcaster,
		Mailer:      f.mailer,
		Push:        f.push,
		Renderer:    f.renderer,
		Settings:    services.NewSettingsResolver(f.settings),
		Recipients:  services.NewRecipientResolver(fallback),
		Transformer: services.NewContentTransformer(loc),
		Accounts:    f.accounts,
		Permissions: f.permissions,
		Created:     f.created,
	}, services.DispatcherConfig{
		BaseURL:        "https://desk.example.com",
		ChannelTimeout: timeout,
	}, logging.Discard())
	return f
}

func (f *dispatcherFixture) withSettings(settings ...domain.Setting) {
	f.settings.On("GetSettingsByName", mock.Anything, mock.Anything).Return(settings, nil)
}

func envelope(ev domain.Event) domain.Envelope {
	return domain.Envelope{
		ID:          uuid.New(),
		PublishedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Event:       ev,
	}
}

func scenarioTicket() domain.TicketSnapshot {
	return domain.TicketSnapshot{
		ID:           "T1",
		UID:          1001,
		Subject:      "Printer jam",
		TypeName:     "Issue",
		PriorityName: "High",
		CreatedAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Subscribers: []domain.Subscriber{
			{ID: "u1", Email: "a@x.com"},
			{ID: "u2", Email: "b@x.com", Deleted: true},
		},
		Comments: []domain.Entry{{OwnerID: "u1", Body: "<p>hi</p>"}},
	}
}

var mailerOn = domain.Setting{Name: domain.SettingMailerEnable, Value: "true"}

func pushOn() []domain.Setting {
	return []domain.Setting{
		{Name: domain.SettingPushEnable, Value: "true"},
		{Name: domain.SettingPushUsername, Value: "desk"},
		{Name: domain.SettingPushAPIKey, Value: "secret"},
	}
}

func TestDispatcher_CommentAdded_EmailsFallbackOnly(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()
	comment := domain.Entry{OwnerID: "u1", Body: "<p>hi</p>"}

	f.withSettings(mailerOn)
	f.broadcaster.On("Broadcast", domain.ChannelTicketsUpdate, ticket).Return(nil).Once()
	f.accounts.On("ListByIDs", mock.Anything, []string{"u1"}).
		Return([]domain.Account{{ID: "u1", FullName: "Ada Lovelace"}}, nil)
	f.renderer.On("Render", mock.Anything, domain.TemplateCommentAdded, mock.MatchedBy(func(data domain.TemplateData) bool {
		return data.Ticket.ID == "T1" &&
			data.Note == nil &&
			data.Comment != nil &&
			data.Comment.Owner == "Ada Lovelace" &&
			data.Ticket.EventDate == "Mar 01, 2024, 01:00 PM GMT+1"
	})).Return("<p>rendered</p>", nil)
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg domain.RenderedMessage) bool {
		return assert.ObjectsAreEqual([]string{services.DefaultFallbackEmail}, msg.Recipients.Addresses()) &&
			msg.Subject == "Ticket #1001 Updated - Printer jam - High Issue" &&
			msg.HTML == "<p>rendered</p>" &&
			msg.Template == domain.TemplateCommentAdded
	})).Return(nil).Once()

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: comment}))

	f.broadcaster.AssertExpectations(t)
	f.renderer.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
	f.mailer.AssertNumberOfCalls(t, "Send", 1)
	f.push.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, scenarioTicket(), ticket, "snapshot must not be mutated")
}

func TestDispatcher_CommentAdded_MailerDisabled(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()

	f.withSettings(domain.Setting{Name: domain.SettingMailerEnable, Value: "false"})
	f.broadcaster.On("Broadcast", domain.ChannelTicketsUpdate, ticket).Return(nil).Once()

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))

	f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
	f.accounts.AssertNotCalled(t, "ListByIDs", mock.Anything, mock.Anything)
}

func TestDispatcher_EmailFailureDoesNotBlockBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "help@example.com", time.Second)
	ticket := scenarioTicket()

	f.withSettings(mailerOn)
	f.broadcaster.On("Broadcast", domain.ChannelTicketsUpdate, ticket).Return(nil).Once()
	f.accounts.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Account{}, nil)
	f.renderer.On("Render", mock.Anything, domain.TemplateCommentAdded, mock.Anything).Return("<p>x</p>", nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("550 mailbox unavailable")).Once()

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))

	f.broadcaster.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
}

func TestDispatcher_NoteAdded(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()
	ticket.Subscribers = append(ticket.Subscribers, domain.Subscriber{ID: "u3", Email: "c@x.com"})
	note := domain.Entry{OwnerID: "u1", Body: `<img src="/uploads/n.png">`}

	f.withSettings(append(pushOn(), mailerOn)...)
	f.broadcaster.On("Broadcast", domain.ChannelNotesUpdate, ticket).Return(nil).Once()
	f.accounts.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Account{}, nil)
	f.renderer.On("Render", mock.Anything, domain.TemplateNoteAdded, mock.MatchedBy(func(data domain.TemplateData) bool {
		return data.Comment == nil && data.Note != nil &&
			data.Note.Body == `<img src="https://desk.example.com/uploads/n.png">`
	})).Return("<p>note</p>", nil)
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg domain.RenderedMessage) bool {
		return assert.ObjectsAreEqual([]string{"c@x.com", services.DefaultFallbackEmail}, msg.Recipients.Addresses())
	})).Return(nil).Once()
	f.push.On("Configured").Return(true)
	f.push.On("Forward", mock.Anything,
		domain.PushCredentials{Username: "desk", APIKey: "secret"},
		mock.MatchedBy(func(s domain.PushSummary) bool {
			return s.Kind == domain.EventNoteAdded &&
				s.TicketID == "T1" &&
				s.TicketUID == 1001 &&
				assert.ObjectsAreEqual([]string{"u3"}, s.AccountIDs)
		}),
	).Return(nil).Once()

	f.dispatcher.Dispatch(ctx, envelope(domain.NoteAdded{Ticket: ticket, Note: note}))

	f.broadcaster.AssertExpectations(t)
	f.renderer.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
	f.push.AssertExpectations(t)
}

func TestDispatcher_PushSkippedWhenNotConfigured(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()

	f.withSettings(pushOn()...)
	f.broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(nil)
	f.push.On("Configured").Return(false)

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))

	f.push.AssertCalled(t, "Configured")
	f.push.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDispatcher_PushFailureDoesNotBlockEmail(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()

	f.withSettings(append(pushOn(), mailerOn)...)
	f.broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(nil)
	f.accounts.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Account{}, nil)
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return("<p>x</p>", nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once()
	f.push.On("Configured").Return(true)
	f.push.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("502 bad gateway")).Once()

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))

	f.mailer.AssertExpectations(t)
	f.push.AssertExpectations(t)
	f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestDispatcher_SettingsUnavailableDisablesChannels(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()

	f.settings.On("GetSettingsByName", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	f.broadcaster.On("Broadcast", domain.ChannelTicketsUpdate, ticket).Return(nil).Once()

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))

	f.broadcaster.AssertExpectations(t)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.push.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_EnrichmentFailureAbortsEmailOnly(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()

	f.withSettings(append(pushOn(), mailerOn)...)
	f.broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(nil)
	f.accounts.On("ListByIDs", mock.Anything, mock.Anything).Return(nil, errors.New("directory offline"))
	f.push.On("Configured").Return(true)
	f.push.On("Forward", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))

	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.push.AssertExpectations(t)
	f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestDispatcher_RenderFailureAbortsEmail(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()

	f.withSettings(mailerOn)
	f.broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(nil)
	f.accounts.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Account{}, nil)
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("template: missing"))

	f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))

	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestDispatcher_SlowMailerTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", 50*time.Millisecond)
	ticket := scenarioTicket()

	release := make(chan struct{})
	defer close(release)

	f.withSettings(mailerOn)
	f.broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(nil)
	f.accounts.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Account{}, nil)
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return("<p>x</p>", nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		<-release
	}).Return(nil)

	done := make(chan struct{})
	go func() {
		f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not give up on a stuck mailer")
	}
	f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestDispatcher_PanickingChannelIsContained(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()

	f.withSettings(mailerOn)
	f.broadcaster.On("Broadcast", mock.Anything, mock.Anything).Return(nil)
	f.accounts.On("ListByIDs", mock.Anything, mock.Anything).Return([]domain.Account{}, nil)
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return("<p>x</p>", nil)
	f.mailer.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("smtp client bug")
	}).Return(nil)

	assert.NotPanics(t, func() {
		f.dispatcher.Dispatch(ctx, envelope(domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}}))
	})
	f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestDispatcher_BroadcastOnlyKinds(t *testing.T) {
	ticket := scenarioTicket()
	tests := []struct {
		name    string
		event   domain.Event
		channel string
		payload any
	}{
		{"updated", domain.TicketUpdated{Ticket: ticket}, domain.ChannelTicketUpdated, domain.TicketUpdated{Ticket: ticket}},
		{"deleted", domain.TicketDeleted{TicketID: "T1"}, domain.ChannelTicketDeleted, "T1"},
		{
			"subscriber update",
			domain.SubscriberUpdated{TicketID: "T1", AccountID: "u1", Subscribed: true},
			domain.ChannelSubscriberUpdate,
			domain.SubscriberUpdated{TicketID: "T1", AccountID: "u1", Subscribed: true},
		},
		{
			"profile image",
			domain.ProfileImageUpdated{AccountID: "u1", Image: "u1.png"},
			domain.ChannelProfileImageUpdate,
			domain.ProfileImageUpdated{AccountID: "u1", Image: "u1.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, "", time.Second)
			f.broadcaster.On("Broadcast", tt.channel, tt.payload).Return(nil).Once()

			f.dispatcher.Dispatch(context.Background(), envelope(tt.event))

			f.broadcaster.AssertExpectations(t)
			f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
			f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			f.push.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
			f.settings.AssertNotCalled(t, "GetSettingsByName", mock.Anything, mock.Anything)
		})
	}
}

func TestDispatcher_BroadcastFailureIsSwallowed(t *testing.T) {
	f := newDispatcherFixture(t, "", time.Second)
	f.broadcaster.On("Broadcast", domain.ChannelTicketDeleted, "T1").Return(errors.New("hub buffer full"))

	assert.NotPanics(t, func() {
		f.dispatcher.Dispatch(context.Background(), envelope(domain.TicketDeleted{TicketID: "T1"}))
	})
	f.broadcaster.AssertExpectations(t)
}

func TestDispatcher_TicketCreatedDelegates(t *testing.T) {
	f := newDispatcherFixture(t, "", time.Second)
	ticket := scenarioTicket()
	f.created.On("TicketCreated", mock.Anything, ticket).Return(nil).Once()

	f.dispatcher.Dispatch(context.Background(), envelope(domain.TicketCreated{Ticket: ticket}))

	f.created.AssertExpectations(t)
	f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestDispatcher_RolesFlushRebuildsBeforeBroadcast(t *testing.T) {
	f := newDispatcherFixture(t, "", time.Second)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(step string) func(mock.Arguments) {
		return func(mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, step)
		}
	}
	f.permissions.On("Rebuild", mock.Anything).Run(record("rebuild")).Return(nil).Once()
	f.broadcaster.On("Broadcast", domain.ChannelRolesFlush, nil).Run(record("broadcast")).Return(nil).Once()

	f.dispatcher.Dispatch(context.Background(), envelope(domain.RolesFlushed{}))

	f.permissions.AssertExpectations(t)
	f.broadcaster.AssertExpectations(t)
	assert.Equal(t, []string{"rebuild", "broadcast"}, order)
}

func TestDispatcher_RolesFlushBroadcastsEvenWhenRebuildFails(t *testing.T) {
	f := newDispatcherFixture(t, "", time.Second)
	f.permissions.On("Rebuild", mock.Anything).Return(errors.New("db down")).Once()
	f.broadcaster.On("Broadcast", domain.ChannelRolesFlush, nil).Return(nil).Once()

	f.dispatcher.Dispatch(context.Background(), envelope(domain.RolesFlushed{}))

	f.broadcaster.AssertExpectations(t)
}

func TestDispatcher_RegisterHandlesPublishedEvents(t *testing.T) {
	f := newDispatcherFixture(t, "", time.Second)
	bus := eventbus.New(logging.Discard())
	require.NoError(t, f.dispatcher.Register(bus))

	ticket := scenarioTicket()
	f.withSettings(domain.Setting{Name: domain.SettingMailerEnable, Value: "false"})
	f.broadcaster.On("Broadcast", domain.ChannelTicketsUpdate, ticket).Return(nil).Once()
	f.broadcaster.On("Broadcast", domain.ChannelTicketDeleted, "T1").Return(nil).Once()

	_, err := bus.Publish(context.Background(), domain.CommentAdded{Ticket: ticket, Comment: domain.Entry{OwnerID: "u1"}})
	require.NoError(t, err)
	_, err = bus.Publish(context.Background(), domain.TicketDeleted{TicketID: "T1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	f.broadcaster.AssertExpectations(t)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
