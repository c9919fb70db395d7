package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockSettingsRepository is a mock implementation of ports.SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{}
}

func (m *MockSettingsRepository) GetSettingsByName(ctx context.Context, names []string) ([]domain.Setting, error) {
	args := m.Called(ctx, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Setting), args.Error(1)
}

// MockAccountDirectory is a mock implementation of ports.AccountDirectory
type MockAccountDirectory struct {
	mock.Mock
}

func NewMockAccountDirectory() *MockAccountDirectory {
	return &MockAccountDirectory{}
}

func (m *MockAccountDirectory) ListByIDs(ctx context.Context, ids []string) ([]domain.Account, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

// MockRoleRepository is a mock implementation of ports.RoleRepository
type MockRoleRepository struct {
	mock.Mock
}

func NewMockRoleRepository() *MockRoleRepository {
	return &MockRoleRepository{}
}

func (m *MockRoleRepository) ListRolePermissions(ctx context.Context) (map[string][]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]string), args.Error(1)
}

// MockBroadcaster is a mock implementation of ports.Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) Broadcast(channel string, payload any) error {
	args := m.Called(channel, payload)
	return args.Error(0)
}

// MockMailer is a mock implementation of ports.Mailer
type MockMailer struct {
	mock.Mock
}

func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

func (m *MockMailer) Send(ctx context.Context, msg domain.RenderedMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockPushForwarder is a mock implementation of ports.PushForwarder
type MockPushForwarder struct {
	mock.Mock
}

func NewMockPushForwarder() *MockPushForwarder {
	return &MockPushForwarder{}
}

func (m *MockPushForwarder) Forward(ctx context.Context, creds domain.PushCredentials, summary domain.PushSummary) error {
	args := m.Called(ctx, creds, summary)
	return args.Error(0)
}

func (m *MockPushForwarder) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockTemplateRenderer is a mock implementation of ports.TemplateRenderer
type MockTemplateRenderer struct {
	mock.Mock
}

func NewMockTemplateRenderer() *MockTemplateRenderer {
	return &MockTemplateRenderer{}
}

func (m *MockTemplateRenderer) Render(ctx context.Context, name string, data domain.TemplateData) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

// MockCreatedTicketNotifier is a mock implementation of ports.CreatedTicketNotifier
type MockCreatedTicketNotifier struct {
	mock.Mock
}

func NewMockCreatedTicketNotifier() *MockCreatedTicketNotifier {
	return &MockCreatedTicketNotifier{}
}

func (m *MockCreatedTicketNotifier) TicketCreated(ctx context.Context, ticket domain.TicketSnapshot) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

// MockPermissionCache is a mock implementation of ports.PermissionCache
type MockPermissionCache struct {
	mock.Mock
}

func NewMockPermissionCache() *MockPermissionCache {
	return &MockPermissionCache{}
}

func (m *MockPermissionCache) Rebuild(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockPermissionCache) Can(role, permission string) bool {
	args := m.Called(role, permission)
	return args.Bool(0)
}

// MockEventPublisher is a mock implementation of ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.Event) (uuid.UUID, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(uuid.UUID), args.Error(1)
}
