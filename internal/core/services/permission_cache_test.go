package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lorrc/service-desk-notifier/internal/core/mocks"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRoleRepo struct {
	roles map[string][]string
	err   error
	calls int
}

func (f *fakeRoleRepo) ListRolePermissions(_ context.Context) (map[string][]string, error) {
	f.calls++
	return f.roles, f.err
}

func TestPermissionCache_EmptyUntilRebuilt(t *testing.T) {
	cache := NewPermissionCache(&fakeRoleRepo{}, logging.Discard())

	require.False(t, cache.Can("admin", PermissionEventsPublish))
}

func TestPermissionCache_Rebuild(t *testing.T) {
	repo := &fakeRoleRepo{roles: map[string][]string{
		"admin":    {PermissionEventsPublish, "events:read"},
		"customer": {"tickets:create"},
	}}
	cache := NewPermissionCache(repo, logging.Discard())

	require.NoError(t, cache.Rebuild(context.Background()))

	require.True(t, cache.Can("admin", PermissionEventsPublish))
	require.False(t, cache.Can("customer", PermissionEventsPublish))
	require.False(t, cache.Can("ghost", PermissionEventsPublish))
	require.Equal(t, 1, repo.calls)
}

func TestPermissionCache_RebuildReplacesRoles(t *testing.T) {
	repo := &fakeRoleRepo{roles: map[string][]string{"admin": {PermissionEventsPublish}}}
	cache := NewPermissionCache(repo, logging.Discard())
	require.NoError(t, cache.Rebuild(context.Background()))

	repo.roles = map[string][]string{"admin": {}}
	require.NoError(t, cache.Rebuild(context.Background()))

	require.False(t, cache.Can("admin", PermissionEventsPublish))
}

func TestPermissionCache_RebuildFailureKeepsPreviousRoles(t *testing.T) {
	repo := mocks.NewMockRoleRepository()
	repo.On("ListRolePermissions", mock.Anything).
		Return(map[string][]string{"admin": {PermissionEventsPublish}}, nil).Once()
	repo.On("ListRolePermissions", mock.Anything).
		Return(nil, errors.New("db down")).Once()
	cache := NewPermissionCache(repo, logging.Discard())

	require.NoError(t, cache.Rebuild(context.Background()))
	require.Error(t, cache.Rebuild(context.Background()))

	require.True(t, cache.Can("admin", PermissionEventsPublish))
	repo.AssertExpectations(t)
}
