package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// PermissionEventsPublish allows a token to publish events through the ingest API.
const PermissionEventsPublish = "events:publish"

type permissionSet map[string]map[string]struct{}

// PermissionCache keeps the role to permission mapping in memory. Rebuild
// swaps in a fresh copy; readers never see a half-built map.
type PermissionCache struct {
	repo   ports.RoleRepository
	logger *slog.Logger
	roles  atomic.Pointer[permissionSet]
}

var _ ports.PermissionCache = (*PermissionCache)(nil)

// NewPermissionCache creates an empty cache. Call Rebuild before serving.
func NewPermissionCache(repo ports.RoleRepository, logger *slog.Logger) *PermissionCache {
	c := &PermissionCache{
		repo:   repo,
		logger: logger.With("component", "permission_cache"),
	}
	empty := permissionSet{}
	c.roles.Store(&empty)
	return c
}

// Rebuild reloads every role from the repository. On failure the previous
// mapping stays in place.
func (c *PermissionCache) Rebuild(ctx context.Context) error {
	raw, err := c.repo.ListRolePermissions(ctx)
	if err != nil {
		return fmt.Errorf("rebuild permissions: %w", err)
	}

	next := make(permissionSet, len(raw))
	for role, perms := range raw {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		next[role] = set
	}
	c.roles.Store(&next)

	c.logger.InfoContext(ctx, "permission cache rebuilt", "roles", len(next))
	return nil
}

// Can reports whether role grants permission.
func (c *PermissionCache) Can(role, permission string) bool {
	roles := *c.roles.Load()
	perms, ok := roles[role]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}
