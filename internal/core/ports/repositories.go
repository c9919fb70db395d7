package ports

import (
	"context"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
)

// SettingsRepository reads runtime settings maintained by the admin UI.
type SettingsRepository interface {
	// GetSettingsByName returns the settings whose names are in names.
	// Unknown names are simply absent from the result.
	GetSettingsByName(ctx context.Context, names []string) ([]domain.Setting, error)
}

// AccountDirectory looks up accounts, used to populate comment and note owners.
type AccountDirectory interface {
	ListByIDs(ctx context.Context, ids []string) ([]domain.Account, error)
}

// RoleRepository loads the role to permission mapping.
type RoleRepository interface {
	ListRolePermissions(ctx context.Context) (map[string][]string, error)
}
