package services

import (
	"context"
	"fmt"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// SettingsResolver reads the feature toggles for one dispatch.
type SettingsResolver struct {
	repo ports.SettingsRepository
}

var _ ports.SettingsResolver = (*SettingsResolver)(nil)

// NewSettingsResolver creates a resolver backed by repo.
func NewSettingsResolver(repo ports.SettingsRepository) ports.SettingsResolver {
	return &SettingsResolver{repo: repo}
}

// Resolve returns the settings relevant to kind. Kinds without recipients
// need no settings and never hit the repository. On a repository failure the
// disabled defaults are returned alongside an ErrSettingsUnavailable error.
func (r *SettingsResolver) Resolve(ctx context.Context, kind domain.EventKind) (domain.FeatureSettings, error) {
	keys := domain.SettingKeys(kind)
	if len(keys) == 0 {
		return domain.FeatureSettings{}, nil
	}

	settings, err := r.repo.GetSettingsByName(ctx, keys)
	if err != nil {
		return domain.FeatureSettings{}, fmt.Errorf("%w: %w", apperrors.ErrSettingsUnavailable, err)
	}

	return domain.NewFeatureSettings(settings), nil
}
