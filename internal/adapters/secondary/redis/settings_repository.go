package redis

import (
	"context"
	"fmt"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// SettingsRepository reads settings from a single Redis hash, one field per
// setting name.
type SettingsRepository struct {
	client *Client
	key    string
}

var _ ports.SettingsRepository = (*SettingsRepository)(nil)

func NewSettingsRepository(client *Client, key string) *SettingsRepository {
	return &SettingsRepository{client: client, key: key}
}

func (r *SettingsRepository) GetSettingsByName(ctx context.Context, names []string) ([]domain.Setting, error) {
	if len(names) == 0 {
		return nil, nil
	}

	values, err := r.client.rdb.HMGet(ctx, r.key, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("read settings hash %s: %w", r.key, err)
	}

	settings := make([]domain.Setting, 0, len(names))
	for i, v := range values {
		// missing fields come back as nil
		s, ok := v.(string)
		if !ok {
			continue
		}
		settings = append(settings, domain.Setting{Name: names[i], Value: s})
	}
	return settings, nil
}
