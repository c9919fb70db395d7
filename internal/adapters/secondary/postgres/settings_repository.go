package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

type SettingsRepository struct {
	pool *pgxpool.Pool
}

var _ ports.SettingsRepository = (*SettingsRepository)(nil)

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

const getSettingsByName = `SELECT name, value FROM settings WHERE name = ANY($1) ORDER BY name`

func (r *SettingsRepository) GetSettingsByName(ctx context.Context, names []string) ([]domain.Setting, error) {
	if len(names) == 0 {
		return nil, nil
	}

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, getSettingsByName, names)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var settings []domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Name, &s.Value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return settings, nil
}
