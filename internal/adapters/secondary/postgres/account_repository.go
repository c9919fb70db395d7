package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/core/utils"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

var _ ports.AccountDirectory = (*AccountRepository)(nil)

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const listAccountsByIDs = `SELECT id, full_name, email, deleted FROM accounts WHERE id = ANY($1)`

// ListByIDs returns the accounts among ids; unknown IDs are absent from the result.
func (r *AccountRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, listAccountsByIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, len(ids))
	for rows.Next() {
		var (
			a        domain.Account
			fullName pgtype.Text
			email    pgtype.Text
		)
		if err := rows.Scan(&a.ID, &fullName, &email, &a.Deleted); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.FullName = utils.FromString(fullName)
		a.Email = utils.FromString(email)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	return accounts, nil
}
