package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

type RoleRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

var _ ports.RoleRepository = (*RoleRepository)(nil)

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool, tm: NewTransactionManager(pool)}
}

const (
	listRoles           = `SELECT name FROM roles`
	listRolePermissions = `SELECT role, permission FROM role_permissions ORDER BY role, permission`
)

// ListRolePermissions returns every role with its permissions. Roles without
// permissions are present with an empty list.
func (r *RoleRepository) ListRolePermissions(ctx context.Context) (map[string][]string, error) {
	result := make(map[string][]string)

	err := r.tm.WithReadOnlyTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		roles, err := tx.Query(ctx, listRoles)
		if err != nil {
			return fmt.Errorf("query roles: %w", err)
		}
		names, err := pgx.CollectRows(roles, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("read roles: %w", err)
		}
		for _, name := range names {
			result[name] = []string{}
		}

		rows, err := tx.Query(ctx, listRolePermissions)
		if err != nil {
			return fmt.Errorf("query role permissions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var role, permission string
			if err := rows.Scan(&role, &permission); err != nil {
				return fmt.Errorf("scan role permission: %w", err)
			}
			result[role] = append(result[role], permission)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
