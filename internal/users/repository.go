package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, userID int64) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, tenant_id, super_admin, created_at FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.Name, &u.TenantID, &u.SuperAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("users: user %d: %w", userID, shared.ErrNotFound)
		}
		return User{}, err
	}
	return u, nil
}

// EffectiveGrants returns the union of the user's role grants, one row per
// permission. A permission counts as hidden only when every role granting it
// marks it hidden; a single visible grant wins.
func (r *Repository) EffectiveGrants(ctx context.Context, userID int64) ([]EffectiveGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.key, p.resource, p.action, BOOL_AND(rp.hidden) AS hidden
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		GROUP BY p.id, p.key, p.resource, p.action
		ORDER BY p.key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []EffectiveGrant
	for rows.Next() {
		var g EffectiveGrant
		if err := rows.Scan(&g.PermissionID, &g.Key, &g.Resource, &g.Action, &g.Hidden); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
