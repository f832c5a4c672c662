package rolesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smeta-erp/smeta-erp/internal/platform/db"
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

// TemplateRole fetches the scope projection of the propagation source.
func (r *Repository) TemplateRole(ctx context.Context, roleID int64) (TemplateRole, error) {
	var role TemplateRole
	err := r.pool.QueryRow(ctx, `SELECT id, key, tenant_id FROM roles WHERE id = $1`, roleID).
		Scan(&role.ID, &role.Key, &role.TenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TemplateRole{}, fmt.Errorf("rolesync: role %d: %w", roleID, shared.ErrNotFound)
		}
		return TemplateRole{}, err
	}
	return role, nil
}

// GlobalAdminRoleID resolves the tenant-less admin template's id.
func (r *Repository) GlobalAdminRoleID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM roles WHERE key = $1 AND tenant_id IS NULL`, shared.RoleKeyAdmin).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("rolesync: global admin template: %w", shared.ErrNotFound)
		}
		return 0, err
	}
	return id, nil
}

// TemplateGrants snapshots the template's grant rows.
func (r *Repository) TemplateGrants(ctx context.Context, roleID int64) ([]GrantRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT permission_id, hidden FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []GrantRow
	for rows.Next() {
		var g GrantRow
		if err := rows.Scan(&g.PermissionID, &g.Hidden); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// TenantAdminRoles lists every tenant-owned admin role.
func (r *Repository) TenantAdminRoles(ctx context.Context) ([]Target, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id FROM roles WHERE key = $1 AND tenant_id IS NOT NULL ORDER BY tenant_id`,
		shared.RoleKeyAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.RoleID, &t.TenantID); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

// ReplaceGrants rewrites one role's grant set inside its own transaction.
func (r *Repository) ReplaceGrants(ctx context.Context, roleID int64, grants []GrantRow) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, g := range grants {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id, hidden) VALUES ($1, $2, $3)`,
				roleID, g.PermissionID, g.Hidden); err != nil {
				return err
			}
		}
		return nil
	})
}
