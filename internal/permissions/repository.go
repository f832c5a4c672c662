package permissions

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

// GetRole fetches the scope projection of a role.
func (r *Repository) GetRole(ctx context.Context, roleID int64) (RoleRef, error) {
	var ref RoleRef
	err := r.pool.QueryRow(ctx, `SELECT id, key, tenant_id FROM roles WHERE id = $1`, roleID).
		Scan(&ref.ID, &ref.Key, &ref.TenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleRef{}, fmt.Errorf("permissions: role %d: %w", roleID, shared.ErrNotFound)
		}
		return RoleRef{}, err
	}
	return ref, nil
}

// ListPermissions returns the full catalog ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, key, resource, action, description, default_hidden FROM permissions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Resource, &p.Action, &p.Description, &p.DefaultHidden); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// MissingPermissionIDs returns the subset of ids without a permissions row.
func (r *Repository) MissingPermissionIDs(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM permissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ListRoleGrants returns the role's grant rows ordered by permission key.
func (r *Repository) ListRoleGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.permission_id, p.key, p.resource, p.action, rp.hidden
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.key`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
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

// ReplaceRoleGrants deletes the role's grant set and inserts the provided one
// inside a single held transaction. A failure anywhere leaves the previous
// set untouched.
func (r *Repository) ReplaceRoleGrants(ctx context.Context, roleID int64, entries []GrantEntry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, entry := range entries {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id, hidden) VALUES ($1, $2, $3)`,
				roleID, entry.PermissionID, entry.Hidden); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsurePermission upserts one catalog entry by key.
func (r *Repository) EnsurePermission(ctx context.Context, p Permission) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permissions (key, resource, action, description, default_hidden)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET resource = EXCLUDED.resource,
		    action = EXCLUDED.action,
		    description = EXCLUDED.description,
		    default_hidden = EXCLUDED.default_hidden`,
		p.Key, p.Resource, p.Action, p.Description, p.DefaultHidden)
	return err
}

// HasVisibleGrant reports whether the user holds a non-hidden grant matching
// any of the candidate keys. This is the only query that reads the hidden
// overlay.
func (r *Repository) HasVisibleGrant(ctx context.Context, userID int64, keys []string) (bool, error) {
	var visible bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = $1
			  AND p.key = ANY($2)
			  AND rp.hidden = FALSE
		)`, userID, keys).Scan(&visible)
	if err != nil {
		return false, err
	}
	return visible, nil
}
