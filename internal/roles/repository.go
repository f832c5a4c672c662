package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const roleColumns = `id, key, name, description, tenant_id, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Key, &role.Name, &role.Description, &role.TenantID, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, roleID int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: role %d: %w", roleID, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// ListGlobalRoles returns every tenant-less role.
func (r *Repository) ListGlobalRoles(ctx context.Context) ([]Role, error) {
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id IS NULL ORDER BY key`)
}

// ListTenantRoles returns every role owned by the tenant.
func (r *Repository) ListTenantRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 ORDER BY key`, tenantID)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Role, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// KeyExistsInScope reports whether the key is already taken either globally
// or, when tenantID is set, within that tenant.
func (r *Repository) KeyExistsInScope(ctx context.Context, key string, tenantID *int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roles
			WHERE key = $1
			  AND (tenant_id IS NULL OR ($2::bigint IS NOT NULL AND tenant_id = $2))
		)`, key, tenantID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateRole inserts a new role and returns the stored row.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	stored, err := scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO roles (key, name, description, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+roleColumns,
		role.Key, role.Name, role.Description, role.TenantID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Role{}, fmt.Errorf("roles: key %s already exists: %w", role.Key, shared.ErrDuplicate)
		}
		return Role{}, err
	}
	return stored, nil
}

// UpdateRole rewrites the mutable fields of a role.
func (r *Repository) UpdateRole(ctx context.Context, roleID int64, name, description string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		roleID, name, description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: role %d: %w", roleID, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role and its grant rows.
func (r *Repository) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("roles: role %d: %w", roleID, shared.ErrNotFound)
	}
	return nil
}

// AssignmentCount returns how many users hold the role.
func (r *Repository) AssignmentCount(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
