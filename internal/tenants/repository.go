package tenants

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

// GetTenant fetches a tenant by id.
func (r *Repository) GetTenant(ctx context.Context, tenantID int64) (Tenant, error) {
	var t Tenant
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM tenants WHERE id = $1`, tenantID).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, fmt.Errorf("tenants: tenant %d: %w", tenantID, shared.ErrNotFound)
		}
		return Tenant{}, err
	}
	return t, nil
}

// ListTenants returns every tenant ordered by id.
func (r *Repository) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
