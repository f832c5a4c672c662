// Package rolesync propagates the global admin template's grant set to every
// tenant's own admin role. Propagation is best-effort per tenant: one tenant
// failing never blocks the others and never fails the triggering call.
package rolesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smeta-erp/smeta-erp/internal/observability"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// TemplateRole is the scope projection of the role being propagated.
type TemplateRole struct {
	ID       int64
	Key      string
	TenantID *int64
}

// GrantRow is one grant carried from the template to a tenant copy.
type GrantRow struct {
	PermissionID int64
	Hidden       bool
}

// Target is one tenant's admin role to receive the template's grants.
type Target struct {
	RoleID   int64
	TenantID int64
}

// RepositoryPort defines data access methods for propagation.
type RepositoryPort interface {
	TemplateRole(ctx context.Context, roleID int64) (TemplateRole, error)
	TemplateGrants(ctx context.Context, roleID int64) ([]GrantRow, error)
	TenantAdminRoles(ctx context.Context) ([]Target, error)
	ReplaceGrants(ctx context.Context, roleID int64, rows []GrantRow) error
}

// GrantsInvalidator drops cached effective grants after propagation.
type GrantsInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Engine copies the template grant set into each tenant's admin role.
type Engine struct {
	repo    RepositoryPort
	cache   GrantsInvalidator
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewEngine builds Engine instance. cache and metrics may be nil in tests.
func NewEngine(repo RepositoryPort, cache GrantsInvalidator, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// Propagate snapshots the template's grants and replaces each tenant admin
// role's grants with that snapshot, one independent transaction per tenant.
// Per-tenant failures are logged and joined into the returned error; the loop
// never aborts early. There is no cross-tenant transaction: a crash mid-loop
// leaves some tenants synced and others stale until the next run.
func (e *Engine) Propagate(ctx context.Context, templateRoleID int64) error {
	role, err := e.repo.TemplateRole(ctx, templateRoleID)
	if err != nil {
		return err
	}
	if role.Key != shared.RoleKeyAdmin || role.TenantID != nil {
		return fmt.Errorf("rolesync: role %d is not the global admin template: %w", templateRoleID, shared.ErrValidation)
	}
	grants, err := e.repo.TemplateGrants(ctx, role.ID)
	if err != nil {
		return err
	}
	targets, err := e.repo.TenantAdminRoles(ctx)
	if err != nil {
		return err
	}

	var failures []error
	synced := 0
	for _, target := range targets {
		if err := e.repo.ReplaceGrants(ctx, target.RoleID, grants); err != nil {
			e.metrics.ObserveSyncTenant(true)
			if e.logger != nil {
				e.logger.ErrorContext(ctx, "template sync failed for tenant",
					slog.Int64("tenant_id", target.TenantID),
					slog.Int64("role_id", target.RoleID),
					slog.Any("error", err))
			}
			failures = append(failures, fmt.Errorf("tenant %d: %w", target.TenantID, err))
			continue
		}
		e.metrics.ObserveSyncTenant(false)
		synced++
	}

	if synced > 0 {
		e.invalidateCache(ctx)
	}
	if e.logger != nil {
		e.logger.InfoContext(ctx, "template sync finished",
			slog.Int64("template_role_id", role.ID),
			slog.Int("synced", synced),
			slog.Int("failed", len(failures)))
	}
	if len(failures) > 0 {
		return fmt.Errorf("rolesync: %d of %d tenants failed: %w", len(failures), len(targets), errors.Join(failures...))
	}
	return nil
}

func (e *Engine) invalidateCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateAll(ctx); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "grants cache invalidation failed", slog.Any("error", err))
	}
}
