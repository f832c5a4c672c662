package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	GetRole(ctx context.Context, roleID int64) (Role, error)
	ListGlobalRoles(ctx context.Context) ([]Role, error)
	ListTenantRoles(ctx context.Context, tenantID int64) ([]Role, error)
	KeyExistsInScope(ctx context.Context, key string, tenantID *int64) (bool, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, roleID int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, roleID int64) error
	AssignmentCount(ctx context.Context, roleID int64) (int64, error)
}

// AuditPort records administrative actions, best-effort.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// GrantsInvalidator drops cached effective grants after a role mutation.
type GrantsInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Service handles role business logic: listing per actor scope and the
// create/update/delete rules around reserved and tenant-owned roles.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  GrantsInvalidator
	logger *slog.Logger
}

// NewService builds Service instance. audit and cache may be nil in tests.
func NewService(repo RepositoryPort, audit AuditPort, cache GrantsInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger}
}

// ListRoles returns the roles visible to the actor. Super-admins see only
// global roles with super_admin pinned first and admin second; tenant admins
// see their own tenant's roles minus the synced admin copy.
func (s *Service) ListRoles(ctx context.Context, actor authz.Actor) ([]Role, error) {
	if actor.SuperAdmin {
		roles, err := s.repo.ListGlobalRoles(ctx)
		if err != nil {
			return nil, err
		}
		sortRoles(roles)
		return roles, nil
	}
	all, err := s.repo.ListTenantRoles(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, 0, len(all))
	for _, role := range all {
		if role.Key == shared.RoleKeyAdmin {
			continue
		}
		roles = append(roles, role)
	}
	sortRoles(roles)
	return roles, nil
}

func sortRoles(roles []Role) {
	collator := collate.New(language.English, collate.IgnoreCase)
	rank := func(r Role) int {
		switch r.Key {
		case shared.RoleKeySuperAdmin:
			return 0
		case shared.RoleKeyAdmin:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(roles, func(i, j int) bool {
		ri, rj := rank(roles[i]), rank(roles[j])
		if ri != rj {
			return ri < rj
		}
		return collator.CompareString(roles[i].Name, roles[j].Name) < 0
	})
}

// CreateRole creates a role in the actor's scope: tenant admins create roles
// owned by their tenant, super admins create global roles.
func (s *Service) CreateRole(ctx context.Context, actor authz.Actor, input CreateRoleInput) (Role, error) {
	if input.Key == shared.RoleKeySuperAdmin || input.Key == shared.RoleKeyAdmin {
		return Role{}, fmt.Errorf("roles: key %s is reserved: %w", input.Key, shared.ErrValidation)
	}
	role := Role{Key: input.Key, Name: input.Name, Description: input.Description}
	if !actor.SuperAdmin {
		tenantID := actor.TenantID
		role.TenantID = &tenantID
	}
	taken, err := s.repo.KeyExistsInScope(ctx, role.Key, role.TenantID)
	if err != nil {
		return Role{}, err
	}
	if taken {
		return Role{}, fmt.Errorf("roles: key %s already exists in scope: %w", role.Key, shared.ErrDuplicate)
	}
	stored, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actor.UserID, "ROLE_CREATE", stored.ID, map[string]any{"key": stored.Key})
	return stored, nil
}

// UpdateRole rewrites name and description subject to scope rules. Key and
// tenant are immutable after creation.
func (s *Service) UpdateRole(ctx context.Context, actor authz.Actor, roleID int64, input UpdateRoleInput) (Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if err := authorizeUpdate(actor, role); err != nil {
		return Role{}, err
	}
	updated, err := s.repo.UpdateRole(ctx, role.ID, input.Name, input.Description)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actor.UserID, "ROLE_UPDATE", updated.ID, map[string]any{"key": updated.Key})
	return updated, nil
}

// DeleteRole removes a tenant role that no user holds.
func (s *Service) DeleteRole(ctx context.Context, actor authz.Actor, roleID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Global() {
		return fmt.Errorf("roles: global roles cannot be deleted: %w", shared.ErrScope)
	}
	if role.Key == shared.RoleKeySuperAdmin || role.Key == shared.RoleKeyAdmin {
		return fmt.Errorf("roles: role %s is reserved: %w", role.Key, shared.ErrScope)
	}
	if actor.SuperAdmin {
		return fmt.Errorf("roles: tenant roles are deleted by their tenant: %w", shared.ErrScope)
	}
	if *role.TenantID != actor.TenantID {
		return fmt.Errorf("roles: role belongs to another tenant: %w", shared.ErrScope)
	}
	count, err := s.repo.AssignmentCount(ctx, role.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("roles: role %s is assigned to %d users: %w", role.Key, count, shared.ErrConflict)
	}
	if err := s.repo.DeleteRole(ctx, role.ID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor.UserID, "ROLE_DELETE", role.ID, map[string]any{"key": role.Key})
	s.invalidateCache(ctx)
	return nil
}

func authorizeUpdate(actor authz.Actor, role Role) error {
	if role.Key == shared.RoleKeySuperAdmin {
		return fmt.Errorf("roles: role %s is immutable: %w", role.Key, shared.ErrScope)
	}
	if actor.SuperAdmin {
		if !role.Global() || role.Key != shared.RoleKeyAdmin {
			return fmt.Errorf("roles: super admin may only edit the admin template: %w", shared.ErrScope)
		}
		return nil
	}
	if role.Global() {
		return fmt.Errorf("roles: global roles require super admin: %w", shared.ErrScope)
	}
	if *role.TenantID != actor.TenantID {
		return fmt.Errorf("roles: role belongs to another tenant: %w", shared.ErrScope)
	}
	if role.Key == shared.RoleKeyAdmin {
		return fmt.Errorf("roles: tenant admin role is synced from the template: %w", shared.ErrScope)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "roles",
		EntityID: fmt.Sprintf("%d", roleID),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.Any("error", err))
	}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "grants cache invalidation failed", slog.Any("error", err))
	}
}
