package permissions

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

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetRole(ctx context.Context, roleID int64) (RoleRef, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	MissingPermissionIDs(ctx context.Context, ids []int64) ([]int64, error)
	ListRoleGrants(ctx context.Context, roleID int64) ([]Grant, error)
	ReplaceRoleGrants(ctx context.Context, roleID int64, entries []GrantEntry) error
	EnsurePermission(ctx context.Context, p Permission) error
	HasVisibleGrant(ctx context.Context, userID int64, keys []string) (bool, error)
}

// AuditPort records administrative actions, best-effort.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TemplateSyncer propagates the global template's grants to tenant copies.
type TemplateSyncer interface {
	Propagate(ctx context.Context, templateRoleID int64) error
}

// GrantsInvalidator drops cached effective grants after a grant mutation.
type GrantsInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Service is the grant store: catalog queries plus wholesale grant
// replacement with its side effects.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	syncer TemplateSyncer
	cache  GrantsInvalidator
	logger *slog.Logger
}

// NewService constructs the service. syncer and cache may be nil in tests.
func NewService(repo RepositoryPort, audit AuditPort, syncer TemplateSyncer, cache GrantsInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, syncer: syncer, cache: cache, logger: logger}
}

// EnsureCatalog upserts the static capability table into the store. Called
// once at startup; safe to repeat.
func (s *Service) EnsureCatalog(ctx context.Context) error {
	for _, entry := range catalog {
		p := Permission{
			Key:           entry.resource + "." + entry.action,
			Resource:      entry.resource,
			Action:        entry.action,
			Description:   entry.description,
			DefaultHidden: entry.defaultHidden,
		}
		if err := s.repo.EnsurePermission(ctx, p); err != nil {
			return fmt.Errorf("permissions: ensure %s: %w", p.Key, err)
		}
	}
	return nil
}

// ListGrouped returns the catalog grouped by resource with display labels.
func (s *Service) ListGrouped(ctx context.Context) ([]Group, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	byResource := make(map[string][]Permission)
	for _, p := range perms {
		byResource[p.Resource] = append(byResource[p.Resource], p)
	}
	groups := make([]Group, 0, len(byResource))
	for resource, members := range byResource {
		groups = append(groups, Group{Resource: resource, Label: ResourceLabel(resource), Permissions: members})
	}
	collator := collate.New(language.English, collate.IgnoreCase)
	sort.Slice(groups, func(i, j int) bool {
		return collator.CompareString(groups[i].Label, groups[j].Label) < 0
	})
	for _, g := range groups {
		sort.Slice(g.Permissions, func(i, j int) bool {
			return collator.CompareString(g.Permissions[i].Key, g.Permissions[j].Key) < 0
		})
	}
	return groups, nil
}

// RoleGrants returns the role's grant list plus derived id sets. Reads follow
// the same tenant scoping as edits, minus the reserved-role restrictions.
func (s *Service) RoleGrants(ctx context.Context, actor authz.Actor, roleID int64) (RoleGrants, error) {
	ref, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return RoleGrants{}, err
	}
	if err := authorizeGrantRead(actor, ref); err != nil {
		return RoleGrants{}, err
	}
	entries, err := s.repo.ListRoleGrants(ctx, ref.ID)
	if err != nil {
		return RoleGrants{}, err
	}
	result := RoleGrants{RoleID: ref.ID, Entries: entries}
	for _, g := range entries {
		result.PermissionIDs = append(result.PermissionIDs, g.PermissionID)
		if g.Hidden {
			result.HiddenPermissionIDs = append(result.HiddenPermissionIDs, g.PermissionID)
		}
	}
	return result, nil
}

// ReplaceRoleGrants swaps the role's grant set wholesale. The replace commits
// or leaves the previous set untouched; audit, cache invalidation and
// template propagation run after the commit and never fail the call.
func (s *Service) ReplaceRoleGrants(ctx context.Context, actor authz.Actor, roleID int64, entries []GrantEntry) (ReplaceResult, error) {
	if entries == nil {
		return ReplaceResult{}, fmt.Errorf("permissions: grants must be a list: %w", shared.ErrValidation)
	}
	seen := make(map[int64]struct{}, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if entry.PermissionID <= 0 {
			return ReplaceResult{}, fmt.Errorf("permissions: invalid permission id %d: %w", entry.PermissionID, shared.ErrValidation)
		}
		if _, dup := seen[entry.PermissionID]; dup {
			return ReplaceResult{}, fmt.Errorf("permissions: duplicate permission id %d: %w", entry.PermissionID, shared.ErrValidation)
		}
		seen[entry.PermissionID] = struct{}{}
		ids = append(ids, entry.PermissionID)
	}

	ref, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return ReplaceResult{}, err
	}
	if err := authorizeGrantEdit(actor, ref); err != nil {
		return ReplaceResult{}, err
	}
	if len(ids) > 0 {
		missing, err := s.repo.MissingPermissionIDs(ctx, ids)
		if err != nil {
			return ReplaceResult{}, err
		}
		if len(missing) > 0 {
			return ReplaceResult{}, fmt.Errorf("permissions: unknown permission ids %v: %w", missing, shared.ErrNotFound)
		}
	}

	if err := s.repo.ReplaceRoleGrants(ctx, ref.ID, entries); err != nil {
		return ReplaceResult{}, err
	}

	result := ReplaceResult{Granted: len(entries)}
	for _, entry := range entries {
		if entry.Hidden {
			result.Hidden++
		}
	}

	s.recordAudit(ctx, actor.UserID, "ROLE_GRANTS_REPLACE", ref.ID, map[string]any{
		"granted": result.Granted,
		"hidden":  result.Hidden,
	})
	s.invalidateCache(ctx)
	if ref.Key == shared.RoleKeyAdmin && ref.Global() && s.syncer != nil {
		if err := s.syncer.Propagate(ctx, ref.ID); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "template propagation", slog.Any("error", err), slog.Int64("role_id", ref.ID))
		}
	}
	return result, nil
}

// VisibilityCheck decides whether the calling actor should see the UI element
// behind (resource, action): a satisfying grant must exist and not be hidden.
// Super-admins see everything.
func (s *Service) VisibilityCheck(ctx context.Context, actor authz.Actor, resource, action string) (bool, error) {
	if actor.SuperAdmin {
		return true, nil
	}
	keys := []string{string(authz.Ref{Resource: resource, Action: action}.Key())}
	if parent, ok := authz.ParentOf(resource); ok {
		keys = append(keys, string(authz.Ref{Resource: parent, Action: action}.Key()))
	}
	return s.repo.HasVisibleGrant(ctx, actor.UserID, keys)
}

// Grant read scope: super admins read global roles, tenant admins the roles
// of their own tenant, the synced admin copy included.
func authorizeGrantRead(actor authz.Actor, ref RoleRef) error {
	if actor.SuperAdmin {
		if !ref.Global() {
			return fmt.Errorf("permissions: tenant role grants are read in the tenant: %w", shared.ErrScope)
		}
		return nil
	}
	if ref.Global() {
		return fmt.Errorf("permissions: global roles require super admin: %w", shared.ErrScope)
	}
	if *ref.TenantID != actor.TenantID {
		return fmt.Errorf("permissions: role belongs to another tenant: %w", shared.ErrScope)
	}
	return nil
}

// Grant edit scope: never super_admin; super-admins manage global roles,
// tenant admins their own tenant's roles except the synced admin copy.
func authorizeGrantEdit(actor authz.Actor, ref RoleRef) error {
	if ref.Key == shared.RoleKeySuperAdmin {
		return fmt.Errorf("permissions: role %s is immutable: %w", ref.Key, shared.ErrScope)
	}
	if actor.SuperAdmin {
		if !ref.Global() {
			return fmt.Errorf("permissions: tenant role grants are managed by the tenant: %w", shared.ErrScope)
		}
		return nil
	}
	if ref.Global() {
		return fmt.Errorf("permissions: global roles require super admin: %w", shared.ErrScope)
	}
	if *ref.TenantID != actor.TenantID {
		return fmt.Errorf("permissions: role belongs to another tenant: %w", shared.ErrScope)
	}
	if ref.Key == shared.RoleKeyAdmin {
		return fmt.Errorf("permissions: tenant admin grants are synced from the template: %w", shared.ErrScope)
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
