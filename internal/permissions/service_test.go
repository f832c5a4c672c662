package permissions

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/shared"
)

type memoryGrantRepo struct {
	roles       map[int64]RoleRef
	permissions map[int64]Permission
	grants      map[int64][]GrantEntry
	nextPermID  int64
	failReplace error
	lastKeys    []string
	visible     bool
}

func newMemoryGrantRepo() *memoryGrantRepo {
	return &memoryGrantRepo{
		roles:       make(map[int64]RoleRef),
		permissions: make(map[int64]Permission),
		grants:      make(map[int64][]GrantEntry),
	}
}

func (r *memoryGrantRepo) addRole(id int64, key string, tenantID *int64) {
	r.roles[id] = RoleRef{ID: id, Key: key, TenantID: tenantID}
}

func (r *memoryGrantRepo) addPermission(key, resource, action string) Permission {
	r.nextPermID++
	p := Permission{ID: r.nextPermID, Key: key, Resource: resource, Action: action}
	r.permissions[p.ID] = p
	return p
}

func (r *memoryGrantRepo) GetRole(ctx context.Context, roleID int64) (RoleRef, error) {
	ref, ok := r.roles[roleID]
	if !ok {
		return RoleRef{}, fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
	}
	return ref, nil
}

func (r *memoryGrantRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms := make([]Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		perms = append(perms, p)
	}
	return perms, nil
}

func (r *memoryGrantRepo) MissingPermissionIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if _, ok := r.permissions[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *memoryGrantRepo) ListRoleGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	var grants []Grant
	for _, entry := range r.grants[roleID] {
		p := r.permissions[entry.PermissionID]
		grants = append(grants, Grant{PermissionID: p.ID, Key: p.Key, Resource: p.Resource, Action: p.Action, Hidden: entry.Hidden})
	}
	return grants, nil
}

func (r *memoryGrantRepo) ReplaceRoleGrants(ctx context.Context, roleID int64, entries []GrantEntry) error {
	if r.failReplace != nil {
		return r.failReplace
	}
	r.grants[roleID] = append([]GrantEntry(nil), entries...)
	return nil
}

func (r *memoryGrantRepo) EnsurePermission(ctx context.Context, p Permission) error {
	for id, existing := range r.permissions {
		if existing.Key == p.Key {
			p.ID = id
			r.permissions[id] = p
			return nil
		}
	}
	r.nextPermID++
	p.ID = r.nextPermID
	r.permissions[p.ID] = p
	return nil
}

func (r *memoryGrantRepo) HasVisibleGrant(ctx context.Context, userID int64, keys []string) (bool, error) {
	r.lastKeys = keys
	return r.visible, nil
}

type stubSyncer struct {
	calls []int64
	err   error
}

func (s *stubSyncer) Propagate(ctx context.Context, templateRoleID int64) error {
	s.calls = append(s.calls, templateRoleID)
	return s.err
}

type stubInvalidator struct{ calls int }

func (s *stubInvalidator) InvalidateAll(ctx context.Context) error {
	s.calls++
	return nil
}

type stubAudit struct {
	logs []shared.AuditLog
	err  error
}

func (s *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

func tenantID(id int64) *int64 { return &id }

func superAdmin() authz.Actor { return authz.NewActor(1, 0, true) }

func tenantAdmin(userID, tenant int64) authz.Actor {
	return authz.NewActor(userID, tenant, false, "roles.edit", "roles.view")
}

func TestReplaceRoleGrantsIsIdempotent(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addRole(10, "estimator", tenantID(3))
	p1 := repo.addPermission("estimates.view", "estimates", "view")
	p2 := repo.addPermission("estimates.edit", "estimates", "edit")
	svc := NewService(repo, nil, nil, nil, nil)

	entries := []GrantEntry{{PermissionID: p1.ID}, {PermissionID: p2.ID, Hidden: true}}
	actor := tenantAdmin(5, 3)

	first, err := svc.ReplaceRoleGrants(context.Background(), actor, 10, entries)
	require.NoError(t, err)
	second, err := svc.ReplaceRoleGrants(context.Background(), actor, 10, entries)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 2, first.Granted)
	require.Equal(t, 1, first.Hidden)

	grants, err := svc.RoleGrants(context.Background(), actor, 10)
	require.NoError(t, err)
	require.Len(t, grants.Entries, 2)
	require.Equal(t, []int64{p1.ID, p2.ID}, grants.PermissionIDs)
	require.Equal(t, []int64{p2.ID}, grants.HiddenPermissionIDs)
}

func TestReplaceRoleGrantsValidation(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addRole(10, "estimator", tenantID(3))
	p1 := repo.addPermission("estimates.view", "estimates", "view")
	svc := NewService(repo, nil, nil, nil, nil)
	actor := tenantAdmin(5, 3)

	_, err := svc.ReplaceRoleGrants(context.Background(), actor, 10, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReplaceRoleGrants(context.Background(), actor, 10, []GrantEntry{{PermissionID: p1.ID}, {PermissionID: p1.ID}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReplaceRoleGrants(context.Background(), actor, 10, []GrantEntry{{PermissionID: 999}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// An empty list is a valid wholesale replacement: it clears the role.
	_, err = svc.ReplaceRoleGrants(context.Background(), actor, 10, []GrantEntry{})
	require.NoError(t, err)
}

func TestReplaceRoleGrantsScopeRules(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addRole(1, shared.RoleKeySuperAdmin, nil)
	repo.addRole(2, shared.RoleKeyAdmin, nil)
	repo.addRole(3, shared.RoleKeyAdmin, tenantID(7))
	repo.addRole(4, "estimator", tenantID(7))
	repo.addRole(5, "estimator", tenantID(8))
	p := repo.addPermission("estimates.view", "estimates", "view")
	svc := NewService(repo, nil, nil, nil, nil)
	entries := []GrantEntry{{PermissionID: p.ID}}

	// super_admin role is immutable for everyone.
	_, err := svc.ReplaceRoleGrants(context.Background(), superAdmin(), 1, entries)
	require.ErrorIs(t, err, shared.ErrScope)

	// Tenant admin copies are governed by template sync.
	_, err = svc.ReplaceRoleGrants(context.Background(), tenantAdmin(5, 7), 3, entries)
	require.ErrorIs(t, err, shared.ErrScope)

	// Cross-tenant edits are rejected regardless of grants.
	_, err = svc.ReplaceRoleGrants(context.Background(), tenantAdmin(5, 7), 5, entries)
	require.ErrorIs(t, err, shared.ErrScope)

	// Tenant admins cannot touch global roles, super admins cannot touch
	// tenant roles directly.
	_, err = svc.ReplaceRoleGrants(context.Background(), tenantAdmin(5, 7), 2, entries)
	require.ErrorIs(t, err, shared.ErrScope)
	_, err = svc.ReplaceRoleGrants(context.Background(), superAdmin(), 4, entries)
	require.ErrorIs(t, err, shared.ErrScope)

	// The allowed paths.
	_, err = svc.ReplaceRoleGrants(context.Background(), superAdmin(), 2, entries)
	require.NoError(t, err)
	_, err = svc.ReplaceRoleGrants(context.Background(), tenantAdmin(5, 7), 4, entries)
	require.NoError(t, err)
}

func TestRoleGrantsReadScopeRules(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addRole(2, shared.RoleKeyAdmin, nil)
	repo.addRole(3, shared.RoleKeyAdmin, tenantID(7))
	repo.addRole(4, "estimator", tenantID(7))
	repo.addRole(5, "estimator", tenantID(8))
	p := repo.addPermission("estimates.view", "estimates", "view")
	repo.grants[5] = []GrantEntry{{PermissionID: p.ID}}
	svc := NewService(repo, nil, nil, nil, nil)

	// Another tenant's grant sets are not disclosed.
	_, err := svc.RoleGrants(context.Background(), tenantAdmin(5, 7), 5)
	require.ErrorIs(t, err, shared.ErrScope)

	// Neither are global roles.
	_, err = svc.RoleGrants(context.Background(), tenantAdmin(5, 7), 2)
	require.ErrorIs(t, err, shared.ErrScope)

	// Own-tenant roles are readable, the synced admin copy included.
	_, err = svc.RoleGrants(context.Background(), tenantAdmin(5, 7), 4)
	require.NoError(t, err)
	_, err = svc.RoleGrants(context.Background(), tenantAdmin(5, 7), 3)
	require.NoError(t, err)

	// Super admins read global roles only.
	_, err = svc.RoleGrants(context.Background(), superAdmin(), 2)
	require.NoError(t, err)
	_, err = svc.RoleGrants(context.Background(), superAdmin(), 4)
	require.ErrorIs(t, err, shared.ErrScope)
}

func TestReplaceTemplateAdminTriggersPropagation(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addRole(2, shared.RoleKeyAdmin, nil)
	repo.addRole(4, "estimator", tenantID(7))
	p := repo.addPermission("users.view", "users", "view")
	syncer := &stubSyncer{}
	cache := &stubInvalidator{}
	audit := &stubAudit{}
	svc := NewService(repo, audit, syncer, cache, nil)

	_, err := svc.ReplaceRoleGrants(context.Background(), superAdmin(), 2, []GrantEntry{{PermissionID: p.ID}})
	require.NoError(t, err)
	require.Equal(t, []int64{2}, syncer.calls)
	require.Equal(t, 1, cache.calls)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "ROLE_GRANTS_REPLACE", audit.logs[0].Action)

	// Non-template roles never trigger propagation.
	_, err = svc.ReplaceRoleGrants(context.Background(), tenantAdmin(5, 7), 4, []GrantEntry{{PermissionID: p.ID}})
	require.NoError(t, err)
	require.Equal(t, []int64{2}, syncer.calls)
}

func TestReplaceRoleGrantsSwallowsSideEffectFailures(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addRole(2, shared.RoleKeyAdmin, nil)
	p := repo.addPermission("users.view", "users", "view")
	syncer := &stubSyncer{err: errors.New("tenant 9 unreachable")}
	audit := &stubAudit{err: errors.New("audit store down")}
	svc := NewService(repo, audit, syncer, nil, nil)

	result, err := svc.ReplaceRoleGrants(context.Background(), superAdmin(), 2, []GrantEntry{{PermissionID: p.ID}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Granted)
}

func TestReplaceRoleGrantsStorageFailureLeavesSetUntouched(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addRole(10, "estimator", tenantID(3))
	p1 := repo.addPermission("estimates.view", "estimates", "view")
	p2 := repo.addPermission("estimates.edit", "estimates", "edit")
	svc := NewService(repo, nil, nil, nil, nil)
	actor := tenantAdmin(5, 3)

	_, err := svc.ReplaceRoleGrants(context.Background(), actor, 10, []GrantEntry{{PermissionID: p1.ID}})
	require.NoError(t, err)

	repo.failReplace = errors.New("connection reset")
	_, err = svc.ReplaceRoleGrants(context.Background(), actor, 10, []GrantEntry{{PermissionID: p2.ID}})
	require.Error(t, err)

	repo.failReplace = nil
	grants, err := svc.RoleGrants(context.Background(), actor, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{p1.ID}, grants.PermissionIDs)
}

func TestEnsureCatalogIsIdempotent(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc := NewService(repo, nil, nil, nil, nil)

	require.NoError(t, svc.EnsureCatalog(context.Background()))
	count := len(repo.permissions)
	require.Greater(t, count, 0)

	require.NoError(t, svc.EnsureCatalog(context.Background()))
	require.Equal(t, count, len(repo.permissions))
}

func TestVisibilityCheck(t *testing.T) {
	repo := newMemoryGrantRepo()
	svc := NewService(repo, nil, nil, nil, nil)

	visible, err := svc.VisibilityCheck(context.Background(), superAdmin(), "users", "edit")
	require.NoError(t, err)
	require.True(t, visible)
	require.Nil(t, repo.lastKeys, "super admin must not hit the store")

	repo.visible = true
	actor := authz.NewActor(5, 3, false)
	visible, err = svc.VisibilityCheck(context.Background(), actor, "users", "edit")
	require.NoError(t, err)
	require.True(t, visible)
	require.Equal(t, []string{"users.edit", "administration.edit"}, repo.lastKeys)
}

func TestListGroupedSortsByLabel(t *testing.T) {
	repo := newMemoryGrantRepo()
	repo.addPermission("works.view", "works", "view")
	repo.addPermission("materials.edit", "materials", "edit")
	repo.addPermission("materials.view", "materials", "view")
	svc := NewService(repo, nil, nil, nil, nil)

	groups, err := svc.ListGrouped(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "materials", groups[0].Resource)
	require.Equal(t, "Materials", groups[0].Label)
	require.Equal(t, "materials.edit", groups[0].Permissions[0].Key)
	require.Equal(t, "materials.view", groups[0].Permissions[1].Key)
	require.Equal(t, "works", groups[1].Resource)
}
