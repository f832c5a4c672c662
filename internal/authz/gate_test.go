package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smeta-erp/smeta-erp/internal/shared"
)

func TestCheckPermissionSuperAdminAlwaysAllows(t *testing.T) {
	actor := NewActor(1, 0, true)
	for _, ref := range []Ref{
		{"users", "read"},
		{"estimates", "delete"},
		{"unknown_resource", "anything"},
	} {
		d := CheckPermission(actor, ref.Resource, ref.Action)
		require.True(t, d.Allowed, "super admin denied %s", ref.Key())
	}
}

func TestCheckPermissionDirectGrant(t *testing.T) {
	actor := NewActor(7, 2, false, "materials.edit")
	d := CheckPermission(actor, "materials", "edit")
	require.True(t, d.Allowed)
	require.Equal(t, Key("materials.edit"), d.Matched)
	require.False(t, d.Inherited)
}

func TestCheckPermissionInheritedFromParentGroup(t *testing.T) {
	actor := NewActor(7, 2, false, "administration.read")
	d := CheckPermission(actor, "users", "read")
	require.True(t, d.Allowed)
	require.Equal(t, Key("administration.read"), d.Matched)
	require.True(t, d.Inherited)

	denied := CheckPermission(actor, "users", "delete")
	require.False(t, denied.Allowed)
	require.Equal(t, Key("users.delete"), denied.Required)
}

func TestCheckPermissionParentGrantOnlyCoversSameAction(t *testing.T) {
	actor := NewActor(7, 2, false, "projects.view")
	require.True(t, CheckPermission(actor, "estimates", "view").Allowed)
	require.False(t, CheckPermission(actor, "estimates", "edit").Allowed)
	// A child grant never flows upward.
	child := NewActor(8, 2, false, "estimates.view")
	require.False(t, CheckPermission(child, "projects", "view").Allowed)
}

func TestCheckAnyPermission(t *testing.T) {
	actor := NewActor(7, 2, false, "references.view")
	d := CheckAnyPermission(actor, Ref{"estimates", "edit"}, Ref{"works", "view"})
	require.True(t, d.Allowed)
	require.Equal(t, Key("references.view"), d.Matched)
	require.True(t, d.Inherited)

	denied := CheckAnyPermission(actor, Ref{"estimates", "edit"}, Ref{"users", "delete"})
	require.False(t, denied.Allowed)
	require.Equal(t, []Key{"estimates.edit", "users.delete"}, denied.RequiredAny)
}

func TestCheckAllPermissionsCollectsEveryMiss(t *testing.T) {
	actor := NewActor(7, 2, false, "users.view")
	d := CheckAllPermissions(actor, Ref{"users", "view"}, Ref{"users", "edit"}, Ref{"roles", "edit"})
	require.False(t, d.Allowed)
	require.Equal(t, []Key{"users.edit", "roles.edit"}, d.Missing)

	full := NewActor(7, 2, false, "users.view", "administration.edit")
	require.True(t, CheckAllPermissions(full, Ref{"users", "view"}, Ref{"users", "edit"}, Ref{"roles", "edit"}).Allowed)
}

func TestCheckOwnership(t *testing.T) {
	ctx := context.Background()
	resolveOwner := func(owner int64, found bool, err error) OwnerResolver {
		return func(context.Context) (int64, bool, error) { return owner, found, err }
	}

	super := NewActor(1, 0, true)
	require.NoError(t, CheckOwnership(ctx, super, "estimates", nil))

	manager := NewActor(2, 1, false, "estimates.manage")
	require.NoError(t, CheckOwnership(ctx, manager, "estimates", resolveOwner(99, true, nil)))

	owner := NewActor(3, 1, false)
	require.NoError(t, CheckOwnership(ctx, owner, "estimates", resolveOwner(3, true, nil)))

	stranger := NewActor(4, 1, false)
	err := CheckOwnership(ctx, stranger, "estimates", resolveOwner(3, true, nil))
	require.ErrorIs(t, err, ErrNotOwner)

	err = CheckOwnership(ctx, stranger, "estimates", resolveOwner(0, false, nil))
	require.ErrorIs(t, err, shared.ErrNotFound)

	boom := errors.New("storage down")
	err = CheckOwnership(ctx, stranger, "estimates", resolveOwner(0, false, boom))
	require.ErrorIs(t, err, boom)
}

func TestNormalizeGrantShapes(t *testing.T) {
	cases := []struct {
		in   any
		want Key
		ok   bool
	}{
		{"users.read", "users.read", true},
		{"  Users.Read ", "users.read", true},
		{Ref{Resource: "Roles", Action: "EDIT"}, "roles.edit", true},
		{Key("estimates.view"), "estimates.view", true},
		{"malformed", "", false},
		{"", "", false},
		{42, "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeGrant(tc.in)
		require.Equal(t, tc.ok, ok, "input %v", tc.in)
		require.Equal(t, tc.want, got, "input %v", tc.in)
	}
}

func TestParentOf(t *testing.T) {
	parent, ok := ParentOf("purchases")
	require.True(t, ok)
	require.Equal(t, "projects", parent)

	parent, ok = ParentOf("counterparties")
	require.True(t, ok)
	require.Equal(t, "references", parent)

	_, ok = ParentOf("administration")
	require.False(t, ok)
	_, ok = ParentOf("nonexistent")
	require.False(t, ok)
}
