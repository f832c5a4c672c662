// Package permissions holds the capability catalog and the role grant store.
package permissions

// Permission represents an atomic capability, keyed "<resource>.<action>".
type Permission struct {
	ID            int64
	Key           string
	Resource      string
	Action        string
	Description   string
	DefaultHidden bool
}

// Grant is one role-permission association with its hidden overlay. The
// hidden flag is a UI-discoverability hint only; enforcement never reads it.
type Grant struct {
	PermissionID int64
	Key          string
	Resource     string
	Action       string
	Hidden       bool
}

// RoleGrants is the full grant set of a role plus derived id sets.
type RoleGrants struct {
	RoleID              int64
	Entries             []Grant
	PermissionIDs       []int64
	HiddenPermissionIDs []int64
}

// GrantEntry is one element of a wholesale grant replacement.
type GrantEntry struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
	Hidden       bool  `json:"hidden"`
}

// ReplaceResult reports how many grants a replacement applied.
type ReplaceResult struct {
	Granted int
	Hidden  int
}

// Group is the catalog of one resource with its display metadata.
type Group struct {
	Resource    string
	Label       string
	Permissions []Permission
}

// RoleRef is the minimal role projection the grant store needs: scope and
// reserved-key detection.
type RoleRef struct {
	ID       int64
	Key      string
	TenantID *int64
}

// Global reports whether the role is tenant-less.
func (r RoleRef) Global() bool {
	return r.TenantID == nil
}
