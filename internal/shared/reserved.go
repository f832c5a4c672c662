package shared

// Reserved role keys.
const (
	// RoleKeySuperAdmin is globally unique and immutable; it is never listed
	// for tenants and never editable by anyone.
	RoleKeySuperAdmin = "super_admin"
	// RoleKeyAdmin exists once as a tenant-less template and once per tenant.
	// The tenant copies are governed by template sync, never edited directly.
	RoleKeyAdmin = "admin"
)
