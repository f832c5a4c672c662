package roles

import "time"

// Role represents a role for management. A nil TenantID marks a global role;
// the global "admin" role is the template propagated to every tenant.
type Role struct {
	ID          int64
	Key         string
	Name        string
	Description string
	TenantID    *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Global reports whether the role is tenant-less.
func (r Role) Global() bool { return r.TenantID == nil }

// CreateRoleInput carries the caller-supplied fields for role creation. Key
// and tenant are fixed at creation and never change afterwards.
type CreateRoleInput struct {
	Key         string `json:"key" validate:"required,min=2,max=64,lowercase"`
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Description string `json:"description" validate:"max=512"`
}

// UpdateRoleInput carries the mutable fields of a role.
type UpdateRoleInput struct {
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Description string `json:"description" validate:"max=512"`
}
