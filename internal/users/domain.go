package users

import "time"

// User is an authenticated principal. SuperAdmin bypasses all permission
// checks; TenantID scopes role membership and administration rights.
type User struct {
	ID         int64
	Email      string
	Name       string
	TenantID   int64
	SuperAdmin bool
	CreatedAt  time.Time
}

// EffectiveGrant is one permission a user holds through any of their roles.
// Hidden is true only when every role granting the permission marks it hidden.
type EffectiveGrant struct {
	PermissionID int64  `json:"permission_id"`
	Key          string `json:"key"`
	Resource     string `json:"resource"`
	Action       string `json:"action"`
	Hidden       bool   `json:"hidden"`
}

// GrantGroup collects a user's grants for one resource.
type GrantGroup struct {
	Resource string           `json:"resource"`
	Label    string           `json:"label"`
	Grants   []EffectiveGrant `json:"grants"`
}

// UserGrants is the grouped/visible/hidden partition of a user's grant set.
type UserGrants struct {
	UserID     int64        `json:"user_id"`
	Groups     []GrantGroup `json:"groups"`
	VisibleKey []string     `json:"visible_keys"`
	HiddenKey  []string     `json:"hidden_keys"`
}
