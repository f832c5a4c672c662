package tenants

import "time"

// Tenant is an isolation boundary owning roles and user memberships.
type Tenant struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}
