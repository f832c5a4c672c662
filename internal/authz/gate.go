package authz

import (
	"context"
	"fmt"

	"github.com/smeta-erp/smeta-erp/internal/shared"
)

// Decision captures one gate evaluation. When denied, the diagnostic fields
// name the key(s) that would have satisfied the check.
type Decision struct {
	Allowed     bool
	Matched     Key
	Inherited   bool
	Required    Key
	RequiredAny []Key
	Missing     []Key
}

// Err converts a denial into a *PermissionError; allowed decisions yield nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &PermissionError{Required: d.Required, RequiredAny: d.RequiredAny, Missing: d.Missing}
}

// CheckPermission decides whether the actor may perform action on resource.
// Super-admins always pass; otherwise a direct grant on the resource or a
// grant on its parent group with the same action satisfies the check.
func CheckPermission(actor Actor, resource, action string) Decision {
	ref := Ref{Resource: resource, Action: action}
	if actor.SuperAdmin {
		return Decision{Allowed: true, Matched: ref.Key()}
	}
	key := ref.Key()
	if actor.HasGrant(key) {
		return Decision{Allowed: true, Matched: key}
	}
	if parent, ok := ParentOf(resource); ok {
		parentKey := Ref{Resource: parent, Action: action}.Key()
		if actor.HasGrant(parentKey) {
			return Decision{Allowed: true, Matched: parentKey, Inherited: true}
		}
	}
	return Decision{Required: key}
}

// CheckAnyPermission allows when at least one pair passes on its own,
// reporting the grant that matched. A denial lists every key that would have
// sufficed.
func CheckAnyPermission(actor Actor, refs ...Ref) Decision {
	required := make([]Key, 0, len(refs))
	for _, ref := range refs {
		d := CheckPermission(actor, ref.Resource, ref.Action)
		if d.Allowed {
			return d
		}
		required = append(required, d.Required)
	}
	return Decision{RequiredAny: required}
}

// CheckAllPermissions evaluates every pair independently, without
// short-circuiting, and denies with the complete missing set.
func CheckAllPermissions(actor Actor, refs ...Ref) Decision {
	var missing []Key
	for _, ref := range refs {
		d := CheckPermission(actor, ref.Resource, ref.Action)
		if !d.Allowed {
			missing = append(missing, d.Required)
		}
	}
	if len(missing) > 0 {
		return Decision{Missing: missing}
	}
	return Decision{Allowed: true}
}

// OwnerResolver resolves the owner of the concrete resource under an
// ownership check. It is supplied by the feature module that knows the
// storage of that resource. found=false means the resource does not exist.
type OwnerResolver func(ctx context.Context) (ownerID int64, found bool, err error)

// CheckOwnership allows super-admins and holders of a direct
// "<resource>.manage" grant outright; everyone else must be the resolved
// owner. Resolution failures surface unchanged.
func CheckOwnership(ctx context.Context, actor Actor, resource string, resolve OwnerResolver) error {
	if actor.SuperAdmin {
		return nil
	}
	manageKey := Ref{Resource: resource, Action: "manage"}.Key()
	if actor.HasGrant(manageKey) {
		return nil
	}
	if resolve == nil {
		return fmt.Errorf("authz: owner resolver required for %s", resource)
	}
	ownerID, found, err := resolve(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("authz: %s owner: %w", resource, shared.ErrNotFound)
	}
	if ownerID != actor.UserID {
		return ErrNotOwner
	}
	return nil
}
