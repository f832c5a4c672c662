// Package authz implements the authorization gate: pure decision functions
// over an actor's grant set, with hierarchical resource inheritance.
package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Key is the canonical tagged form of a permission identifier,
// "<resource>.<action>" in lower case. All comparison logic runs on Keys;
// mixed caller-supplied shapes are normalized before they reach the gate.
type Key string

// Ref is the structured form of a permission identifier.
type Ref struct {
	Resource string
	Action   string
}

// Key returns the canonical key for the reference.
func (r Ref) Key() Key {
	return Key(strings.ToLower(strings.TrimSpace(r.Resource)) + "." + strings.ToLower(strings.TrimSpace(r.Action)))
}

// ParseKey splits a canonical key back into its reference form.
func ParseKey(k Key) (Ref, bool) {
	resource, action, ok := strings.Cut(string(k), ".")
	if !ok || resource == "" || action == "" {
		return Ref{}, false
	}
	return Ref{Resource: resource, Action: action}, true
}

// NormalizeGrant coerces the shapes permission identifiers arrive in — plain
// strings or structured references — into one Key. Reports false for values
// that cannot name a permission.
func NormalizeGrant(v any) (Key, bool) {
	switch g := v.(type) {
	case Key:
		return normalizeString(string(g))
	case string:
		return normalizeString(g)
	case Ref:
		k := g.Key()
		if _, ok := ParseKey(k); !ok {
			return "", false
		}
		return k, true
	case fmt.Stringer:
		return normalizeString(g.String())
	default:
		return "", false
	}
}

func normalizeString(s string) (Key, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	k := Key(s)
	if _, ok := ParseKey(k); !ok {
		return "", false
	}
	return k, true
}

// Actor is the authenticated caller as supplied by the authentication layer:
// identity, tenant membership, super-admin flag and the granted permission
// keys. The hidden overlay on grants never reaches this type.
type Actor struct {
	UserID     int64
	TenantID   int64
	SuperAdmin bool
	grants     map[Key]struct{}
}

// NewActor builds an actor, normalizing every supplied grant. Values that do
// not normalize to a permission key are dropped.
func NewActor(userID, tenantID int64, superAdmin bool, grants ...any) Actor {
	set := make(map[Key]struct{}, len(grants))
	for _, g := range grants {
		if k, ok := NormalizeGrant(g); ok {
			set[k] = struct{}{}
		}
	}
	return Actor{UserID: userID, TenantID: tenantID, SuperAdmin: superAdmin, grants: set}
}

// HasGrant reports whether the actor holds the exact key.
func (a Actor) HasGrant(k Key) bool {
	_, ok := a.grants[k]
	return ok
}

// GrantKeys returns the actor's normalized grant keys.
func (a Actor) GrantKeys() []Key {
	keys := make([]Key, 0, len(a.grants))
	for k := range a.grants {
		keys = append(keys, k)
	}
	return keys
}

// ErrNotOwner indicates an ownership check against a resource owned by
// someone else.
var ErrNotOwner = errors.New("authz: not resource owner")

// PermissionError reports a gate denial together with the diagnostic keys the
// caller was missing.
type PermissionError struct {
	Required    Key
	RequiredAny []Key
	Missing     []Key
}

func (e *PermissionError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("permission denied: missing %s", joinKeys(e.Missing))
	case len(e.RequiredAny) > 0:
		return fmt.Sprintf("permission denied: requires any of %s", joinKeys(e.RequiredAny))
	default:
		return fmt.Sprintf("permission denied: requires %s", e.Required)
	}
}

func joinKeys(keys []Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
