package authz

// The resource hierarchy is process-wide read-only state: a grant on a parent
// group satisfies the same action on each of its children. A resource belongs
// to at most one parent.
var resourceParents = map[string]string{
	"users":    "administration",
	"roles":    "administration",
	"tenants":  "administration",
	"settings": "administration",

	"materials":      "references",
	"works":          "references",
	"counterparties": "references",

	"estimates":          "projects",
	"estimate_templates": "projects",
	"purchases":          "projects",
	"reports":            "projects",
}

// ParentOf returns the parent group whose children include resource.
func ParentOf(resource string) (string, bool) {
	parent, ok := resourceParents[resource]
	return parent, ok
}
