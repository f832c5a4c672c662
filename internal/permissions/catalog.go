package permissions

// Display labels per resource. Parent groups carry capabilities of their own
// so that a grant on the group covers every child through the hierarchy.
var resourceLabels = map[string]string{
	"administration": "Administration",
	"users":          "Users",
	"roles":          "Roles",
	"tenants":        "Tenants",
	"settings":       "Settings",

	"references":     "Reference data",
	"materials":      "Materials",
	"works":          "Works",
	"counterparties": "Counterparties",

	"projects":           "Projects",
	"estimates":          "Estimates",
	"estimate_templates": "Estimate templates",
	"purchases":          "Purchases",
	"reports":            "Reports",
}

type catalogEntry struct {
	resource      string
	action        string
	description   string
	defaultHidden bool
}

// The static capability table. Seeded into the permissions table at startup;
// read-only afterwards.
var catalog = buildCatalog()

func buildCatalog() []catalogEntry {
	crud := []string{"view", "create", "edit", "delete"}
	withManage := map[string]bool{
		"estimates":          true,
		"estimate_templates": true,
		"purchases":          true,
	}
	hiddenByDefault := map[string]bool{
		"tenants.create":  true,
		"tenants.edit":    true,
		"tenants.delete":  true,
		"settings.create": true,
		"settings.delete": true,
	}
	resources := []string{
		"administration", "users", "roles", "tenants", "settings",
		"references", "materials", "works", "counterparties",
		"projects", "estimates", "estimate_templates", "purchases", "reports",
	}

	var entries []catalogEntry
	for _, resource := range resources {
		for _, action := range crud {
			key := resource + "." + action
			entries = append(entries, catalogEntry{
				resource:      resource,
				action:        action,
				description:   resourceLabels[resource] + ": " + action,
				defaultHidden: hiddenByDefault[key],
			})
		}
		if withManage[resource] {
			entries = append(entries, catalogEntry{
				resource:    resource,
				action:      "manage",
				description: resourceLabels[resource] + ": manage any record",
			})
		}
	}
	entries = append(entries, catalogEntry{
		resource:    "reports",
		action:      "export",
		description: "Reports: export",
	})
	return entries
}

// ResourceLabel returns the display label for a catalog resource.
func ResourceLabel(resource string) string {
	if label, ok := resourceLabels[resource]; ok {
		return label
	}
	return resource
}
