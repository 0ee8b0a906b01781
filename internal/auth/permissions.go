package auth

// Permission strings understood by the panel.
const (
	// PermAll is the master permission; it implies every other.
	PermAll = "all_permissions"
	// PermReports gates the reports pages and their realtime rooms.
	PermReports = "menu.reports"
)

// Principal represents the authenticated admin for one request or
// connection. It satisfies the hub's Authority interface.
type Principal struct {
	AdminName   string
	Permissions []string
}

// Name returns the admin display name.
func (p *Principal) Name() string {
	return p.AdminName
}

// HasPermission reports whether the principal holds the permission,
// directly or through the master permission.
func (p *Principal) HasPermission(permission string) bool {
	if p == nil {
		return false
	}
	for _, held := range p.Permissions {
		if held == PermAll || held == permission {
			return true
		}
	}
	return false
}
