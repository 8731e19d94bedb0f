package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// Readers may use the read-only dashboard routes. Writers may change leads and upload files.
var (
	Readers = []string{RoleAdmin, RoleOperator, RoleViewer}
	Writers = []string{RoleAdmin, RoleOperator}
)
