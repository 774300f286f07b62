package user

// Role is the derived access tier of a user. It is computed per request and never persisted.
type Role int

const (
	RoleStandard Role = iota
	RolePremium
	RoleAdmin
	RoleBanned
)

func (r Role) String() string {
	switch r {
	case RoleBanned:
		return "banned"
	case RoleAdmin:
		return "admin"
	case RolePremium:
		return "premium"
	default:
		return "standard"
	}
}

// Elevated reports roles that bypass the daily quota and platform restriction.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RolePremium
}
