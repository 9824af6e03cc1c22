package models

const RoleAdmin = "ADMIN"

// Principal is the authenticated caller resolved by the auth middleware.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
