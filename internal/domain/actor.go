package domain

const RoleAdmin = "admin"

// Actor is the authenticated caller taken from the session.
type Actor struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
