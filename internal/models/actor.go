package models

// Actor is the authenticated caller of a service method.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsStaff reports whether the caller may manage other users' records.
func (a Actor) IsStaff() bool { return a.Role == RoleAdmin || a.Role == RoleManager }
