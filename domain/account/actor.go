package account

import "slices"

// Actor is the requester a permission decision is made for. A nil *Actor is
// the anonymous requester.
type Actor struct {
	ID          uint     `json:"id"`
	Username    string   `json:"username"`
	Staff       bool     `json:"is_staff"`
	Superuser   bool     `json:"is_superuser"`
	Permissions []string `json:"permissions"`
}

// NewActor builds an actor from a user and its effective permissions.
func NewActor(u *User, permissions []string) *Actor {
	return &Actor{
		ID:          u.ID,
		Username:    u.Username,
		Staff:       u.IsStaff,
		Superuser:   u.IsSuperuser,
		Permissions: permissions,
	}
}

// IsAuthenticated reports whether a is a signed-in user.
func (a *Actor) IsAuthenticated() bool {
	return a != nil && a.ID != 0
}

// HasPerm reports whether a holds codename. Superusers hold every permission.
func (a *Actor) HasPerm(codename string) bool {
	if !a.IsAuthenticated() {
		return false
	}
	if a.Superuser {
		return true
	}
	return slices.Contains(a.Permissions, codename)
}
