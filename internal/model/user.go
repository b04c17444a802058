package model

import "time"

// User represents a library account.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles. Administrators manage the catalog, decide requests and manage
// accounts; members search, request and borrow.
const (
	RoleAdmin  = "administrator"
	RoleMember = "member"
)

// ValidRole reports whether role names a known role.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
