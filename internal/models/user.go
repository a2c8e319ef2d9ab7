package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// User is resolved from the identity provider; it is never stored here.
type User struct {
	ID            string   `json:"id"`
	FullName      string   `json:"full_name"`
	Email         string   `json:"email"`
	Role          UserRole `json:"role"`
	EmailVerified bool     `json:"email_verified"`
}

// CanManageTests reports whether the role may read results of tests it owns.
func (r UserRole) CanManageTests() bool {
	return r == RoleTeacher || r == RoleAdmin
}
