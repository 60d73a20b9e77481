package entities

// Role of a user, as issued by the auth collaborator
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a dormitory resident
type User struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Name     string `json:"name" db:"name"`
	Surname  string `json:"surname" db:"surname"`
	Email    string `json:"email" db:"email"`
	Role     Role   `json:"role" db:"role"`
}

// Summary returns the display fields embedded in listed reservations
func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// UserSummary is the user view embedded in a reservation
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SessionUser is the identity carried by the session cookie
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role,omitempty"`
}

// IsAdmin reports whether the session holder has the admin role
func (u *SessionUser) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanManage reports whether the session holder may delete the reservation
func (u *SessionUser) CanManage(r *Reservation) bool {
	if u == nil || r == nil {
		return false
	}
	return u.IsAdmin() || u.ID == r.UserID
}

// AdminStats aggregates counts for the admin dashboard
type AdminStats struct {
	UserCount              int `json:"userCount"`
	ApplianceCount         int `json:"applianceCount"`
	ActiveReservationCount int `json:"reservationCount"`
}
