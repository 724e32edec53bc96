package users

import "time"

// Member is a user as seen from one firm.
type Member struct {
	UserID   int64     `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	RoleID   int64     `json:"role_id,omitempty"`
	RoleName string    `json:"role_name,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// InviteInput carries the fields of a membership invitation.
type InviteInput struct {
	Email  string
	Name   string
	RoleID int64
}
