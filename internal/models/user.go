package models

import "time"

// User is the stored account record. It holds secrets and is never written
// to an API response directly; use Profile.
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"password"`
	Role             string     `json:"role"` // admin, manager or employee
	Department       string     `json:"department"`
	Phone            string     `json:"phone,omitempty"`
	Status           string     `json:"status"` // active or inactive
	APIKey           string     `json:"api_key"`
	TOTPSecret       string     `json:"totp_secret,omitempty"`
	TempTOTPSecret   string     `json:"temp_totp_secret,omitempty"` // pending 2FA setup
	ResetTokenHash   string     `json:"reset_token_hash,omitempty"`
	ResetTokenExpiry *time.Time `json:"reset_token_expiry,omitempty"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	Meta
}

func (u *User) RecordID() string { return u.ID }

func (u *User) IsActive() bool { return u.Status == StatusActive && !u.IsDeleted() }

func (u *User) Has2FA() bool { return u.TOTPSecret != "" }

// UserProfile is the public view of a user
type UserProfile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Department string     `json:"department"`
	Phone      string     `json:"phone,omitempty"`
	Status     string     `json:"status"`
	Has2FA     bool       `json:"has_2fa"`
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
		Phone:      u.Phone,
		Status:     u.Status,
		Has2FA:     u.Has2FA(),
		CreatedAt:  u.CreatedAt,
		LastLogin:  u.LastLogin,
	}
}

func Profiles(users []*User) []UserProfile {
	out := make([]UserProfile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	Role       string `json:"role" validate:"required,oneof=admin manager employee"`
	Department string `json:"department"`
	Phone      string `json:"phone"`
}

// UpdateUserRequest is a partial update; nil fields are left unchanged
type UpdateUserRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	Password   *string `json:"password,omitempty"`
	Role       *string `json:"role,omitempty" validate:"omitempty,oneof=admin manager employee"`
	Department *string `json:"department,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

type UserStatistics struct {
	TotalUsers    int            `json:"total_users"`
	ActiveUsers   int            `json:"active_users"`
	InactiveUsers int            `json:"inactive_users"`
	Admins        int            `json:"admins"`
	Managers      int            `json:"managers"`
	Employees     int            `json:"employees"`
	Departments   map[string]int `json:"departments"`
}
