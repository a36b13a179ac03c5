package models

import "time"

// User is the persisted credential record. PasswordHash never leaves the
// server; callers outside the core see Profile.
//
// ResetToken and ResetTokenExpiry are set together while a password reset
// is pending and are both empty otherwise.
type User struct {
	ID               string
	Name             string
	Email            string
	PasswordHash     string
	ResetToken       string
	ResetTokenExpiry time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPendingReset reports whether a reset token is stored and still valid at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetToken != "" && u.ResetTokenExpiry.After(now)
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Profile is what register, login and profile lookups return.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
