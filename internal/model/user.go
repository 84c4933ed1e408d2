// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// Email is stored lowercased so uniqueness and lookups are case-insensitive.
// PasswordHash never leaves the server: it is tagged json:"-" so it cannot be
// serialised into an API response by accident. Accounts created through
// GitHub sign-in have an empty PasswordHash and can only log in that way.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Newsletter   bool       `json:"newsletter"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
