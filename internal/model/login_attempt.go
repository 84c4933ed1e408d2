package model

import "time"

// LoginAttempt is one row of the login audit trail.
type LoginAttempt struct {
	ID          string
	Email       string
	IPAddress   string
	Success     bool
	AttemptedAt time.Time
}
