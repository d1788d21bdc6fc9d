package domain

import "time"

// User represents an account that can authenticate and join research groups.
type User struct {
	ID           int64
	Username     string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}
