package auth

import "time"

// User represents an operator account with access to the telemetry service.
// NOTE: This is the minimal structure required for the authentication layer.
type User struct {
	ID           uint64    // Unique immutable identifier
	Username     string    // Unique username (case-insensitive)
	PasswordHash string    // bcrypt hashed password (60 chars)
	CreatedAt    time.Time // Account creation timestamp (server time)
	LastLogin    time.Time // Last successful login
	IsAdmin      bool      // Administrative privileges flag
}

// GetRole returns the role name used in JWT claims.
func (u *User) GetRole() string {
	if u.IsAdmin {
		return "admin"
	}
	return "observer"
}
