package models

import "time"

// Credential holds a user's external-service login. Username and password
// arrive already decrypted from the credential collaborator and are opaque
// to this core.
type Credential struct {
	UserID       string     `json:"user_id"`
	Service      string     `json:"service"`
	Username     string     `json:"username"`
	Password     string     `json:"-"`
	Valid        bool       `json:"valid"`
	LastVerified *time.Time `json:"last_verified,omitempty"`
}
