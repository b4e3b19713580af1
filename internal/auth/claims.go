// Package auth verifies the session bearer presented to the usage-gated
// feature routes.
package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the session token payload. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}
