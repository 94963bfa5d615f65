package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carry the staff member in Subject and their admin API role.
// Both token types carry the role: there is no user store to look it up on refresh.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

func (c Claims) Staff() Staff { return Staff{Subject: c.Subject, Role: c.Role} }
