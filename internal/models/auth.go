package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the payload of access tokens issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Viewer converts the claims into a calendar viewer.
func (c *JWTClaims) Viewer() Viewer {
	if c == nil {
		return Viewer{}
	}
	return Viewer{UserID: c.UserID, Role: c.Role}
}
