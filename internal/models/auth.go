package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the identity embedded in issued access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
