package model

import "github.com/golang-jwt/jwt/v5"

// AppClaims are the claims minted into every access token. UserID and Role
// are what AuthMiddleware places on the request context after verification.
type AppClaims struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
