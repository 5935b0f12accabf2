package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the role name carried in access tokens.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStudent UserRole = "STUDENT"
	RoleTeacher UserRole = "TEACHER"
)

// JWTClaims is the access token payload. Tokens are issued by the identity
// service; this API only verifies them.
type JWTClaims struct {
	UserID UserRef  `json:"sub_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
