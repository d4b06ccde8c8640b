package model

import "github.com/golang-jwt/jwt/v5"

// Role is the caller role asserted by the identity provider
type Role string

const (
	RoleAdmin       Role = "admin"       // dashboard and survey management
	RoleParticipant Role = "participant" // may submit responses
)

// CallerClaims are the JWT claims minted by the identity provider
type CallerClaims struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Caller is the approved identity attached to a request
type Caller struct {
	TenantID string
	UserID   string
	Role     Role
}
