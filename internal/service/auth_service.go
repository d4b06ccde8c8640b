package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pulse/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingClaim = errors.New("token is missing tenant, user or role")
)

// AuthService validates identity tokens minted by the identity provider. Survey permissions
// are decided there; this service only checks the signature and extracts the caller.
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService creates a new auth service
func NewAuthService(secret string) *AuthService {
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}
	return &AuthService{
		jwtSecret: []byte(secret),
	}
}

// ValidateToken validates a JWT and returns the caller it identifies
func (s *AuthService) ValidateToken(tokenString string) (*model.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.CallerClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.CallerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == "" || claims.UserID == "" {
		return nil, ErrMissingClaim
	}
	if claims.Role != model.RoleAdmin && claims.Role != model.RoleParticipant {
		return nil, ErrMissingClaim
	}

	return &model.Caller{
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Role:     claims.Role,
	}, nil
}

// IssueToken signs a token for caller. Used by the seed tool and tests in place of the
// identity provider. ttl <= 0 issues a token without expiry.
func (s *AuthService) IssueToken(caller model.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &model.CallerClaims{
		TenantID: caller.TenantID,
		UserID:   caller.UserID,
		Role:     caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Subject:  caller.UserID,
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
