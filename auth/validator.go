// Package auth validates the HS256 JWTs used by the admin API. Tokens carry
// the tenant in an org_id claim; every admin operation is scoped to it.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sheetwise/modelmux/middleware"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrMissingOrgID is returned when the token carries no org_id claim
	ErrMissingOrgID = errors.New("missing org_id claim")
)

// tokenClaims is the JWT payload shape this service issues and accepts
type tokenClaims struct {
	jwt.RegisteredClaims
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Validator validates HS256-signed JWT tokens against a shared secret
type Validator struct {
	secret []byte
	issuer string
}

// Config holds configuration for Validator
type Config struct {
	Secret string
	Issuer string
}

// NewValidator creates a new JWT validator
func NewValidator(config Config) (*Validator, error) {
	if config.Secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &Validator{
		secret: []byte(config.Secret),
		issuer: config.Issuer,
	}, nil
}

// ValidateToken validates a JWT token and returns claims
func (v *Validator) ValidateToken(_ context.Context, tokenString string) (*middleware.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.OrgID == "" {
		return nil, ErrMissingOrgID
	}

	return &middleware.Claims{
		Sub:    claims.Subject,
		OrgID:  claims.OrgID,
		UserID: claims.UserID,
		Role:   claims.Role,
	}, nil
}
