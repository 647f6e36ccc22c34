package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestNewValidator_RequiresSecret(t *testing.T) {
	_, err := NewValidator(Config{})
	assert.Error(t, err)

	v, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestValidateToken_Valid(t *testing.T) {
	v, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)

	orgID := uuid.New().String()
	userID := uuid.New().String()

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":     "user-123",
		"org_id":  orgID,
		"user_id": userID,
		"role":    "admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.ValidateToken(context.Background(), tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Sub)
	assert.Equal(t, orgID, claims.OrgID)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateToken_Expired(t *testing.T) {
	v, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":    "user-123",
		"org_id": uuid.New().String(),
		"exp":    time.Now().Add(-time.Hour).Unix(),
	})

	_, err = v.ValidateToken(context.Background(), tokenString)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	v, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)

	tokenString := signToken(t, "other-secret", jwt.MapClaims{
		"sub":    "user-123",
		"org_id": uuid.New().String(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.ValidateToken(context.Background(), tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongSigningMethod(t *testing.T) {
	v, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)

	// alg=none style tokens must be rejected
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":    "user-123",
		"org_id": uuid.New().String(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_MissingExpiration(t *testing.T) {
	v, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub":    "user-123",
		"org_id": uuid.New().String(),
	})

	_, err = v.ValidateToken(context.Background(), tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_MissingOrgID(t *testing.T) {
	v, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)

	tokenString := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.ValidateToken(context.Background(), tokenString)
	assert.ErrorIs(t, err, ErrMissingOrgID)
}

func TestValidateToken_IssuerCheck(t *testing.T) {
	v, err := NewValidator(Config{Secret: testSecret, Issuer: "modelmux"})
	require.NoError(t, err)

	t.Run("matching issuer", func(t *testing.T) {
		tokenString := signToken(t, testSecret, jwt.MapClaims{
			"sub":    "user-123",
			"org_id": uuid.New().String(),
			"iss":    "modelmux",
			"exp":    time.Now().Add(time.Hour).Unix(),
		})

		_, err := v.ValidateToken(context.Background(), tokenString)
		assert.NoError(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		tokenString := signToken(t, testSecret, jwt.MapClaims{
			"sub":    "user-123",
			"org_id": uuid.New().String(),
			"iss":    "someone-else",
			"exp":    time.Now().Add(time.Hour).Unix(),
		})

		_, err := v.ValidateToken(context.Background(), tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
