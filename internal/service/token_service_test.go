package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records/internal/models"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims(user models.UserRef, role models.UserRole) models.JWTClaims {
	return models.JWTClaims{
		UserID: user,
		Email:  "admin@universidad.edu",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService("secret")
	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims(1, models.RoleAdmin))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.UserRef(1), claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService("secret")
	expired := validClaims(1, models.RoleAdmin)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims(1, models.RoleAdmin)),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), expired),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, []byte("secret"), validClaims(1, models.RoleAdmin)),
		"no user":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims(0, models.RoleAdmin)),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
