package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/prenos/internal/model"
)

var carrier = &model.User{ID: 4, Username: "marko", Role: model.RoleCarrier}

func TestGenerateAndValidate(t *testing.T) {
	iss := Issuer{Secret: "test-secret-key", TTL: time.Hour}

	token, issued, err := iss.Generate(carrier, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := iss.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(4), claims.UserID)
	assert.Equal(t, "marko", claims.Username)
	assert.Equal(t, model.RoleCarrier, claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateWrongSecret(t *testing.T) {
	token, _, err := Issuer{Secret: "secret1"}.Generate(carrier, time.Now())
	require.NoError(t, err)

	_, err = Issuer{Secret: "secret2"}.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := Issuer{Secret: "secret"}.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	iss := Issuer{Secret: "secret", TTL: time.Minute}
	token, _, err := iss.Generate(carrier, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = iss.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDefaultTTL(t *testing.T) {
	now := time.Now()
	_, claims, err := Issuer{Secret: "secret"}.Generate(carrier, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(DefaultTokenTTL), claims.ExpiresAt.Time, time.Second)
}

func TestValidateUnknownRole(t *testing.T) {
	claims := Claims{
		UserID: 1,
		Role:   "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = Issuer{Secret: "secret"}.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: model.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Issuer{Secret: "secret"}.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
