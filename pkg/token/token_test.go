package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/config"
	"FamilyWell/pkg/errors"
)

func setup(t *testing.T) {
	t.Helper()
	config.Cfg.JWTSecret = "test-secret-for-token-package"
	config.Cfg.JWTExpireMinutes = 30
	config.Cfg.JWTRefreshDays = 7
	require.NoError(t, Init())
}

func TestGenerateAndValidateRefresh(t *testing.T) {
	setup(t)

	pair, err := GenerateTokenPair(42)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshID)
	assert.Equal(t, 30*60, pair.ExpiresIn)

	uid, jti, err := ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
	assert.Equal(t, pair.RefreshID, jti)
}

func TestAccessTokenIsNotRefreshToken(t *testing.T) {
	setup(t)

	pair, err := GenerateTokenPair(7)
	require.NoError(t, err)

	_, _, err = ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, errors.ErrInvalidTokenType)
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("1001")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), id)

	id, err = ParseIdentity(float64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = ParseIdentity("abc")
	assert.ErrorIs(t, err, errors.ErrUserIDNotFound)

	_, err = ParseIdentity(nil)
	assert.ErrorIs(t, err, errors.ErrUserIDNotFound)
}
