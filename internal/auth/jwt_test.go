package auth

import (
	"testing"
	"time"

	"loyalpay/config"

	"github.com/stretchr/testify/require"
)

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessExpiry:  time.Hour,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "loyalpay",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, 42, "a@example.com", "CLIENT")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	require.EqualValues(t, 42, claims.UserID)
	require.Equal(t, "CLIENT", claims.Role)

	other := testJWT()
	other.AccessSecret = "different"
	_, err = ParseAccessToken(other, tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredAccessToken(t *testing.T) {
	cfg := testJWT()
	cfg.AccessExpiry = -time.Minute
	tok, err := GenerateAccessToken(cfg, 1, "a@example.com", "CLIENT")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	cfg := testJWT()
	refresh, err := GenerateRefreshToken(cfg, 9)
	require.NoError(t, err)

	id, err := ParseRefreshToken(cfg, refresh)
	require.NoError(t, err)
	require.EqualValues(t, 9, id)

	_, err = ParseAccessToken(cfg, refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}
