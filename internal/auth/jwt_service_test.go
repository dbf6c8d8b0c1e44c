package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serviqo/serviqo/internal/models"
)

func newTestJWTService(t *testing.T, clock *time.Time) *JWTService {
	t.Helper()
	service, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "serviqo",
		Clock:  func() time.Time { return *clock },
	})
	require.NoError(t, err)
	return service
}

func TestJWTRoundTrip(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	service := newTestJWTService(t, &clock)

	token, err := service.GenerateAccessToken(AccessTokenInput{
		UserID:    "user-1",
		Email:     "admin@example.com",
		Role:      models.RoleAdmin,
		SessionID: "session-1",
	})
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "admin@example.com", claims.Email)
	require.Equal(t, string(models.RoleAdmin), claims.Role)
	require.Equal(t, "session-1", claims.SessionID)
}

func TestJWTExpiry(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	service := newTestJWTService(t, &clock)

	token, err := service.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	clock = clock.Add(16 * time.Minute)
	_, err = service.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTIssuerMismatch(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestJWTService(t, &clock)

	other, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "someone-else",
		Clock:  func() time.Time { return clock },
	})
	require.NoError(t, err)

	token, err := other.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	_, err = issuer.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTTamperedToken(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	service := newTestJWTService(t, &clock)

	token, err := service.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token + "x")
	require.Error(t, err)

	_, err = service.ValidateAccessToken("")
	require.Error(t, err)
}

func TestJWTRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}
