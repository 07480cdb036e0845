package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, time.Hour, service.expiry)
}

func TestGenerateSessionToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	token, err := service.GenerateSessionToken("AB-1234", "2025-06-01", time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "AB-1234", claims.BookingID)
	assert.Equal(t, "2025-06-01", claims.VisitDate)
	assert.Equal(t, SessionToken, claims.TokenType)
	assert.Equal(t, "daypass-booking", claims.Issuer)
	assert.Equal(t, "AB-1234", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestSessionTokenCappedBySessionEnd(t *testing.T) {
	service := NewService(testSecret, 48*time.Hour)
	fixed := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	sessionEnd := time.Date(2025, 6, 2, 22, 59, 59, 0, time.UTC)
	token, err := service.GenerateSessionToken("AB-1234", "2025-06-01", sessionEnd)
	require.NoError(t, err)

	claims, err := service.ExtractClaims(token)
	require.NoError(t, err)
	assert.True(t, sessionEnd.Equal(claims.ExpiresAt.Time))

	_, err = service.GenerateSessionToken("AB-1234", "2025-05-01", fixed.Add(-time.Minute))
	assert.Error(t, err)
}

func TestValidateSessionToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	token, err := service.GenerateSessionToken("AB-1234", "2025-06-01", time.Time{})
	require.NoError(t, err)

	t.Run("Invalid token", func(t *testing.T) {
		_, err := service.ValidateSessionToken("invalid.token.here")
		require.Error(t, err)
		assert.False(t, IsExpired(err))
	})

	t.Run("Wrong secret", func(t *testing.T) {
		_, err := NewService("wrong-secret", time.Hour).ValidateSessionToken(token)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		later := NewService(testSecret, time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ValidateSessionToken(token)
		require.Error(t, err)
		assert.True(t, IsExpired(err))
	})

	t.Run("Wrong type", func(t *testing.T) {
		claims := Claims{
			BookingID: "AB-1234",
			TokenType: "access",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    issuer,
			},
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateSessionToken(forged)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid token type")
	})
}

func TestTokenSigningMethod(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	token, err := service.GenerateSessionToken("AB-1234", "2025-06-01", time.Time{})
	require.NoError(t, err)

	parsedToken, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)

	_, ok := parsedToken.Method.(*jwt.SigningMethodHMAC)
	assert.True(t, ok, "Token should use HMAC signing method")
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	done := make(chan bool)
	errors := make(chan error, 100)

	for i := 0; i < 100; i++ {
		go func() {
			token, err := service.GenerateSessionToken("AB-1234", "2025-06-01", time.Time{})
			if err != nil {
				errors <- err
				done <- true
				return
			}

			if _, err := service.ValidateSessionToken(token); err != nil {
				errors <- err
			}
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}

	close(errors)
	assert.Empty(t, errors)
}
