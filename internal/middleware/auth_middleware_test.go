package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoponpass/daypass-backend/pkg/jwt"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-session-secret-key-123456789", time.Hour)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func sessionEcho(c *gin.Context) {
	sessionCtx, exists := GetSessionContext(c)
	c.JSON(http.StatusOK, gin.H{"has_session": exists, "booking_id": sessionCtx.BookingID})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequireSession_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.GET("/protected", RequireSession(jwtService, testLogger()), sessionEcho)

	token, err := jwtService.GenerateSessionToken("AB-1234", "2025-06-01", time.Time{})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AB-1234", decode(t, w)["booking_id"])
}

func TestRequireSession_Rejections(t *testing.T) {
	jwtService := setupTestJWTService()

	expired := jwt.NewService("test-session-secret-key-123456789", time.Minute)
	expiredToken, err := expired.GenerateSessionToken("AB-1234", "2025-06-01", time.Now().Add(time.Second))
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "MISSING_AUTH_HEADER"},
		{"wrong scheme", "Basic abc", "MISSING_AUTH_HEADER"},
		{"empty bearer", "Bearer   ", "MISSING_AUTH_HEADER"},
		{"garbage token", "Bearer not.a.token", "INVALID_TOKEN"},
		{"expired token", "Bearer " + expiredToken, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/protected", RequireSession(jwtService, testLogger()), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
			})

			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestOptionalSession(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.POST("/pickup", OptionalSession(jwtService, testLogger()), sessionEcho)

	token, err := jwtService.GenerateSessionToken("AB-1234", "2025-06-01", time.Time{})
	require.NoError(t, err)

	t.Run("valid token attaches session", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/pickup", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		body := decode(t, w)
		assert.Equal(t, true, body["has_session"])
		assert.Equal(t, "AB-1234", body["booking_id"])
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/pickup", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decode(t, w)["has_session"])
	})

	t.Run("invalid token is ignored", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/pickup", nil)
		req.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decode(t, w)["has_session"])
	})
}

func TestRequestID(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		id, _ := c.Get(RequestIDKey)
		c.String(http.StatusOK, id.(string))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "caller-id", w.Header().Get(RequestIDHeader))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	router := setupTestRouter()
	router.Use(RequestID(), RequestLogger(logger))
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest("GET", "/missing", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Equal(t, "desktop", entry["device_type"])
	assert.NotEmpty(t, entry["request_id"])
}
