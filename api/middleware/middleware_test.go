package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/hodlmetight/magmad/config"
)

func TestSecretKeyAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name          string
		secretKey     string
		clientKey     string
		expectedCode  int
		expectedError string
	}{
		{
			name:         "Valid secret key",
			secretKey:    "master-key",
			clientKey:    "master-key",
			expectedCode: http.StatusOK,
		},
		{
			name:          "Invalid secret key",
			secretKey:     "master-key",
			clientKey:     "wrong-key",
			expectedCode:  http.StatusUnauthorized,
			expectedError: "Invalid secret key",
		},
		{
			name:          "Missing secret key header",
			secretKey:     "master-key",
			clientKey:     "",
			expectedCode:  http.StatusUnauthorized,
			expectedError: "Missing secret key",
		},
		{
			name:          "Secret key not configured",
			secretKey:     "",
			clientKey:     "anything",
			expectedCode:  http.StatusInternalServerError,
			expectedError: "Secret key is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.ConfigStore.Store(&config.Configuration{
				Server: config.ServerConfig{
					Secure:    true,
					SecretKey: tt.secretKey,
				},
			})

			router := gin.New()
			router.GET("/orders", SecretKeyAuthMiddleware(), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/orders", nil)
			if tt.clientKey != "" {
				req.Header.Set("X-Magmad-Key", tt.clientKey)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
		})
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	conf := &config.Configuration{}
	router := gin.New()
	router.GET("/orders", RateLimitMiddleware(conf), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/orders", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitMiddlewareEnforced(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rps := 1.0
	burst := 1
	cleanup := 60
	conf := &config.Configuration{
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond:  &rps,
			Burst:              &burst,
			CleanupIntervalSec: &cleanup,
		},
	}

	router := gin.New()
	router.GET("/orders", RateLimitMiddleware(conf), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	limited := false
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/orders", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited)
}
