package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/config"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Helper function to create a test JWT token
func createTestToken(secret string, userID, role, email string, subject string, expiry time.Duration) string {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "ai-navigator-pro",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

func testJWTConfig(secret string) *config.JWTConfig {
	return &config.JWTConfig{
		Secret:            secret,
		Issuer:            "ai-navigator-pro",
		AccessTokenExpiry: 15 * time.Minute,
	}
}

func TestJWTAuth_ValidToken(t *testing.T) {
	secret := "test-secret-key-for-jwt-testing"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))

	token := createTestToken(secret, "user-123", "user", "test@example.com", "access", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": GetUserIDFromContext(c),
			"role":    GetUserRoleFromContext(c),
		})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestJWTAuth_MissingToken(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig("test-secret"))

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))

	token := createTestToken(secret, "user-123", "user", "test@example.com", "access", -time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestJWTAuth_WrongSecret(t *testing.T) {
	authenticator := NewJWTAuthenticator(testJWTConfig("right-secret"))

	token := createTestToken("wrong-secret", "user-123", "user", "test@example.com", "access", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestRequireAdmin_AdminAllowed(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))
	token := createTestToken(secret, "admin-1", "admin", "admin@example.com", "access", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.Use(RequireAdmin())
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRequireAdmin_NonAdminForbidden(t *testing.T) {
	secret := "test-secret"
	authenticator := NewJWTAuthenticator(testJWTConfig(secret))
	token := createTestToken(secret, "user-1", "user", "user@example.com", "access", 15*time.Minute)

	router := gin.New()
	router.Use(authenticator.JWTAuth())
	router.Use(RequireAdmin())
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Authenticated but not privileged: 403, never 401.
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func apiKeyRouter(validate APIKeyValidateFunc) *gin.Engine {
	router := gin.New()
	router.Use(APIKeyAuth(validate))
	router.POST("/automation", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	called := false
	router := apiKeyRouter(func(context.Context, string) bool {
		called = true
		return true
	})

	req := httptest.NewRequest("POST", "/automation", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if called {
		t.Error("validator must not be called without a bearer header")
	}
}

func TestAPIKeyAuth_RejectedKey(t *testing.T) {
	router := apiKeyRouter(func(context.Context, string) bool { return false })

	req := httptest.NewRequest("POST", "/automation", nil)
	req.Header.Set("Authorization", "Bearer nap_invalid")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAPIKeyAuth_AcceptedKey(t *testing.T) {
	var presented string
	router := apiKeyRouter(func(_ context.Context, key string) bool {
		presented = key
		return true
	})

	req := httptest.NewRequest("POST", "/automation", nil)
	req.Header.Set("Authorization", "Bearer nap_sometestkey")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if presented != "nap_sometestkey" {
		t.Errorf("validator saw %q, want the raw token", presented)
	}
}

func TestRateLimit_ThrottlesWithRetryAfter(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 15*time.Minute, 3)

	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/api/v1/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/tools", nil)
		req.RemoteAddr = "10.1.2.3:5000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/api/v1/tools", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if retry := w.Header().Get("Retry-After"); retry == "" || retry == "0" {
		t.Fatalf("expected positive Retry-After header, got %q", retry)
	}
}

func TestRateLimit_DistinctClientsIndependent(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 15*time.Minute, 1)

	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/api/v1/tools", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	reqA := httptest.NewRequest("GET", "/api/v1/tools", nil)
	reqA.RemoteAddr = "10.0.0.1:1000"
	wA := httptest.NewRecorder()
	router.ServeHTTP(wA, reqA)

	reqA2 := httptest.NewRequest("GET", "/api/v1/tools", nil)
	reqA2.RemoteAddr = "10.0.0.1:1000"
	wA2 := httptest.NewRecorder()
	router.ServeHTTP(wA2, reqA2)

	reqB := httptest.NewRequest("GET", "/api/v1/tools", nil)
	reqB.RemoteAddr = "10.0.0.2:1000"
	wB := httptest.NewRecorder()
	router.ServeHTTP(wB, reqB)

	if wA2.Code != http.StatusTooManyRequests {
		t.Fatalf("client A second request: expected 429, got %d", wA2.Code)
	}
	if wB.Code != http.StatusOK {
		t.Fatalf("client B must not share client A's counter, got %d", wB.Code)
	}
}

func TestResolveClientKey_ForwardedFor(t *testing.T) {
	router := gin.New()
	var resolved string
	router.GET("/x", func(c *gin.Context) {
		resolved = ResolveClientKey(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.RemoteAddr = "10.9.9.9:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if resolved != "10.9.9.9" {
		t.Fatalf("expected direct address, got %q", resolved)
	}
}
