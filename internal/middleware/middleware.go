package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/config"
	apierrors "github.com/Daseanle/ai-navigator-pro-sub002/internal/errors"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/logging"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/monitoring"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys for storing request principals
const (
	ContextKeyUserID   = "user_id"
	ContextKeyUserRole = "user_role"
	ContextKeyEmail    = "email"
	ContextKeyClaims   = "claims"
	ContextKeyAPIKeyID = "api_key_id"
)

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWT validation errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// JWTAuthenticator handles JWT token validation
type JWTAuthenticator struct {
	config *config.JWTConfig
}

// NewJWTAuthenticator creates a new JWT authenticator
func NewJWTAuthenticator(cfg *config.JWTConfig) *JWTAuthenticator {
	return &JWTAuthenticator{
		config: cfg,
	}
}

// JWTAuth validates the Bearer token from the Authorization header and sets
// the session principal in the context. Absence and invalidity both answer
// 401 with the same generic body.
func (j *JWTAuthenticator) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondWithError(c, apierrors.ErrInvalidCredentialsError)
			c.Abort()
			return
		}

		tokenString, err := ExtractBearerToken(authHeader)
		if err != nil {
			respondWithError(c, apierrors.ErrInvalidCredentialsError)
			c.Abort()
			return
		}

		claims, err := j.ValidateAccessToken(tokenString)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				respondWithError(c, apierrors.ErrTokenExpiredError)
			} else {
				respondWithError(c, apierrors.ErrInvalidCredentialsError)
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUserRole, claims.Role)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// ValidateAccessToken validates an access token and returns claims
func (j *JWTAuthenticator) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := j.validateToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Subject != "access" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// validateToken parses and validates a JWT token
func (j *JWTAuthenticator) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ExtractBearerToken extracts the token from a Bearer authorization header
func ExtractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) {
		return "", ErrInvalidToken
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidToken
	}
	return authHeader[len(bearerPrefix):], nil
}

// RequireAdmin checks that the authenticated principal carries the admin
// role. Runs after JWTAuth: authentication already succeeded, so the failure
// here is 403, distinct from 401.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleStr, exists := c.Get(ContextKeyUserRole)
		if !exists {
			respondWithError(c, apierrors.ErrForbiddenError)
			c.Abort()
			return
		}

		if models.UserRole(roleStr.(string)) != models.UserRoleAdmin {
			respondWithError(c, apierrors.ErrForbiddenError)
			c.Abort()
			return
		}

		c.Next()
	}
}

// APIKeyValidateFunc answers whether a presented API key is currently
// usable. The apikey service's Validate method satisfies it directly.
type APIKeyValidateFunc func(ctx context.Context, presentedKey string) bool

// APIKeyAuth gates automation endpoints on a bearer API key. A missing
// header and a rejected key both answer the same 401 body so callers cannot
// probe why a credential failed.
func APIKeyAuth(validate APIKeyValidateFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondWithError(c, apierrors.ErrInvalidAPIKeyError)
			c.Abort()
			return
		}

		token, err := ExtractBearerToken(authHeader)
		if err != nil {
			respondWithError(c, apierrors.ErrInvalidAPIKeyError)
			c.Abort()
			return
		}

		if !validate(c.Request.Context(), token) {
			logging.LogSecurityEvent("api_key_rejected", "", c.ClientIP(), c.Request.URL.Path)
			respondWithError(c, apierrors.ErrInvalidAPIKeyError)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimit throttles requests per client. Attach it to the API route group
// only; other routes bypass the limiter entirely.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := ResolveClientKey(c)

		result := limiter.Allow(c.Request.Context(), clientKey, time.Now())
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

		if !result.Allowed {
			logging.LogSecurityEvent("rate_limited", "", clientKey, c.Request.URL.Path)
			monitoring.RecordRateLimitHit("api")
			c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds()))
			respondWithError(c, apierrors.ErrRateLimitedError)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ResolveClientKey identifies the caller for rate limiting: platform client
// address first, then the first forwarded-for hop, then a shared anonymous
// bucket.
func ResolveClientKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	return ratelimit.AnonymousKey
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, err *apierrors.APIError) {
	requestID := c.GetString("request_id")

	c.JSON(err.HTTPStatus, apierrors.ErrorResponse{
		Error:     *err,
		RequestID: requestID,
	})
}

// GetUserIDFromContext extracts the user ID from the gin context.
// Returns empty string if not found
func GetUserIDFromContext(c *gin.Context) string {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return ""
	}
	return userID.(string)
}

// GetUserRoleFromContext extracts the user role from the gin context.
// Returns empty string if not found
func GetUserRoleFromContext(c *gin.Context) models.UserRole {
	role, exists := c.Get(ContextKeyUserRole)
	if !exists {
		return ""
	}
	return models.UserRole(role.(string))
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// CORS configures CORS headers
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// Check if origin is allowed
		allowed := false
		for _, o := range allowedOrigins {
			if o == origin || o == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "43200") // 12 hours
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
