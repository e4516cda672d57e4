package server

import (
	"net/http"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/analytics"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/apikey"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/auth"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/automation"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/cache"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/catalog"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/config"
	apierrors "github.com/Daseanle/ai-navigator-pro-sub002/internal/errors"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/logging"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/middleware"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/monitoring"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/ratelimit"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/recommend"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIServer represents the main API server
type APIServer struct {
	config            *config.Config
	router            *gin.Engine
	db                *pgxpool.Pool
	authService       *auth.Service
	keyService        *apikey.Service
	catalogService    *catalog.Service
	recommendService  *recommend.Service
	analyticsService  *analytics.Service
	automationService *automation.Service
	limiter           *ratelimit.Limiter
	jwtAuthenticator  *middleware.JWTAuthenticator
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, db *pgxpool.Pool, redis *cache.Redis, limiter *ratelimit.Limiter) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	keyService := apikey.NewService(apikey.NewPostgresStore(db), cfg.APIKey.DefaultExpiryDays)
	catalogService := catalog.NewService(db)

	srv := &APIServer{
		config:            cfg,
		router:            router,
		db:                db,
		authService:       auth.NewService(db, &cfg.JWT),
		keyService:        keyService,
		catalogService:    catalogService,
		recommendService:  recommend.NewService(db, redis),
		analyticsService:  analytics.NewService(db),
		automationService: automation.NewService(&cfg.Automation, catalogService),
		limiter:           limiter,
		jwtAuthenticator:  middleware.NewJWTAuthenticator(&cfg.JWT),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check and metrics stay outside the rate-limited API surface
	s.router.GET("/health", s.healthCheck)
	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET("/metrics", monitoring.GinHandler())
	}

	// API v1 routes; the limiter guards everything underneath and
	// nothing outside this group.
	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RateLimit(s.limiter))
	{
		// Auth routes (public)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", s.handleRegister)
			authGroup.POST("/login", s.handleLogin)
			authGroup.POST("/logout", s.handleLogout)
		}

		// Catalog routes (public)
		v1.GET("/search", s.handleSearchTools)
		v1.GET("/categories", s.handleGetCategories)
		v1.GET("/featured", s.handleGetFeatured)
		tools := v1.Group("/tools")
		{
			tools.GET("", s.handleListTools)
			tools.GET("/:slug", s.handleGetTool)
			tools.GET("/:slug/similar", s.handleGetSimilar)
			tools.GET("/:slug/reviews", s.handleGetReviews)
			tools.POST("/:slug/reviews", s.jwtAuthenticator.JWTAuth(), s.handleSubmitReview)
		}

		// Recommendation routes (public; feed personalizes when a token is sent)
		recs := v1.Group("/recommendations")
		{
			recs.GET("/feed", s.handleFeed)
			recs.GET("/trending", s.handleTrending)
		}

		// Favorites (protected)
		favorites := v1.Group("/favorites")
		favorites.Use(s.jwtAuthenticator.JWTAuth())
		{
			favorites.GET("", s.handleListFavorites)
			favorites.POST("/:slug", s.handleAddFavorite)
			favorites.DELETE("/:slug", s.handleRemoveFavorite)
		}

		// Analytics ingest (public, fire and forget)
		v1.POST("/events", s.handleTrackEvent)

		// API key validation probe
		v1.GET("/keys/validate", s.handleValidateKey)

		// Automation routes (protected by API key)
		auto := v1.Group("/automation")
		auto.Use(middleware.APIKeyAuth(s.keyService.Validate))
		{
			auto.POST("/content", s.handleGenerateContent)
			auto.POST("/seo/batch", s.handleSEOBatch)
			auto.POST("/sync", s.handleSyncTools)
		}

		// Admin routes (protected - requires admin role)
		admin := v1.Group("/admin")
		admin.Use(s.jwtAuthenticator.JWTAuth())
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/keys", s.handleIssueKey)
			admin.DELETE("/keys/:id", s.handleRevokeKey)
			admin.GET("/analytics/daily", s.handleDailyCounts)
			admin.GET("/analytics/top-tools", s.handleTopTools)
			admin.GET("/automation/status", s.handleAutomationStatus)
		}
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// handleRegister handles user registration
func (s *APIServer) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.authService.Register(c.Request.Context(), &req)
	if err != nil {
		if err == auth.ErrEmailAlreadyExists {
			respondError(c, apierrors.NewInvalidRequestError("Email already registered"))
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handleLogin handles user login
func (s *APIServer) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if err == auth.ErrInvalidCredentials {
			respondError(c, apierrors.ErrInvalidCredentialsError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleLogout handles user logout
func (s *APIServer) handleLogout(c *gin.Context) {
	// Stateless JWT: logout is handled client-side by dropping the token
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	c.JSON(err.HTTPStatus, apierrors.ErrorResponse{
		Error:     *err,
		RequestID: reqIDStr,
	})
}
