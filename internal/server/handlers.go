package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/apikey"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/automation"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/catalog"
	apierrors "github.com/Daseanle/ai-navigator-pro-sub002/internal/errors"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/middleware"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ---- Catalog ----

func (s *APIServer) handleListTools(c *gin.Context) {
	resp, err := s.catalogService.List(c.Request.Context(), catalog.ListOptions{
		Category: c.Query("category"),
		Pricing:  c.Query("pricing"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", catalog.DefaultPageSize),
	})
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleSearchTools(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		respondError(c, apierrors.NewValidationError("query parameter q is required"))
		return
	}

	monitoring.RecordSearch()
	resp, err := s.catalogService.Search(c.Request.Context(), query,
		queryInt(c, "page", 1), queryInt(c, "page_size", catalog.DefaultPageSize))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleGetCategories(c *gin.Context) {
	categories, err := s.catalogService.Categories(c.Request.Context())
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *APIServer) handleGetFeatured(c *gin.Context) {
	tools, err := s.catalogService.Featured(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

func (s *APIServer) handleGetTool(c *gin.Context) {
	tool, ok := s.resolveTool(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tool)
}

func (s *APIServer) handleGetSimilar(c *gin.Context) {
	tool, ok := s.resolveTool(c)
	if !ok {
		return
	}
	tools, err := s.recommendService.Similar(c.Request.Context(), tool.ID, queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

func (s *APIServer) handleGetReviews(c *gin.Context) {
	tool, ok := s.resolveTool(c)
	if !ok {
		return
	}
	reviews, err := s.catalogService.ListReviews(c.Request.Context(), tool.ID,
		queryInt(c, "page", 1), queryInt(c, "page_size", catalog.DefaultPageSize))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (s *APIServer) handleSubmitReview(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	tool, ok := s.resolveTool(c)
	if !ok {
		return
	}

	var req catalog.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	review, err := s.catalogService.SubmitReview(c.Request.Context(), tool.ID, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrInvalidRating):
			respondError(c, apierrors.NewValidationError("rating must be between 1 and 5"))
		case errors.Is(err, catalog.ErrReviewExists):
			respondError(c, apierrors.NewInvalidRequestError("You have already reviewed this tool"))
		case errors.Is(err, catalog.ErrToolNotFound):
			respondError(c, apierrors.ErrToolNotFoundError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	monitoring.RecordReviewSubmitted()
	c.JSON(http.StatusCreated, review)
}

// ---- Recommendations ----

// handleFeed personalizes when a valid bearer token is present and falls
// back to the anonymous popularity ranking otherwise.
func (s *APIServer) handleFeed(c *gin.Context) {
	userID := uuid.Nil
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if token, err := middleware.ExtractBearerToken(authHeader); err == nil {
			if claims, err := s.jwtAuthenticator.ValidateAccessToken(token); err == nil {
				if parsed, err := uuid.Parse(claims.UserID); err == nil {
					userID = parsed
				}
			}
		}
	}

	tools, err := s.recommendService.ForUser(c.Request.Context(), userID, queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

func (s *APIServer) handleTrending(c *gin.Context) {
	tools, err := s.recommendService.Trending(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

// ---- Favorites ----

func (s *APIServer) handleListFavorites(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	tools, err := s.catalogService.ListFavorites(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

func (s *APIServer) handleAddFavorite(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	tool, ok := s.resolveTool(c)
	if !ok {
		return
	}
	if err := s.catalogService.AddFavorite(c.Request.Context(), userID, tool.ID); err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Tool saved"})
}

func (s *APIServer) handleRemoveFavorite(c *gin.Context) {
	userID, ok := s.currentUserID(c)
	if !ok {
		return
	}
	tool, ok := s.resolveTool(c)
	if !ok {
		return
	}
	if err := s.catalogService.RemoveFavorite(c.Request.Context(), userID, tool.ID); err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tool removed"})
}

// ---- Analytics ----

type trackEventRequest struct {
	Type    models.EventType `json:"type" binding:"required,oneof=page_view search tool_click error"`
	ToolID  *uuid.UUID       `json:"tool_id,omitempty"`
	Path    *string          `json:"path,omitempty"`
	Query   *string          `json:"query,omitempty"`
	Message *string          `json:"message,omitempty"`
}

func (s *APIServer) handleTrackEvent(c *gin.Context) {
	var req trackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	event := &models.AnalyticsEvent{
		Type:    req.Type,
		ToolID:  req.ToolID,
		Path:    req.Path,
		Query:   req.Query,
		Message: req.Message,
	}
	if ip := c.ClientIP(); ip != "" {
		event.ClientIP = &ip
	}
	if idStr := middleware.GetUserIDFromContext(c); idStr != "" {
		if id, err := uuid.Parse(idStr); err == nil {
			event.UserID = &id
		}
	}

	// The write must never block or fail the request that produced it.
	s.analyticsService.TrackAsync(event)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *APIServer) handleDailyCounts(c *gin.Context) {
	counts, err := s.analyticsService.DailyCounts(c.Request.Context(), queryInt(c, "days", 30))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (s *APIServer) handleTopTools(c *gin.Context) {
	top, err := s.analyticsService.TopTools(c.Request.Context(),
		queryInt(c, "days", 30), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": top})
}

// ---- API keys ----

type issueKeyRequest struct {
	UserID        string `json:"user_id,omitempty"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"`
}

type issueKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	ExpiresAt string    `json:"expires_at"`
}

// handleIssueKey mints a new API key. Only reachable behind an
// authenticated admin session; an API key cannot mint further keys.
func (s *APIServer) handleIssueKey(c *gin.Context) {
	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	ownerID := req.UserID
	if ownerID == "" {
		ownerID = middleware.GetUserIDFromContext(c)
	}

	days := s.keyService.DefaultExpiryDays()
	if req.ExpiresInDays != nil {
		days = *req.ExpiresInDays
	}

	key, err := s.keyService.Issue(c.Request.Context(), ownerID, days)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	monitoring.RecordAPIKeyIssued()
	resp := issueKeyResponse{
		ID:     key.ID,
		Key:    key.Key,
		UserID: key.UserID,
	}
	if key.ExpiresAt != nil {
		resp.ExpiresAt = key.ExpiresAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *APIServer) handleRevokeKey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewValidationError("invalid key id"))
		return
	}

	if err := s.keyService.Revoke(c.Request.Context(), id); err != nil {
		if errors.Is(err, apikey.ErrKeyNotFound) {
			respondError(c, apierrors.ErrKeyNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// handleValidateKey answers whether the presented key is currently usable.
// Every rejection looks the same to the caller regardless of cause.
func (s *APIServer) handleValidateKey(c *gin.Context) {
	token, err := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		monitoring.RecordAPIKeyValidation("rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "Invalid API key"})
		return
	}

	if !s.keyService.Validate(c.Request.Context(), token) {
		monitoring.RecordAPIKeyValidation("rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false, "error": "Invalid API key"})
		return
	}

	monitoring.RecordAPIKeyValidation("accepted")
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ---- Automation ----

func (s *APIServer) handleGenerateContent(c *gin.Context) {
	var req automation.GenerateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.automationService.GenerateContent(c.Request.Context(), &req)
	if err != nil {
		s.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleSEOBatch(c *gin.Context) {
	var req automation.SEOBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	resp, err := s.automationService.RunSEOBatch(c.Request.Context(), &req)
	if err != nil {
		s.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (s *APIServer) handleSyncTools(c *gin.Context) {
	result, err := s.automationService.SyncTools(c.Request.Context())
	if err != nil {
		s.respondUpstreamError(c, err)
		return
	}

	monitoring.RecordToolsSynced(result.Upserted)
	c.JSON(http.StatusOK, result)
}

func (s *APIServer) handleAutomationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": s.automationService.UpstreamStatus()})
}

func (s *APIServer) respondUpstreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, automation.ErrCircuitOpen), errors.Is(err, automation.ErrUpstreamError):
		respondError(c, apierrors.ErrUpstreamUnavailableError)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, apierrors.ErrUpstreamTimeoutError)
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}

// ---- Helpers ----

func (s *APIServer) resolveTool(c *gin.Context) (*models.Tool, bool) {
	tool, err := s.catalogService.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, catalog.ErrToolNotFound) {
			respondError(c, apierrors.ErrToolNotFoundError)
		} else {
			respondError(c, apierrors.ErrInternalServerError)
		}
		return nil, false
	}
	return tool, true
}

func (s *APIServer) currentUserID(c *gin.Context) (uuid.UUID, bool) {
	idStr := middleware.GetUserIDFromContext(c)
	if idStr == "" {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
