// Package automation fronts the external content, SEO and sync services.
// Each upstream sits behind its own circuit breaker so one flaky service
// cannot stall the others.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/config"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/logging"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/rs/zerolog"
)

const (
	serviceContent = "content"
	serviceSEO     = "seo"
	serviceSync    = "sync"

	maxResponseBytes = 4 << 20
)

// ToolUpserter writes synced tools into the catalog
type ToolUpserter interface {
	Upsert(ctx context.Context, tool *models.Tool) (*models.Tool, error)
}

// Service orchestrates calls to the automation upstreams
type Service struct {
	config   *config.AutomationConfig
	catalog  ToolUpserter
	client   *http.Client
	breakers *breakerManager
	logger   zerolog.Logger
}

// NewService creates a new automation service
func NewService(cfg *config.AutomationConfig, cat ToolUpserter) *Service {
	return &Service{
		config:  cfg,
		catalog: cat,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		breakers: newBreakerManager(nil),
		logger:   logging.NewLogger("automation"),
	}
}

// GenerateContentRequest asks the content service for copy about a tool
type GenerateContentRequest struct {
	ToolSlug string `json:"tool_slug" binding:"required"`
	Kind     string `json:"kind" binding:"required,oneof=description tagline comparison"`
}

// GenerateContentResponse is the content service's reply
type GenerateContentResponse struct {
	ToolSlug string `json:"tool_slug"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
}

// GenerateContent requests generated copy for a tool from the content service
func (s *Service) GenerateContent(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	var resp GenerateContentResponse
	err := s.postJSON(ctx, serviceContent, s.config.ContentServiceURL+"/generate", req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SEOBatchRequest lists the tool pages to re-optimize
type SEOBatchRequest struct {
	Slugs []string `json:"slugs" binding:"required,min=1"`
}

// SEOBatchResponse reports how the batch was accepted
type SEOBatchResponse struct {
	BatchID  string `json:"batch_id"`
	Accepted int    `json:"accepted"`
}

// RunSEOBatch submits a batch of tool pages to the SEO service
func (s *Service) RunSEOBatch(ctx context.Context, req *SEOBatchRequest) (*SEOBatchResponse, error) {
	var resp SEOBatchResponse
	err := s.postJSON(ctx, serviceSEO, s.config.SEOServiceURL+"/batch", req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncResult summarizes one catalog sync run
type SyncResult struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Failed   int `json:"failed"`
}

// syncedTool is the sync service's wire shape for one tool
type syncedTool struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Tagline     string `json:"tagline"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Pricing     string `json:"pricing"`
	WebsiteURL  string `json:"website_url"`
	LogoURL     string `json:"logo_url"`
}

// SyncTools pulls the latest tool set from the sync service and upserts
// it into the catalog. Individual upsert failures are logged and counted
// rather than aborting the run.
func (s *Service) SyncTools(ctx context.Context) (*SyncResult, error) {
	var fetched struct {
		Tools []syncedTool `json:"tools"`
	}
	if err := s.getJSON(ctx, serviceSync, s.config.SyncServiceURL+"/tools", &fetched); err != nil {
		return nil, err
	}

	result := &SyncResult{Fetched: len(fetched.Tools)}
	for _, st := range fetched.Tools {
		_, err := s.catalog.Upsert(ctx, &models.Tool{
			Slug:        st.Slug,
			Name:        st.Name,
			Tagline:     st.Tagline,
			Description: st.Description,
			Category:    st.Category,
			Pricing:     models.PricingModel(st.Pricing),
			WebsiteURL:  st.WebsiteURL,
			LogoURL:     st.LogoURL,
			Source:      "sync",
		})
		if err != nil {
			result.Failed++
			s.logger.Error().Err(err).Str("slug", st.Slug).Msg("failed to upsert synced tool")
			continue
		}
		result.Upserted++
	}
	return result, nil
}

// UpstreamStatus reports the circuit breaker state of every upstream
func (s *Service) UpstreamStatus() []*BreakerStatus {
	return s.breakers.allStatus()
}

func (s *Service) postJSON(ctx context.Context, service, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return s.roundTrip(ctx, service, http.MethodPost, url, payload, out)
}

func (s *Service) getJSON(ctx context.Context, service, url string, out any) error {
	return s.roundTrip(ctx, service, http.MethodGet, url, nil, out)
}

func (s *Service) roundTrip(ctx context.Context, service, method, url string, payload []byte, out any) error {
	_, err := s.breakers.execute(ctx, service, func() (any, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if s.config.ServiceAPIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.config.ServiceAPIKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamError, service, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %s returned %d", ErrUpstreamError, service, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%s rejected request with %d", service, resp.StatusCode)
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
			return nil, fmt.Errorf("%w: %s sent malformed response: %v", ErrUpstreamError, service, err)
		}
		return nil, nil
	})
	return err
}
