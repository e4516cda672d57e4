package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/logging"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const DefaultRangeDays = 30

// Service records and aggregates usage events. Event writes are
// best-effort: a failed insert is logged and must never surface to the
// request that produced the event.
type Service struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewService creates a new analytics service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{
		db:     db,
		logger: logging.NewLogger("analytics"),
	}
}

// Track persists a single event. The returned error is for tests and
// callers that want to observe failures; HTTP handlers ignore it.
func (s *Service) Track(ctx context.Context, event *models.AnalyticsEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO analytics_events (type, user_id, tool_id, path, query, message, client_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.Type, event.UserID, event.ToolID, event.Path, event.Query, event.Message, event.ClientIP)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(event.Type)).Msg("failed to record analytics event")
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// TrackAsync fires an event write without blocking the caller
func (s *Service) TrackAsync(event *models.AnalyticsEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Track(ctx, event)
	}()
}

// DailyCounts returns per-day event counts for the dashboard
func (s *Service) DailyCounts(ctx context.Context, days int) ([]models.DailyCount, error) {
	if days < 1 {
		days = DefaultRangeDays
	}

	rows, err := s.db.Query(ctx, `
		SELECT date_trunc('day', created_at)::date AS day, type, COUNT(*)
		FROM analytics_events
		WHERE created_at > NOW() - make_interval(days => $1)
		GROUP BY day, type
		ORDER BY day DESC, type
	`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer rows.Close()

	var counts []models.DailyCount
	for rows.Next() {
		var c models.DailyCount
		if err := rows.Scan(&c.Day, &c.Type, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily counts: %w", err)
	}
	return counts, nil
}

// TopTools returns the most clicked tools over the range
func (s *Service) TopTools(ctx context.Context, days, limit int) ([]ToolClicks, error) {
	if days < 1 {
		days = DefaultRangeDays
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, `
		SELECT t.slug, t.name, COUNT(*) AS clicks
		FROM analytics_events e
		JOIN tools t ON t.id = e.tool_id
		WHERE e.type = $1 AND e.created_at > NOW() - make_interval(days => $2)
		GROUP BY t.id
		ORDER BY clicks DESC
		LIMIT $3
	`, models.EventToolClick, days, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tools: %w", err)
	}
	defer rows.Close()

	var top []ToolClicks
	for rows.Next() {
		var t ToolClicks
		if err := rows.Scan(&t.Slug, &t.Name, &t.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan top tool: %w", err)
		}
		top = append(top, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top tools: %w", err)
	}
	return top, nil
}

// ToolClicks is one row of the top-tools report
type ToolClicks struct {
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Clicks int64  `json:"clicks"`
}
