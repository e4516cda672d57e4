// Package recommend serves popularity-ranked tool feeds. Ranking is a
// straight SQL ordering over stored aggregates; there is no model or
// per-user scoring pipeline behind it.
package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/cache"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/logging"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	DefaultFeedSize  = 10
	MaxFeedSize      = 50
	trendingCacheKey = "recommend:trending"
	trendingCacheTTL = 5 * time.Minute
	trendingDays     = 7
)

// Service builds recommendation feeds
type Service struct {
	db     *pgxpool.Pool
	cache  *cache.Redis
	logger zerolog.Logger
}

// NewService creates a new recommendation service. cache may be nil,
// in which case trending queries hit the database every time.
func NewService(db *pgxpool.Pool, c *cache.Redis) *Service {
	return &Service{
		db:     db,
		cache:  c,
		logger: logging.NewLogger("recommend"),
	}
}

const toolColumns = `t.id, t.slug, t.name, t.tagline, t.description, t.category, t.pricing,
		t.website_url, t.logo_url, t.average_rating, t.review_count, t.upvotes, t.featured,
		t.source, t.created_at, t.updated_at`

// ForUser returns the highest-rated tools the user has not already saved.
// An anonymous feed (uuid.Nil) is the plain popularity ranking.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Tool, error) {
	limit = clampLimit(limit)

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tools t
		WHERE NOT EXISTS (
			SELECT 1 FROM favorites f WHERE f.tool_id = t.id AND f.user_id = $1
		)
		ORDER BY t.average_rating DESC, t.upvotes DESC, t.review_count DESC
		LIMIT $2
	`, toolColumns), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed: %w", err)
	}
	defer rows.Close()
	return scanTools(rows)
}

// Trending returns the tools with the most recent favoriting activity.
// Results are cached briefly since the ranking is identical for everyone.
func (s *Service) Trending(ctx context.Context, limit int) ([]models.Tool, error) {
	limit = clampLimit(limit)
	cacheKey := fmt.Sprintf("%s:%d", trendingCacheKey, limit)

	if s.cache != nil {
		var cached []models.Tool
		hit, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("trending cache read failed, falling through to database")
		} else if hit {
			return cached, nil
		}
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tools t
		JOIN favorites f ON f.tool_id = t.id AND f.created_at > NOW() - make_interval(days => $1)
		GROUP BY t.id
		ORDER BY COUNT(f.user_id) DESC, t.average_rating DESC
		LIMIT $2
	`, toolColumns), trendingDays, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending tools: %w", err)
	}
	defer rows.Close()

	tools, err := scanTools(rows)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, tools, trendingCacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("trending cache write failed")
		}
	}
	return tools, nil
}

// Similar returns other tools in the same category, best rated first
func (s *Service) Similar(ctx context.Context, toolID uuid.UUID, limit int) ([]models.Tool, error) {
	limit = clampLimit(limit)

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tools t
		WHERE t.category = (SELECT category FROM tools WHERE id = $1)
		  AND t.id != $1
		ORDER BY t.average_rating DESC, t.upvotes DESC
		LIMIT $2
	`, toolColumns), toolID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar tools: %w", err)
	}
	defer rows.Close()
	return scanTools(rows)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return DefaultFeedSize
	}
	if limit > MaxFeedSize {
		return MaxFeedSize
	}
	return limit
}

func scanTools(rows pgx.Rows) ([]models.Tool, error) {
	var tools []models.Tool
	for rows.Next() {
		var t models.Tool
		err := rows.Scan(
			&t.ID, &t.Slug, &t.Name, &t.Tagline, &t.Description, &t.Category,
			&t.Pricing, &t.WebsiteURL, &t.LogoURL, &t.AverageRating, &t.ReviewCount,
			&t.Upvotes, &t.Featured, &t.Source, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tools: %w", err)
	}
	return tools, nil
}
