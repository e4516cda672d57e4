package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service errors
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrInvalidRating = errors.New("invalid rating: must be between 1 and 5")
	ErrReviewExists  = errors.New("user has already reviewed this tool")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service handles tool catalog operations
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new catalog service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// ListOptions filter and paginate tool listings
type ListOptions struct {
	Category string
	Pricing  string
	Page     int
	PageSize int
}

func (o *ListOptions) normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
}

// ListToolsResponse represents a paginated list of tools
type ListToolsResponse struct {
	Tools      []models.Tool `json:"tools"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

const toolColumns = `id, slug, name, tagline, description, category, pricing,
		website_url, logo_url, average_rating, review_count, upvotes, featured,
		source, created_at, updated_at`

func scanTool(row pgx.Row) (*models.Tool, error) {
	var t models.Tool
	err := row.Scan(
		&t.ID, &t.Slug, &t.Name, &t.Tagline, &t.Description, &t.Category,
		&t.Pricing, &t.WebsiteURL, &t.LogoURL, &t.AverageRating, &t.ReviewCount,
		&t.Upvotes, &t.Featured, &t.Source, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns tools filtered by category and pricing, newest first
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListToolsResponse, error) {
	opts.normalize()

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if opts.Category != "" {
		args = append(args, opts.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if opts.Pricing != "" {
		args = append(args, opts.Pricing)
		where = append(where, fmt.Sprintf("pricing = $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM tools %s`, whereClause), args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count tools: %w", err)
	}

	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tools %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, toolColumns, whereClause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	tools, err := collectTools(rows)
	if err != nil {
		return nil, err
	}

	return &ListToolsResponse{
		Tools:      tools,
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages(total, opts.PageSize),
	}, nil
}

// Search runs a full-text search over name, tagline and description,
// ranked by relevance. Search is delegated to Postgres; there is no
// search index maintained by this service.
func (s *Service) Search(ctx context.Context, query string, page, pageSize int) (*ListToolsResponse, error) {
	opts := ListOptions{Page: page, PageSize: pageSize}
	opts.normalize()

	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM tools
		WHERE search_vector @@ websearch_to_tsquery('english', $1)
	`, query).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count search results: %w", err)
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tools
		WHERE search_vector @@ websearch_to_tsquery('english', $1)
		ORDER BY ts_rank(search_vector, websearch_to_tsquery('english', $1)) DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, toolColumns), query, opts.PageSize, (opts.Page-1)*opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search tools: %w", err)
	}
	defer rows.Close()

	tools, err := collectTools(rows)
	if err != nil {
		return nil, err
	}

	return &ListToolsResponse{
		Tools:      tools,
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages(total, opts.PageSize),
	}, nil
}

// GetBySlug returns a single tool by its URL slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Tool, error) {
	tool, err := scanTool(s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM tools WHERE slug = $1
	`, toolColumns), slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrToolNotFound
		}
		return nil, fmt.Errorf("failed to get tool: %w", err)
	}
	return tool, nil
}

// CategoryCount is one entry of the category listing
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// Categories returns all categories with tool counts
func (s *Service) Categories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT category, COUNT(*) FROM tools
		WHERE category IS NOT NULL
		GROUP BY category
		ORDER BY COUNT(*) DESC, category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// Featured returns the curated featured tools
func (s *Service) Featured(ctx context.Context, limit int) ([]models.Tool, error) {
	if limit < 1 || limit > MaxPageSize {
		limit = 10
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tools
		WHERE featured = true
		ORDER BY average_rating DESC, upvotes DESC
		LIMIT $1
	`, toolColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured tools: %w", err)
	}
	defer rows.Close()
	return collectTools(rows)
}

// Upsert inserts a tool or refreshes an existing one by slug. Used by the
// external tool sync; manual edits to rating aggregates are preserved.
func (s *Service) Upsert(ctx context.Context, tool *models.Tool) (*models.Tool, error) {
	stored, err := scanTool(s.db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO tools (slug, name, tagline, description, category, pricing, website_url, logo_url, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			tagline = EXCLUDED.tagline,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			pricing = EXCLUDED.pricing,
			website_url = EXCLUDED.website_url,
			logo_url = EXCLUDED.logo_url,
			source = EXCLUDED.source,
			updated_at = NOW()
		RETURNING %s
	`, toolColumns), tool.Slug, tool.Name, tool.Tagline, tool.Description,
		tool.Category, tool.Pricing, tool.WebsiteURL, tool.LogoURL, tool.Source))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert tool: %w", err)
	}
	return stored, nil
}

func collectTools(rows pgx.Rows) ([]models.Tool, error) {
	var tools []models.Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, *tool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tools: %w", err)
	}
	return tools, nil
}

func totalPages(total int64, pageSize int) int {
	pages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		pages++
	}
	return pages
}

// AddFavorite saves a tool for a user. Adding twice is a no-op.
func (s *Service) AddFavorite(ctx context.Context, userID, toolID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO favorites (user_id, tool_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, tool_id) DO NOTHING
	`, userID, toolID)
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	if tag.RowsAffected() > 0 {
		// Upvotes track distinct favoriting users.
		_, err = s.db.Exec(ctx, `UPDATE tools SET upvotes = upvotes + 1 WHERE id = $1`, toolID)
		if err != nil {
			return fmt.Errorf("failed to bump upvotes: %w", err)
		}
	}
	return nil
}

// RemoveFavorite unsaves a tool for a user
func (s *Service) RemoveFavorite(ctx context.Context, userID, toolID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM favorites WHERE user_id = $1 AND tool_id = $2
	`, userID, toolID)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	if tag.RowsAffected() > 0 {
		_, err = s.db.Exec(ctx, `UPDATE tools SET upvotes = GREATEST(upvotes - 1, 0) WHERE id = $1`, toolID)
		if err != nil {
			return fmt.Errorf("failed to drop upvotes: %w", err)
		}
	}
	return nil
}

// ListFavorites returns the tools a user has saved, newest first
func (s *Service) ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.Tool, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM tools t
		JOIN favorites f ON f.tool_id = t.id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC
	`, qualifyColumns("t", toolColumns)), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()
	return collectTools(rows)
}

// qualifyColumns prefixes each column with a table alias for join queries
func qualifyColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// SubmitReviewRequest represents a request to review a tool
type SubmitReviewRequest struct {
	Rating  int     `json:"rating" binding:"required,min=1,max=5"`
	Content *string `json:"content,omitempty"`
}

// SubmitReview records a review and refreshes the tool's rating aggregates
// in the same transaction. One review per user per tool.
func (s *Service) SubmitReview(ctx context.Context, toolID, userID uuid.UUID, req *SubmitReviewRequest) (*models.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrInvalidRating
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM reviews WHERE tool_id = $1 AND user_id = $2)
	`, toolID, userID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing review: %w", err)
	}
	if exists {
		return nil, ErrReviewExists
	}

	var review models.Review
	err = tx.QueryRow(ctx, `
		INSERT INTO reviews (tool_id, user_id, rating, content, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tool_id, user_id, rating, content, status, created_at
	`, toolID, userID, req.Rating, req.Content, models.ReviewStatusPending).Scan(
		&review.ID, &review.ToolID, &review.UserID, &review.Rating,
		&review.Content, &review.Status, &review.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert review: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE tools SET
			average_rating = (SELECT ROUND(AVG(rating)::numeric, 2) FROM reviews WHERE tool_id = $1),
			review_count = (SELECT COUNT(*) FROM reviews WHERE tool_id = $1)
		WHERE id = $1
	`, toolID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh rating aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrToolNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}

	return &review, nil
}

// ListReviews returns reviews for a tool, newest first
func (s *Service) ListReviews(ctx context.Context, toolID uuid.UUID, page, pageSize int) ([]models.Review, error) {
	opts := ListOptions{Page: page, PageSize: pageSize}
	opts.normalize()

	rows, err := s.db.Query(ctx, `
		SELECT id, tool_id, user_id, rating, content, status, created_at
		FROM reviews
		WHERE tool_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, toolID, opts.PageSize, (opts.Page-1)*opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		err := rows.Scan(&r.ID, &r.ToolID, &r.UserID, &r.Rating, &r.Content, &r.Status, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}
