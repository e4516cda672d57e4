package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingModel represents how a tool is priced
type PricingModel string

const (
	PricingFree     PricingModel = "free"
	PricingFreemium PricingModel = "freemium"
	PricingPaid     PricingModel = "paid"
)

// Tool represents a cataloged AI tool. The text columns are NOT NULL with
// empty-string defaults in the schema, so they map to plain strings.
type Tool struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Slug          string          `json:"slug" db:"slug"`
	Name          string          `json:"name" db:"name"`
	Tagline       string          `json:"tagline" db:"tagline"`
	Description   string          `json:"description" db:"description"`
	Category      string          `json:"category" db:"category"`
	Pricing       PricingModel    `json:"pricing" db:"pricing"`
	WebsiteURL    string          `json:"website_url" db:"website_url"`
	LogoURL       string          `json:"logo_url" db:"logo_url"`
	AverageRating decimal.Decimal `json:"average_rating" db:"average_rating"`
	ReviewCount   int             `json:"review_count" db:"review_count"`
	Upvotes       int             `json:"upvotes" db:"upvotes"`
	Featured      bool            `json:"featured" db:"featured"`
	Source        string          `json:"source" db:"source"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Favorite marks a tool saved by a user
type Favorite struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ToolID    uuid.UUID `json:"tool_id" db:"tool_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
