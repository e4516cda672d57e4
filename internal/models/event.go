package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an analytics event
type EventType string

const (
	EventPageView  EventType = "page_view"
	EventSearch    EventType = "search"
	EventToolClick EventType = "tool_click"
	EventError     EventType = "error"
)

// AnalyticsEvent represents one recorded usage or error event
type AnalyticsEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Type      EventType  `json:"type" db:"type"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	ToolID    *uuid.UUID `json:"tool_id,omitempty" db:"tool_id"`
	Path      *string    `json:"path,omitempty" db:"path"`
	Query     *string    `json:"query,omitempty" db:"query"`
	Message   *string    `json:"message,omitempty" db:"message"`
	ClientIP  *string    `json:"client_ip,omitempty" db:"client_ip"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// DailyCount is one bucket of the admin dashboard aggregates
type DailyCount struct {
	Day   time.Time `json:"day" db:"day"`
	Type  EventType `json:"type" db:"type"`
	Count int64     `json:"count" db:"count"`
}
