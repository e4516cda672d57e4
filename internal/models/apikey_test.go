package models

import (
	"testing"
	"time"
)

func TestAPIKeyValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		active    bool
		expiresAt *time.Time
		want      bool
	}{
		{"active with future expiry", true, &future, true},
		{"active with no expiry", true, nil, true},
		{"active but expired", true, &past, false},
		{"revoked with future expiry", false, &future, false},
		{"revoked and expired", false, &past, false},
		{"expiring exactly now", true, &now, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &APIKey{Active: tt.active, ExpiresAt: tt.expiresAt}
			if got := k.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
