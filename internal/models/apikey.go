package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey represents an issued automation credential.
//
// The plaintext key is returned to the caller exactly once, at issuance.
// Validity is a function of Active and ExpiresAt only; LastUsedAt is
// advisory telemetry and never feeds the validity decision.
type APIKey struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Key        string     `json:"-" db:"key"`
	UserID     string     `json:"user_id" db:"user_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Active     bool       `json:"active" db:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Valid reports whether the key is usable at time t. Expiry and the
// soft-disable flag are independent checks; both must pass.
func (k *APIKey) Valid(t time.Time) bool {
	if !k.Active {
		return false
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(t) {
		return false
	}
	return true
}
