package apikey

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service errors
var (
	ErrKeyNotFound = errors.New("API key not found")
)

const (
	// KeyPrefix is prepended to every issued key.
	KeyPrefix = "nap_"
	// KeyRandomLength is the number of random characters after the prefix.
	KeyRandomLength = 32
)

// keyAlphabet is the character set the random part is drawn from, uniformly.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// touchTimeout bounds the background last_used_at update so a stalled store
// cannot leak goroutines.
const touchTimeout = 5 * time.Second

// Store is the durable record capability the service persists keys through.
type Store interface {
	// Insert persists a new key record and returns it with the store-assigned ID.
	Insert(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	// FindActive returns the single record matching the raw key with active = true.
	// Returns ErrKeyNotFound when no such record exists.
	FindActive(ctx context.Context, rawKey string) (*models.APIKey, error)
	// TouchLastUsed records the time of the most recent successful validation.
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	// Deactivate clears the active flag. The record is never deleted.
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Service issues bearer credentials and answers whether a presented
// credential is currently usable.
type Service struct {
	store             Store
	defaultExpiryDays int
	logger            zerolog.Logger

	// now is swappable so expiry behavior is testable against a simulated clock.
	now func() time.Time
}

// NewService creates a new API key service
func NewService(store Store, defaultExpiryDays int) *Service {
	return &Service{
		store:             store,
		defaultExpiryDays: defaultExpiryDays,
		logger:            log.With().Str("component", "apikey").Logger(),
		now:               time.Now,
	}
}

// DefaultExpiryDays returns the expiry applied when issuance omits a value.
func (s *Service) DefaultExpiryDays() int {
	return s.defaultExpiryDays
}

// Issue creates and persists a new key for the owner. The returned record
// carries the plaintext secret; it is not retrievable again afterwards.
//
// The caller is trusted to have already authorized the operation.
func (s *Service) Issue(ctx context.Context, ownerUserID string, expiresInDays int) (*models.APIKey, error) {
	rawKey, err := generateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.AddDate(0, 0, expiresInDays)

	created, err := s.store.Insert(ctx, &models.APIKey{
		Key:       rawKey,
		UserID:    ownerUserID,
		CreatedAt: now,
		ExpiresAt: &expiresAt,
		Active:    true,
	})
	if err != nil {
		// Never report success for a credential that does not exist.
		return nil, fmt.Errorf("failed to persist API key: %w", err)
	}

	s.logger.Info().
		Str("key_id", created.ID.String()).
		Str("user_id", ownerUserID).
		Time("expires_at", expiresAt).
		Msg("API key issued")

	return created, nil
}

// Validate reports whether the presented key is currently usable.
//
// The boolean result never distinguishes an unknown key from an expired or
// revoked one, nor from a store failure; the distinction is logged for
// operators only. Validity is re-evaluated on every call.
func (s *Service) Validate(ctx context.Context, presentedKey string) bool {
	if presentedKey == "" {
		return false
	}

	key, err := s.store.FindActive(ctx, presentedKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			s.logger.Debug().Msg("API key rejected: no active record")
		} else {
			s.logger.Error().Err(err).Msg("API key lookup failed, treating as invalid")
		}
		return false
	}

	now := s.now().UTC()
	if !key.Valid(now) {
		// Expiry and deactivation are independent checks; the store filters
		// on active, so in practice this rejects active-but-expired keys.
		s.logger.Debug().Str("key_id", key.ID.String()).Msg("API key rejected: expired or inactive")
		return false
	}

	// Best-effort telemetry. A failure here must never downgrade the
	// validation result, so it runs detached from the request.
	go func(id uuid.UUID, at time.Time) {
		touchCtx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := s.store.TouchLastUsed(touchCtx, id, at); err != nil {
			s.logger.Warn().Err(err).Str("key_id", id.String()).Msg("Failed to update last_used_at")
		}
	}(key.ID, now)

	return true
}

// Revoke soft-disables a key. Expiry is untouched so operators can still
// tell a revoked key apart from a time-boxed one.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	s.logger.Info().Str("key_id", id.String()).Msg("API key revoked")
	return nil
}

// generateKey draws KeyRandomLength characters uniformly from keyAlphabet.
func generateKey() (string, error) {
	alphabetLen := big.NewInt(int64(len(keyAlphabet)))
	buf := make([]byte, KeyRandomLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return KeyPrefix + string(buf), nil
}
