package apikey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists API keys in the api_keys table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed key store
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert persists a new key record. The key column carries a unique
// constraint; a generator collision surfaces as an insert error.
func (p *PostgresStore) Insert(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	var created models.APIKey
	err := p.db.QueryRow(ctx, `
		INSERT INTO api_keys (key, user_id, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, key, user_id, created_at, expires_at, active, last_used_at
	`, key.Key, key.UserID, key.CreatedAt, key.ExpiresAt, key.Active).Scan(
		&created.ID, &created.Key, &created.UserID, &created.CreatedAt,
		&created.ExpiresAt, &created.Active, &created.LastUsedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert API key: %w", err)
	}
	return &created, nil
}

// FindActive returns the single record matching the raw key with active = true
func (p *PostgresStore) FindActive(ctx context.Context, rawKey string) (*models.APIKey, error) {
	var key models.APIKey
	err := p.db.QueryRow(ctx, `
		SELECT id, key, user_id, created_at, expires_at, active, last_used_at
		FROM api_keys
		WHERE key = $1 AND active = true
	`, rawKey).Scan(
		&key.ID, &key.Key, &key.UserID, &key.CreatedAt,
		&key.ExpiresAt, &key.Active, &key.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	return &key, nil
}

// TouchLastUsed records the time of the most recent successful validation.
// Concurrent validations race here; last writer wins, which is fine for an
// advisory field.
func (p *PostgresStore) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := p.db.Exec(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}

// Deactivate clears the active flag
func (p *PostgresStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE api_keys SET active = false WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}
