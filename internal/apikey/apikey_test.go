package apikey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/models"
	"github.com/google/uuid"
)

// fakeStore is an in-memory Store used to exercise the service without a
// database. It counts lookups so tests can assert the empty-key fast path.
type fakeStore struct {
	mu        sync.Mutex
	byKey     map[string]*models.APIKey
	byID      map[uuid.UUID]*models.APIKey
	findCalls int

	insertErr error
	findErr   error
	touchErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byKey: make(map[string]*models.APIKey),
		byID:  make(map[uuid.UUID]*models.APIKey),
	}
}

func (f *fakeStore) Insert(_ context.Context, key *models.APIKey) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if _, exists := f.byKey[key.Key]; exists {
		return nil, errors.New("duplicate key")
	}
	stored := *key
	stored.ID = uuid.New()
	f.byKey[stored.Key] = &stored
	f.byID[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeStore) FindActive(_ context.Context, rawKey string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	key, ok := f.byKey[rawKey]
	if !ok || !key.Active {
		return nil, ErrKeyNotFound
	}
	out := *key
	return &out, nil
}

func (f *fakeStore) TouchLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	key, ok := f.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	t := at
	key.LastUsedAt = &t
	return nil
}

func (f *fakeStore) Deactivate(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	key.Active = false
	return nil
}

func (f *fakeStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

func (f *fakeStore) lastUsed(id uuid.UUID) *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.byID[id]
	if !ok {
		return nil
	}
	return key.LastUsedAt
}

func newTestService(store *fakeStore, at time.Time) *Service {
	svc := NewService(store, 365)
	svc.now = func() time.Time { return at }
	return svc
}

func TestValidate_EmptyKeySkipsStore(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	if svc.Validate(context.Background(), "") {
		t.Fatal("empty key should be invalid")
	}
	if got := store.lookupCount(); got != 0 {
		t.Fatalf("expected no store lookups for empty key, got %d", got)
	}
}

func TestValidate_FreshKeyValidAndTouched(t *testing.T) {
	store := newFakeStore()
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, issuedAt)

	key, err := svc.Issue(context.Background(), "u1", svc.DefaultExpiryDays())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if !svc.Validate(context.Background(), key.Key) {
		t.Fatal("freshly issued key should be valid")
	}

	// The last_used_at update is asynchronous; wait for it to land.
	deadline := time.Now().Add(time.Second)
	for {
		if used := store.lastUsed(key.ID); used != nil {
			if used.Before(issuedAt) {
				t.Fatalf("last_used_at %v is before issuance %v", used, issuedAt)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("last_used_at was never updated")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestValidate_ExpiredKeyStillActive(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	key, err := svc.Issue(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if !svc.Validate(context.Background(), key.Key) {
		t.Fatal("key should be valid before expiry")
	}

	// Advance the simulated clock two days: the record is still active but
	// must answer invalid.
	svc.now = func() time.Time { return now.AddDate(0, 0, 2) }
	if svc.Validate(context.Background(), key.Key) {
		t.Fatal("key should be invalid after expiry even though active")
	}
}

func TestValidate_ZeroDayExpiry(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	key, err := svc.Issue(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	svc.now = func() time.Time { return now.Add(time.Minute) }
	if svc.Validate(context.Background(), key.Key) {
		t.Fatal("zero-day key should be invalid once the clock moves past issuance")
	}
}

func TestValidate_RevokedKeyWithFutureExpiry(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	key, err := svc.Issue(context.Background(), "u1", 365)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := svc.Revoke(context.Background(), key.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if svc.Validate(context.Background(), key.Key) {
		t.Fatal("revoked key should be invalid despite future expiry")
	}
}

func TestValidate_StoreErrorTreatedAsInvalid(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	key, err := svc.Issue(context.Background(), "u1", 365)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	store.findErr = errors.New("connection refused")
	if svc.Validate(context.Background(), key.Key) {
		t.Fatal("store failure must not validate a key")
	}
}

func TestValidate_TouchFailureDoesNotAffectResult(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	key, err := svc.Issue(context.Background(), "u1", 365)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	store.touchErr = errors.New("write timeout")
	if !svc.Validate(context.Background(), key.Key) {
		t.Fatal("telemetry write failure must not downgrade a valid key")
	}
}

func TestIssue_StoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("disk full")
	svc := newTestService(store, time.Now())

	if _, err := svc.Issue(context.Background(), "u1", 365); err == nil {
		t.Fatal("Issue must fail when persistence fails")
	}
}

func TestRevoke_UnknownKey(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	if err := svc.Revoke(context.Background(), uuid.New()); err == nil {
		t.Fatal("revoking an unknown key should fail")
	}
}
