package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw API key used in tests. Must start with "aik_" and be >= PrefixLength chars.
const testAPIKey = "aik_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost (fast for tests).
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockStore implements ClientStore for testing.
type mockStore struct {
	row        *clientRow
	err        atomic.Value // error
	callCount  atomic.Int32
	lastPrefix atomic.Value // string
}

func (m *mockStore) LookupByPrefix(_ context.Context, prefix string) (*clientRow, error) {
	m.callCount.Add(1)
	m.lastPrefix.Store(prefix)
	if err, ok := m.err.Load().(error); ok && err != nil {
		return nil, err
	}
	return m.row, nil
}

func validStore(t *testing.T) *mockStore {
	return &mockStore{
		row: &clientRow{
			ClientID:   "client_abc",
			Name:       "inventory-bot",
			APIKeyHash: testHash(t),
		},
	}
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	store := validStore(t)
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Minute, 10*time.Minute), zap.NewNop())

	client, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if client.ClientID != "client_abc" || client.Name != "inventory-bot" {
		t.Errorf("unexpected client: %+v", client)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", store.callCount.Load())
	}
	if p := store.lastPrefix.Load().(string); p != testAPIKey[:PrefixLength] {
		t.Errorf("expected prefix %q, got %q", testAPIKey[:PrefixLength], p)
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	store := validStore(t)
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Minute, 10*time.Minute), zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	client, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected still 1 DB call (cache hit), got %d", store.callCount.Load())
	}
	if client.ClientID != "client_abc" {
		t.Errorf("expected client_abc from cache, got %s", client.ClientID)
	}
}

func TestPostgresAuth_WrongKey(t *testing.T) {
	store := validStore(t)
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Minute, 10*time.Minute), zap.NewNop())

	_, err := auth.Authenticate(context.Background(), "aik_test_valid_key_doesnt_match_hash")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_ShortKey_NoDBCall(t *testing.T) {
	store := validStore(t)
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Minute, 10*time.Minute), zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), "aik_x"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
	if store.callCount.Load() != 0 {
		t.Error("DB should not be called for a short key")
	}
}

func TestPostgresAuth_DisabledClient(t *testing.T) {
	store := validStore(t)
	store.row.Disabled = true
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Minute, 10*time.Minute), zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey for disabled client, got %v", err)
	}
}

func TestPostgresAuth_ClientNotFound(t *testing.T) {
	// SQLClientStore converts sql.ErrNoRows to ErrInvalidAPIKey.
	store := &mockStore{}
	store.err.Store(ErrInvalidAPIKey)
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Minute, 10*time.Minute), zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_DBDown_ReturnsUnavailable(t *testing.T) {
	store := &mockStore{}
	store.err.Store(errors.New("connection refused"))
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Minute, 10*time.Minute), zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got: %v", err)
	}
}

func TestPostgresAuth_StaleHit_ServesStaleAndRefreshes(t *testing.T) {
	store := validStore(t)
	auth := newPostgresAuthenticatorWithStore(store, NewAuthCache(time.Millisecond, time.Minute), zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	client, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("stale hit should succeed, got %v", err)
	}
	if client.ClientID != "client_abc" {
		t.Errorf("expected stale client, got %s", client.ClientID)
	}

	deadline := time.Now().Add(time.Second)
	for store.callCount.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if store.callCount.Load() < 2 {
		t.Error("expected background refresh to hit the DB")
	}
}

func TestPostgresAuth_RevokedKeyEvictedOnRefresh(t *testing.T) {
	store := validStore(t)
	cache := NewAuthCache(time.Millisecond, time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	store.err.Store(ErrInvalidAPIKey)

	// The stale client is served once while the refresh runs.
	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for cache.Lookup(testAPIKey).Hit && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if cache.Lookup(testAPIKey).Hit {
		t.Fatal("expected revoked key to be evicted")
	}
	if _, err := auth.Authenticate(context.Background(), testAPIKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey after eviction, got %v", err)
	}
}

func TestPostgresAuth_OutageKeepsStaleEntry(t *testing.T) {
	store := validStore(t)
	cache := NewAuthCache(time.Millisecond, time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	store.err.Store(errors.New("connection reset"))

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}

	// Wait for the failed refresh to release the entry for another attempt.
	deadline := time.Now().Add(time.Second)
	for store.callCount.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	var retried bool
	for time.Now().Before(deadline) {
		if r := cache.Lookup(testAPIKey); r.Refresh {
			retried = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !retried {
		t.Error("expected a failed refresh to allow a retry")
	}

	client, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("stale client should still be served during an outage, got %v", err)
	}
	if client.ClientID != "client_abc" {
		t.Errorf("expected client_abc, got %s", client.ClientID)
	}
}
