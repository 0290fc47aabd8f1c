package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// PrefixLength is the number of leading key characters stored in
// api_key_prefix for lookup.
const PrefixLength = 12

// CreateTableSQL creates the api_clients table if it does not exist.
const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS api_clients (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	api_key_prefix  TEXT NOT NULL UNIQUE,
	api_key_hash    TEXT NOT NULL,
	disabled        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ClientStore abstracts DB queries for testability.
type ClientStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*clientRow, error)
}

type clientRow struct {
	ClientID   string
	Name       string
	APIKeyHash string
	Disabled   bool
}

// SQLClientStore reads and writes api_clients through database/sql.
type SQLClientStore struct {
	db *sql.DB
}

// NewSQLClientStore wraps db.
func NewSQLClientStore(db *sql.DB) *SQLClientStore {
	return &SQLClientStore{db: db}
}

// EnsureSchema creates the api_clients table.
func (s *SQLClientStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, CreateTableSQL); err != nil {
		return fmt.Errorf("SQLClientStore.EnsureSchema: %w", err)
	}
	return nil
}

func (s *SQLClientStore) LookupByPrefix(ctx context.Context, prefix string) (*clientRow, error) {
	row := &clientRow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key_hash, disabled
		 FROM api_clients
		 WHERE api_key_prefix = $1`,
		prefix,
	).Scan(&row.ClientID, &row.Name, &row.APIKeyHash, &row.Disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("SQLClientStore.LookupByPrefix: %w", err)
	}
	return row, nil
}

// CreateClient stores a new client and returns its raw key. The raw key is
// not recoverable afterwards.
func (s *SQLClientStore) CreateClient(ctx context.Context, id, name string) (string, error) {
	key, err := NewAPIKey()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("SQLClientStore.CreateClient hash: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO api_clients (id, name, api_key_prefix, api_key_hash)
		 VALUES ($1, $2, $3, $4)`,
		id, name, keyPrefix(key), string(hash),
	); err != nil {
		return "", fmt.Errorf("SQLClientStore.CreateClient: %w", err)
	}
	return key, nil
}

// NewAPIKey returns a random aik_ key.
func NewAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("NewAPIKey: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

func keyPrefix(apiKey string) string {
	if len(apiKey) < PrefixLength {
		return apiKey
	}
	return apiKey[:PrefixLength]
}

// PostgresAuthenticator validates API keys against the api_clients table.
// Verified keys are cached so the hot path skips the DB lookup and bcrypt.
type PostgresAuthenticator struct {
	store  ClientStore
	cache  *AuthCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration // Default: 30s
	// MaxStale bounds how long a verified key is served while the key store
	// is unreachable. Default: 10 * CacheTTL.
	MaxStale time.Duration
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new authenticator backed by PostgreSQL.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	maxStale := cfg.MaxStale
	if maxStale == 0 {
		maxStale = 10 * ttl
	}
	return &PostgresAuthenticator{
		store:  NewSQLClientStore(cfg.DB),
		cache:  NewAuthCache(ttl, maxStale),
		logger: cfg.Logger,
	}
}

func newPostgresAuthenticatorWithStore(store ClientStore, cache *AuthCache, logger *zap.Logger) *PostgresAuthenticator {
	return &PostgresAuthenticator{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Authenticate validates apiKey. Fresh cache hits return immediately,
// stale hits return the cached client and refresh in the background, misses
// run the DB lookup and bcrypt check synchronously.
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Client, error) {
	result := a.cache.Lookup(apiKey)
	if result.Hit {
		if result.Refresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Client, nil
	}

	client, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return nil, ErrInvalidAPIKey
		}
		a.logger.Warn("auth DB unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	a.cache.Store(apiKey, client)
	return client, nil
}

func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := a.lookupAndVerify(ctx, apiKey)
	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		a.logger.Info("cached api key no longer valid, evicting",
			zap.String("key_prefix", keyPrefix(apiKey)),
		)
		a.cache.Evict(apiKey)
	case err != nil:
		a.logger.Warn("background cache refresh failed", zap.Error(err))
		a.cache.RefreshFailed(apiKey)
	default:
		a.cache.Store(apiKey, client)
	}
}

func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*Client, error) {
	if len(apiKey) < PrefixLength {
		return nil, ErrInvalidAPIKey
	}

	row, err := a.store.LookupByPrefix(ctx, keyPrefix(apiKey))
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if row.Disabled {
		return nil, ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	return &Client{ClientID: row.ClientID, Name: row.Name}, nil
}
