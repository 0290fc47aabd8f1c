package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ainventory/ainventory-server/internal/auth"
	"github.com/ainventory/ainventory-server/internal/config"
	"github.com/ainventory/ainventory-server/internal/fieesoft"
	"github.com/ainventory/ainventory-server/internal/mail"
	"github.com/ainventory/ainventory-server/internal/storage"
	"github.com/ainventory/ainventory-server/internal/tools"
	"github.com/ainventory/ainventory-server/internal/toolset"
	"go.uber.org/zap"
)

const (
	envLogLevel     = "AINVENTORY_LOG_LEVEL"
	envHTTPPort     = "AINVENTORY_HTTP_PORT"
	envGRPCPort     = "AINVENTORY_GRPC_PORT"
	envMCPTransport = "AINVENTORY_MCP_TRANSPORT"
	envBaseURL      = "AINVENTORY_BASE_URL"
	envAPIKeys      = "AINVENTORY_API_KEYS"
	envAuthCacheTTL = "AINVENTORY_AUTH_CACHE_TTL_S"
	envPostgresDSN  = "POSTGRES_DSN"
	envClickHouse   = "CLICKHOUSE_DSN"
)

var errNoValidKeys = errors.New("AINVENTORY_API_KEYS has no key with the aik_ prefix")

// buildRegistry registers the inventory and email tools. Their
// configuration is read from the environment on every call.
func buildRegistry(events storage.EventWriter, logger *zap.Logger) (*tools.Registry, error) {
	provider := config.NewEnvProvider()
	reg := tools.NewRegistry(events, logger)

	inventory := fieesoft.NewClient(provider, logger.Named("fieesoft"))
	mailer := mail.NewSender(provider, logger.Named("mail"))
	if err := toolset.Register(reg, inventory, mailer); err != nil {
		return nil, fmt.Errorf("buildRegistry: %w", err)
	}
	return reg, nil
}

// openEventWriter returns a ClickHouse writer when CLICKHOUSE_DSN is set and
// reachable, otherwise a LogWriter.
func openEventWriter(ctx context.Context, logger *zap.Logger) storage.EventWriter {
	dsn := os.Getenv(envClickHouse)
	if dsn == "" {
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
		return storage.NewLogWriter(logger)
	}

	chWriter, err := storage.NewClickHouseWriter(ctx, dsn, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
		return storage.NewLogWriter(logger)
	}
	logger.Info("clickhouse writer connected")
	return chWriter
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// openAuthenticator picks the key source: Postgres when POSTGRES_DSN is set,
// static keys when AINVENTORY_API_KEYS is set, otherwise none. A nil
// Authenticator disables authentication. The returned func releases
// resources and is never nil.
func openAuthenticator(ctx context.Context, logger *zap.Logger) (auth.Authenticator, func(), error) {
	noop := func() {}

	if dsn := os.Getenv(envPostgresDSN); dsn != "" {
		db, err := openPostgres(ctx, dsn)
		if err != nil {
			return nil, noop, err
		}
		if err := auth.NewSQLClientStore(db).EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		authenticator := auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: time.Duration(envOrDefaultInt(envAuthCacheTTL, 30)) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
		return authenticator, func() { _ = db.Close() }, nil
	}

	if list := os.Getenv(envAPIKeys); list != "" {
		static := auth.NewStaticAuthenticator(auth.ParseKeyList(list))
		if static.Len() == 0 {
			return nil, noop, errNoValidKeys
		}
		logger.Info("using static authenticator", zap.Int("keys", static.Len()))
		return static, noop, nil
	}

	logger.Warn("no POSTGRES_DSN or AINVENTORY_API_KEYS set, authentication disabled")
	return nil, noop, nil
}
