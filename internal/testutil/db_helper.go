package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/config"
	"github.com/parsascontentcorner/guilddesk/internal/database"
	"github.com/parsascontentcorner/guilddesk/internal/docstore"
)

// migrationPaths are tried in order since tests run from different package directories
var migrationPaths = []string{
	"internal/database/migrations",
	"../database/migrations",
	"../../internal/database/migrations",
	"database/migrations",
	"migrations",
}

// SetupTestDB creates a PostgreSQL TestContainer, runs migrations, and returns a database connection.
// Returns the DB connection, a cleanup function, and any error encountered.
//
// Usage:
//
//	db, cleanup, err := testutil.SetupTestDB(ctx)
//	require.NoError(t, err)
//	defer cleanup()
func SetupTestDB(ctx context.Context) (*database.DB, func(), error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	terminate := func() {
		_ = pgContainer.Terminate(context.Background())
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	logger := zap.NewNop()
	cfg := &config.DatabaseConfig{
		Host:         host,
		Port:         mappedPort.Port(),
		User:         "testuser",
		Password:     "testpass",
		Name:         "testdb",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	db, err := database.NewDB(cfg, logger)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var migrationErr error
	migrated := false
	for _, path := range migrationPaths {
		if err := db.RunMigrations(path); err == nil {
			migrated = true
			break
		} else {
			migrationErr = err
		}
	}

	if !migrated {
		_ = db.Close()
		terminate()
		return nil, nil, fmt.Errorf("failed to run migrations from any path: %w", migrationErr)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db", zap.Error(err))
		}
		terminate()
	}

	return db, cleanup, nil
}

// SetupTestMongo creates a MongoDB TestContainer and returns a connected document store with indexes.
func SetupTestMongo(ctx context.Context) (*docstore.Store, func(), error) {
	container, err := mongodb.RunContainer(ctx, testcontainers.WithImage("mongo:6"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	terminate := func() {
		_ = container.Terminate(context.Background())
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	store, err := docstore.Connect(ctx, &config.MongoConfig{URI: uri, Database: "guilddesk_test"}, zap.NewNop())
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(context.Background())
		terminate()
		return nil, nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	cleanup := func() {
		_ = store.Close(context.Background())
		terminate()
	}

	return store, cleanup, nil
}

// TruncateTables removes all sessions and states.
func TruncateTables(ctx context.Context, db *database.DB) error {
	for _, table := range []string{"oauth_states", "discord_sessions"} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}
