package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/memes-airdrop/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           testEnv("POSTGRES_HOST", "localhost"),
		Port:           testEnv("POSTGRES_PORT", "5432"),
		Database:       testEnv("POSTGRES_DB", "memes_airdrop_test"),
		User:           testEnv("POSTGRES_USER", "airdrop"),
		Password:       testEnv("POSTGRES_PASSWORD", "airdrop_dev_password"),
		MaxConnections: 5,
	}
}

func testClickHouseConfig() *config.ClickHouseConfig {
	return &config.ClickHouseConfig{
		Host:     testEnv("CLICKHOUSE_HOST", "localhost"),
		Port:     testEnv("CLICKHOUSE_PORT", "9000"),
		Database: testEnv("CLICKHOUSE_DB", "memes_airdrop_test"),
		User:     testEnv("CLICKHOUSE_USER", "default"),
		Password: testEnv("CLICKHOUSE_PASSWORD", ""),
	}
}

// newTestPostgres connects to Postgres, applies migrations and empties the participants table.
// The test is skipped when Postgres is not reachable.
func newTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(context.Background(), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), "../../migrations/postgres"); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	if _, err := db.Pool().Exec(testContext(t), `TRUNCATE participants RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate participants: %v", err)
	}
	return db
}
