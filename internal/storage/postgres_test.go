package storage

import (
	"testing"
)

func TestNewPostgresDB(t *testing.T) {
	db := newTestPostgres(t)

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Pool() == nil {
		t.Error("Pool() returned nil")
	}
}

func TestMigrationVersion(t *testing.T) {
	newTestPostgres(t)

	version, dirty, err := MigrationVersion(testPostgresConfig().URL(), "../../migrations/postgres")
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if dirty {
		t.Error("MigrationVersion() dirty = true, want false")
	}
	if version < 1 {
		t.Errorf("MigrationVersion() = %d, want >= 1", version)
	}
}
