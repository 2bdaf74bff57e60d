package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("CHECKLIST_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("CHECKLIST_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	roundTrip(ctx, t, db, DriverPostgres)

	s := NewSQLStore(db, DriverPostgres)
	exerciseSessionLifecycle(ctx, t, s)
}

func TestMigrationsRoundTripSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "roundtrip.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	roundTrip(ctx, t, db, DriverSQLite)
}

func roundTrip(ctx context.Context, t *testing.T, db *sql.DB, driver string) {
	t.Helper()
	if err := ApplyMigrations(ctx, db, driver); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	version, err := SchemaVersion(ctx, db, driver)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected schema version 2, got %d", version)
	}
	if err := RollbackMigrations(ctx, db, driver); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, driver); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
