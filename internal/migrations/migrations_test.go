package migrations

import (
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestMigrationsOrdered(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for _, m := range All {
		if m.Version == "" || m.Name == "" || strings.TrimSpace(m.Up) == "" {
			t.Fatalf("incomplete migration: %+v", m)
		}
		if seen[m.Version] {
			t.Fatalf("duplicate version %s", m.Version)
		}
		if m.Version <= prev {
			t.Fatalf("version %s out of order after %s", m.Version, prev)
		}
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestApplyIsIdempotent_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	if _, err := Apply(ctx, db, logger); err != nil {
		t.Fatalf("apply: %v", err)
	}
	again, err := Apply(ctx, db, logger)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second apply must be a no-op, applied %v", again)
	}
	pending, err := Pending(ctx, db)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending migrations, got %d", len(pending))
	}
	for _, table := range []string{"shifts", "readings", "cash_handovers", "settlements", "event_outbox"} {
		var exists bool
		if err := db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if !exists {
			t.Fatalf("table %s missing", table)
		}
	}
}
