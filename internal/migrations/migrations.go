package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// Migration is one ordered schema step. Up must be idempotent.
type Migration struct {
	Version string
	Name    string
	Up      string
}

// advisory lock key guarding concurrent migrate runs
const lockKey = 7_310_442

const schemaTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// All lists the schema in apply order.
var All = []Migration{
	{
		Version: "20240101000001",
		Name:    "create_masterdata",
		Up: `
CREATE TABLE IF NOT EXISTS stations (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	timezone   TEXT NOT NULL DEFAULT 'UTC',
	region     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS stations_tenant_idx ON stations (tenant_id);

CREATE TABLE IF NOT EXISTS tanks (
	id            TEXT PRIMARY KEY,
	station_id    TEXT NOT NULL REFERENCES stations (id),
	fuel_type     TEXT NOT NULL,
	capacity      NUMERIC(14,3) NOT NULL,
	current_level NUMERIC(14,3) NOT NULL DEFAULT 0,
	low_level     NUMERIC(14,3) NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS nozzles (
	id             TEXT PRIMARY KEY,
	station_id     TEXT NOT NULL REFERENCES stations (id),
	pump_id        TEXT NOT NULL DEFAULT '',
	tank_id        TEXT NOT NULL DEFAULT '',
	fuel_type      TEXT NOT NULL,
	opening_volume NUMERIC(14,3) NOT NULL DEFAULT 0,
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS nozzles_station_idx ON nozzles (station_id);

CREATE TABLE IF NOT EXISTS fuel_prices (
	station_id     TEXT NOT NULL REFERENCES stations (id),
	fuel_type      TEXT NOT NULL,
	price          NUMERIC(12,2) NOT NULL CHECK (price > 0),
	effective_from TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (station_id, fuel_type, effective_from)
);`,
	},
	{
		Version: "20240101000002",
		Name:    "create_shifts_and_readings",
		Up: `
CREATE TABLE IF NOT EXISTS shifts (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL DEFAULT '',
	station_id        TEXT NOT NULL,
	employee_id       TEXT NOT NULL,
	status            TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ,
	expected_cash     NUMERIC(14,2) NOT NULL DEFAULT 0,
	expected_online   NUMERIC(14,2) NOT NULL DEFAULT 0,
	expected_credit   NUMERIC(14,2) NOT NULL DEFAULT 0,
	litres            NUMERIC(14,3) NOT NULL DEFAULT 0,
	sales             NUMERIC(14,2) NOT NULL DEFAULT 0,
	reading_count     INT NOT NULL DEFAULT 0,
	actual_cash       NUMERIC(14,2),
	actual_online     NUMERIC(14,2),
	variance          NUMERIC(14,2) NOT NULL DEFAULT 0,
	online_variance   NUMERIC(14,2) NOT NULL DEFAULT 0,
	variance_severity TEXT NOT NULL DEFAULT '',
	closed_by         TEXT NOT NULL DEFAULT '',
	version           BIGINT NOT NULL DEFAULT 1,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS shifts_one_active_idx
	ON shifts (station_id, employee_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS shifts_station_started_idx ON shifts (station_id, started_at);

CREATE TABLE IF NOT EXISTS readings (
	seq                 BIGSERIAL UNIQUE,
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL DEFAULT '',
	station_id          TEXT NOT NULL,
	nozzle_id           TEXT NOT NULL,
	shift_id            TEXT NOT NULL REFERENCES shifts (id),
	kind                TEXT NOT NULL,
	previous_volume     NUMERIC(14,3) NOT NULL,
	current_volume      NUMERIC(14,3) NOT NULL,
	litres              NUMERIC(14,3) NOT NULL,
	unit_price          NUMERIC(12,2) NOT NULL,
	total_amount        NUMERIC(14,2) NOT NULL,
	payment             JSONB NOT NULL,
	recorded_by         TEXT NOT NULL DEFAULT '',
	recorded_at         TIMESTAMPTZ NOT NULL,
	advisory            TEXT NOT NULL DEFAULT '',
	reverses_reading_id TEXT REFERENCES readings (id),
	reason              TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS readings_reverses_once_idx
	ON readings (reverses_reading_id) WHERE reverses_reading_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS readings_shift_idx ON readings (shift_id, seq);
CREATE INDEX IF NOT EXISTS readings_nozzle_idx ON readings (nozzle_id, seq);`,
	},
	{
		Version: "20240101000003",
		Name:    "create_cash_handovers",
		Up: `
CREATE TABLE IF NOT EXISTS cash_handovers (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL DEFAULT '',
	station_id       TEXT NOT NULL,
	shift_id         TEXT NOT NULL REFERENCES shifts (id),
	parent_id        TEXT REFERENCES cash_handovers (id),
	handover_type    TEXT NOT NULL,
	position         INT NOT NULL,
	status           TEXT NOT NULL,
	expected         NUMERIC(14,2) NOT NULL,
	actual           NUMERIC(14,2),
	discrepancy      NUMERIC(14,2) NOT NULL DEFAULT 0,
	severity         TEXT NOT NULL DEFAULT '',
	confirmed_by     TEXT NOT NULL DEFAULT '',
	confirmed_at     TIMESTAMPTZ,
	resolution_notes TEXT NOT NULL DEFAULT '',
	resolved_by      TEXT NOT NULL DEFAULT '',
	resolved_at      TIMESTAMPTZ,
	version          BIGINT NOT NULL DEFAULT 1,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS cash_handovers_parent_idx
	ON cash_handovers (parent_id) WHERE parent_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS cash_handovers_collection_idx
	ON cash_handovers (shift_id) WHERE handover_type = 'collection_from_shift';
CREATE INDEX IF NOT EXISTS cash_handovers_shift_idx ON cash_handovers (shift_id, position);
CREATE INDEX IF NOT EXISTS cash_handovers_status_idx ON cash_handovers (status);`,
	},
	{
		Version: "20240101000004",
		Name:    "create_settlements",
		Up: `
CREATE TABLE IF NOT EXISTS settlements (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL DEFAULT '',
	station_id           TEXT NOT NULL,
	business_date        DATE NOT NULL,
	timezone             TEXT NOT NULL DEFAULT 'UTC',
	period_start         TIMESTAMPTZ NOT NULL,
	period_end           TIMESTAMPTZ NOT NULL,
	shift_count          INT NOT NULL DEFAULT 0,
	cancelled_shifts     INT NOT NULL DEFAULT 0,
	reading_count        INT NOT NULL DEFAULT 0,
	litres               NUMERIC(14,3) NOT NULL DEFAULT 0,
	total_sales          NUMERIC(14,2) NOT NULL DEFAULT 0,
	cash_total           NUMERIC(14,2) NOT NULL DEFAULT 0,
	online_total         NUMERIC(14,2) NOT NULL DEFAULT 0,
	credit_total         NUMERIC(14,2) NOT NULL DEFAULT 0,
	counted_cash         NUMERIC(14,2) NOT NULL DEFAULT 0,
	shift_variance       NUMERIC(14,2) NOT NULL DEFAULT 0,
	deposited_cash       NUMERIC(14,2) NOT NULL DEFAULT 0,
	final_variance       NUMERIC(14,2) NOT NULL DEFAULT 0,
	resolved_discrepancy NUMERIC(14,2) NOT NULL DEFAULT 0,
	resolved_count       INT NOT NULL DEFAULT 0,
	prepared_by          TEXT NOT NULL DEFAULT '',
	approved_by          TEXT NOT NULL DEFAULT '',
	snapshot_hash        TEXT NOT NULL,
	closed_at            TIMESTAMPTZ NOT NULL,
	UNIQUE (station_id, business_date)
);`,
	},
	{
		Version: "20240101000005",
		Name:    "create_audit_and_eventing",
		Up: `
CREATE TABLE IF NOT EXISTS audit_logs (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL DEFAULT '',
	actor          TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL DEFAULT '',
	action         TEXT NOT NULL,
	resource_type  TEXT NOT NULL DEFAULT '',
	resource_id    TEXT NOT NULL DEFAULT '',
	station_id     TEXT NOT NULL DEFAULT '',
	metadata       JSONB,
	payload_digest TEXT NOT NULL DEFAULT '',
	ip             TEXT NOT NULL DEFAULT '',
	user_agent     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS audit_logs_resource_idx ON audit_logs (resource_type, resource_id, created_at);

CREATE TABLE IF NOT EXISTS event_outbox (
	id         TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	payload    JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	attempts   INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	sent_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS event_outbox_status_idx ON event_outbox (status, created_at);

CREATE TABLE IF NOT EXISTS dead_letter_events (
	event_id      TEXT PRIMARY KEY,
	event_type    TEXT NOT NULL,
	payload       JSONB NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL,
	attempts      INT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id      TEXT NOT NULL,
	consumer_name TEXT NOT NULL,
	processed_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (event_id, consumer_name)
);
CREATE INDEX IF NOT EXISTS processed_events_processed_at_idx ON processed_events (processed_at);`,
	},
	{
		Version: "20240101000006",
		Name:    "chain_audit_logs",
		Up: `
ALTER TABLE audit_logs ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
ALTER TABLE audit_logs ADD COLUMN IF NOT EXISTS prev_digest TEXT NOT NULL DEFAULT '';
ALTER TABLE audit_logs ADD COLUMN IF NOT EXISTS chain_digest TEXT NOT NULL DEFAULT '';
ALTER TABLE audit_logs ALTER COLUMN metadata TYPE TEXT USING metadata::text;
CREATE INDEX IF NOT EXISTS audit_logs_station_seq_idx ON audit_logs (station_id, seq);`,
	},
}

// Apply runs every migration not yet recorded in schema_migrations and
// returns the versions it applied.
func Apply(ctx context.Context, db *sql.DB, logger *log.Logger) ([]string, error) {
	if db == nil {
		return nil, errors.New("migrations: nil db")
	}
	if logger == nil {
		logger = log.Default()
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return nil, fmt.Errorf("migrations: lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaTable); err != nil {
		return nil, fmt.Errorf("migrations: schema table: %w", err)
	}
	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range All {
		if done[m.Version] {
			continue
		}
		start := time.Now()
		if err := applyOne(ctx, conn, m); err != nil {
			return applied, fmt.Errorf("migrations: %s_%s: %w", m.Version, m.Name, err)
		}
		logger.Printf("migration applied: version=%s name=%s duration=%s", m.Version, m.Name, time.Since(start))
		applied = append(applied, m.Version)
	}
	return applied, nil
}

// Pending returns the migrations not yet applied.
func Pending(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if db == nil {
		return nil, errors.New("migrations: nil db")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, schemaTable); err != nil {
		return nil, err
	}
	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range All {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		done[version] = true
	}
	return done, rows.Err()
}

func applyOne(ctx context.Context, conn *sql.Conn, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
