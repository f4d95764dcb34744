package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const entryColumns = `id, seq, tenant_id, actor, role, action, resource_type, resource_id, station_id,
	metadata, payload_digest, prev_digest, chain_digest, ip, user_agent, created_at`

// Repository stores audit entries in audit_logs.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log appends entry to its station's chain. Appends to one station are
// serialised with a transaction-scoped advisory lock.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('audit:' || $1))`, entry.StationID); err != nil {
		return err
	}
	err = tx.QueryRowContext(ctx, `
SELECT chain_digest FROM audit_logs
WHERE station_id = $1
ORDER BY seq DESC
LIMIT 1`, entry.StationID).Scan(&entry.PrevDigest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	entry.ChainDigest = LinkDigest(entry.PrevDigest, entry)

	metadata := sql.NullString{String: string(entry.Metadata), Valid: len(entry.Metadata) > 0}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, tenant_id, actor, role, action, resource_type, resource_id, station_id,
	metadata, payload_digest, prev_digest, chain_digest, ip, user_agent, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		entry.ID, entry.TenantID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.StationID,
		metadata, entry.PayloadDigest, entry.PrevDigest, entry.ChainDigest, entry.IP, entry.UserAgent, entry.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns matching entries in chain order.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	var (
		clauses []string
		args    []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("tenant_id", filter.TenantID)
	add("station_id", filter.StationID)
	add("resource_type", filter.ResourceType)
	add("resource_id", filter.ResourceID)

	query := "SELECT " + entryColumns + " FROM audit_logs"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.TenantID, &e.Actor, &e.Role, &e.Action, &e.ResourceType, &e.ResourceID, &e.StationID,
			&metadata, &e.PayloadDigest, &e.PrevDigest, &e.ChainDigest, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if metadata.Valid {
			e.Metadata = json.RawMessage(metadata.String)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Verify walks the full chain of a station.
func (r *Repository) Verify(ctx context.Context, stationID string) (Verification, error) {
	entries, err := r.List(ctx, Filter{StationID: stationID})
	if err != nil {
		return Verification{}, err
	}
	return VerifyChain(stationID, entries), nil
}
