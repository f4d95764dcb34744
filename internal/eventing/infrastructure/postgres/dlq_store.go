package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fuelstation-cloud/internal/eventing"
)

// DeadLetter is an event the dispatcher gave up on.
type DeadLetter struct {
	Envelope    eventing.Envelope `json:"envelope"`
	Error       string            `json:"error"`
	Attempts    int               `json:"attempts"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	LastSeenAt  time.Time         `json:"last_seen_at"`
}

// DLQStore keeps one row per failed event id.
type DLQStore struct {
	store *Store
}

// RecordFailure inserts the failure or bumps the existing row.
func (d *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if err := d.store.ready(); err != nil {
		return err
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	table := d.store.deadLetters
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, event_type, payload, error, first_seen_at, last_seen_at, attempts)
VALUES ($1, $2, $3, $4, $5, $5, 1)
ON CONFLICT (event_id) DO UPDATE SET
	payload = EXCLUDED.payload,
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %s.attempts + 1`, table, table)
	_, err = d.store.db.ExecContext(ctx, query, env.EventID, env.EventType, payload, message, time.Now().UTC())
	return err
}

// List returns the most recently failed events first.
func (d *DLQStore) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	if err := d.store.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT payload, error, attempts, first_seen_at, last_seen_at
FROM %s
ORDER BY last_seen_at DESC
LIMIT $1`, d.store.deadLetters)
	rows, err := d.store.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var (
			letter  DeadLetter
			payload []byte
		)
		if err := rows.Scan(&payload, &letter.Error, &letter.Attempts, &letter.FirstSeenAt, &letter.LastSeenAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &letter.Envelope); err != nil {
			return nil, err
		}
		letter.FirstSeenAt = letter.FirstSeenAt.UTC()
		letter.LastSeenAt = letter.LastSeenAt.UTC()
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}

// Remove deletes the dead letter for eventID.
func (d *DLQStore) Remove(ctx context.Context, eventID string) error {
	if err := d.store.ready(); err != nil {
		return err
	}
	_, err := d.store.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE event_id = $1`, d.store.deadLetters), eventID)
	return err
}
