package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fuelstation-cloud/internal/eventing"
)

// OutboxStore persists envelopes until the dispatcher delivers them.
type OutboxStore struct {
	store *Store
}

// Insert stores env as pending. A repeated event id keeps the first row.
func (o *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if err := o.store.ready(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, payload, status, attempts)
VALUES ($1, $2, $3, $4, 'pending', 0)
ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
RETURNING id`, o.store.outbox)
	var id string
	if err := o.store.db.QueryRowContext(ctx, query, eventing.NewEventID(), env.EventID, env.EventType, payload).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ListPending returns pending rows and failed rows below maxAttempts,
// oldest first.
func (o *OutboxStore) ListPending(ctx context.Context, limit, maxAttempts int) ([]eventing.OutboxRecord, error) {
	if err := o.store.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, payload, attempts
FROM %s
WHERE status = 'pending' OR (status = 'failed' AND attempts < $2)
ORDER BY created_at ASC, id ASC
LIMIT $1`, o.store.outbox)
	rows, err := o.store.db.QueryContext(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []eventing.OutboxRecord
	for rows.Next() {
		var (
			record  eventing.OutboxRecord
			payload []byte
		)
		if err := rows.Scan(&record.ID, &payload, &record.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &record.Envelope); err != nil {
			return nil, fmt.Errorf("outbox %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (o *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return o.setStatus(ctx, id, "sent", false)
}

// MarkFailed records a failed delivery that will be retried.
func (o *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return o.setStatus(ctx, id, "failed", true)
}

// MarkDead parks a row that will not be retried.
func (o *OutboxStore) MarkDead(ctx context.Context, id string) error {
	return o.setStatus(ctx, id, "dead", true)
}

func (o *OutboxStore) setStatus(ctx context.Context, id, status string, attempt bool) error {
	if err := o.store.ready(); err != nil {
		return err
	}
	increment := 0
	if attempt {
		increment = 1
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1,
	attempts = attempts + $2,
	sent_at = CASE WHEN $1 = 'sent' THEN $3 ELSE sent_at END
WHERE id = $4`, o.store.outbox)
	_, err := o.store.db.ExecContext(ctx, query, status, increment, time.Now().UTC(), id)
	return err
}

// Requeue moves a dead row back to pending with a fresh attempt budget.
// It reports whether a dead row for eventID existed.
func (o *OutboxStore) Requeue(ctx context.Context, eventID string) (bool, error) {
	if err := o.store.ready(); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'pending', attempts = 0
WHERE event_id = $1 AND status = 'dead'`, o.store.outbox)
	result, err := o.store.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// Counts returns the number of rows per status.
func (o *OutboxStore) Counts(ctx context.Context) (map[string]int, error) {
	if err := o.store.ready(); err != nil {
		return nil, err
	}
	rows, err := o.store.db.QueryContext(ctx, fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, o.store.outbox))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
