package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errProcessedArgs = errors.New("processed store: event id and consumer are required")

// ProcessedStore records which consumer handled which event.
type ProcessedStore struct {
	store *Store
}

func (p *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := p.store.ready(); err != nil {
		return false, err
	}
	if eventID == "" || consumerName == "" {
		return false, errProcessedArgs
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2)`, p.store.processed)
	var exists bool
	err := p.store.db.QueryRowContext(ctx, query, eventID, consumerName).Scan(&exists)
	return exists, err
}

func (p *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := p.store.ready(); err != nil {
		return err
	}
	if eventID == "" || consumerName == "" {
		return errProcessedArgs
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, p.store.processed)
	_, err := p.store.db.ExecContext(ctx, query, eventID, consumerName, time.Now().UTC())
	return err
}

// Prune drops marks older than before and returns how many were removed.
func (p *ProcessedStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := p.store.ready(); err != nil {
		return 0, err
	}
	result, err := p.store.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE processed_at < $1`, p.store.processed), before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
