package postgres

import (
	"database/sql"
	"errors"
)

var errNilDB = errors.New("eventing store: nil db")

// Store groups the outbox, dead letter and processed-event tables.
type Store struct {
	db          *sql.DB
	outbox      string
	deadLetters string
	processed   string
}

// Option configures the store.
type Option func(*Store)

// WithTables overrides table names; empty values keep the defaults.
func WithTables(outbox, deadLetters, processed string) Option {
	return func(s *Store) {
		if outbox != "" {
			s.outbox = outbox
		}
		if deadLetters != "" {
			s.deadLetters = deadLetters
		}
		if processed != "" {
			s.processed = processed
		}
	}
}

// NewStore constructs a Store.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		outbox:      "event_outbox",
		deadLetters: "dead_letter_events",
		processed:   "processed_events",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Outbox() *OutboxStore { return &OutboxStore{store: s} }

func (s *Store) DeadLetters() *DLQStore { return &DLQStore{store: s} }

func (s *Store) Processed() *ProcessedStore { return &ProcessedStore{store: s} }

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errNilDB
	}
	return nil
}
