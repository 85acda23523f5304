package store

import (
	"context"
	"fmt"
	"time"

	"commerce-service/internal/service"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection. It implements service.Store; all
// writes to orders, movements and events happen through InTx.
type Store struct {
	db        *sqlx.DB
	txTimeout time.Duration
}

// NewStore creates a new database store. txTimeout bounds every dispatcher
// transaction; on expiry the transaction rolls back entirely and the event is
// left to the provider's redelivery.
func NewStore(databaseURL string, txTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, txTimeout: txTimeout}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in one transaction under the configured timeout.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &TxStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// TxStore is the transactional view handed to the dispatcher. It implements
// service.Tx.
type TxStore struct {
	tx *sqlx.Tx
}

// BeginApply opens the savepoint guarding a dispatch's side effects.
func (t *TxStore) BeginApply(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT apply")
	return err
}

// RollbackApply unwinds the side effects while keeping the event row, so a
// business-rule failure is durably recorded without anything half-applied.
func (t *TxStore) RollbackApply(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT apply")
	return err
}
