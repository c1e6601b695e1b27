package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// querier is the subset of sql.DB and sql.Tx the entity methods run against.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore backs Store with PostgreSQL. A zero tx means calls go straight
// to the pool; BeginTx hands out a view bound to one transaction.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore connects to the database and verifies the connection.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// SetConnLimits applies the configured pool limits.
func (s *PostgresStore) SetConnLimits(maxOpen, maxIdle int, maxLifetime time.Duration) {
	s.db.SetMaxOpenConns(maxOpen)
	s.db.SetMaxIdleConns(maxIdle)
	s.db.SetConnMaxLifetime(maxLifetime)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a transaction and returns a Store running inside it. The
// caller owns Commit or Rollback; the parent store stays usable.
func (s *PostgresStore) BeginTx(ctx context.Context) (Store, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &PostgresStore{db: s.db, tx: tx}, nil
}

func (s *PostgresStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

func (s *PostgresStore) Rollback() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback()
}

func (s *PostgresStore) getDB() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}
