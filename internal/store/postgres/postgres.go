package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

//go:embed schema.sql
var schemaSQL string

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*pgTx)(nil)
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements store.Reader over either the pool or an open transaction.
type queries struct {
	q querier
}

type Store struct {
	queries
	db          *sql.DB
	lockTimeout time.Duration
}

type pgTx struct {
	queries
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{queries: queries{q: db}, db: db, lockTimeout: 5 * time.Second}, nil
}

// WithLockTimeout bounds how long a unit of work waits on a row lock.
func (s *Store) WithLockTimeout(d time.Duration) *Store {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate("begin", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if _, err := sqlTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return translate("set lock timeout", err)
	}

	if err := fn(&pgTx{queries: queries{q: sqlTx}}); err != nil {
		return translate("unit of work", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return translate("commit", err)
	}
	return nil
}

// translate maps driver failures onto the store taxonomy. Typed store errors
// pass through untouched.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if isStoreError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &store.BusyError{Op: op, Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01", "57014":
			return &store.BusyError{Op: op, Cause: err}
		// Table and constraint names stay out of client-facing errors.
		case "23505":
			return &store.ConflictError{Entity: "record", Key: "key", Reason: "already exists"}
		case "23503":
			return fmt.Errorf("%w: referenced row missing", store.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isStoreError(err error) bool {
	for _, sentinel := range []error{
		store.ErrValidation, store.ErrNotFound, store.ErrConflict, store.ErrInsufficientStock,
		store.ErrOverpayment, store.ErrDocumentVoided, store.ErrNoActiveSession, store.ErrBusy,
		store.ErrInconsistent,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	at := val.Time.UTC()
	return &at
}
