package dbx

import (
	"context"
	"database/sql"
	"sync"
)

// Transactor runs units of work atomically. Conn returns the handle for
// reads that do not need a transaction.
type Transactor interface {
	Conn() DBTX
	WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLTransactor is the database/sql implementation.
type SQLTransactor struct {
	db *sql.DB
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

func (t *SQLTransactor) Conn() DBTX {
	return t.db
}

func (t *SQLTransactor) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, t.db, opts, fn)
}

// LockingTransactor serializes units of work behind a mutex and passes a nil
// handle. It backs in-memory repositories, which ignore the handle.
type LockingTransactor struct {
	mu sync.Mutex
}

func NewLockingTransactor() *LockingTransactor {
	return &LockingTransactor{}
}

func (t *LockingTransactor) Conn() DBTX {
	return nil
}

func (t *LockingTransactor) WithTx(ctx context.Context, _ *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx, nil)
}
