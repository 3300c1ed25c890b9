package db

import (
	"context"
	"database/sql"
)

// Database defines the unified interface for database operations.
// This abstraction allows switching between SQL backends without touching
// business logic, and lets repositories run the same code inside and
// outside transactions via Querier.
type Database interface {
	Querier

	// Transaction executes a function within a database transaction.
	// The transaction is rolled back if fn returns an error.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// BeginTx starts a new transaction with the given options.
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)

	// Ping verifies a connection to the database is still alive.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Transaction represents an in-progress database transaction.
type Transaction interface {
	Querier

	Commit() error
	Rollback() error
}

// Rows is the result of a query returning multiple rows.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of a query returning at most one row.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// IsolationLevel mirrors sql.IsolationLevel for transaction options.
type IsolationLevel int

const (
	LevelDefault IsolationLevel = iota
	LevelReadCommitted
	LevelRepeatableRead
	LevelSerializable
)

// TxOptions holds transaction options.
type TxOptions struct {
	Isolation IsolationLevel
	ReadOnly  bool
}

// ConvertTxOptions maps TxOptions to database/sql options.
func ConvertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	var iso sql.IsolationLevel
	switch opts.Isolation {
	case LevelReadCommitted:
		iso = sql.LevelReadCommitted
	case LevelRepeatableRead:
		iso = sql.LevelRepeatableRead
	case LevelSerializable:
		iso = sql.LevelSerializable
	default:
		iso = sql.LevelDefault
	}
	return &sql.TxOptions{Isolation: iso, ReadOnly: opts.ReadOnly}
}
