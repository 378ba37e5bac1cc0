// Package store defines the abstract channel the batch and plan components
// consume, plus the DuckDB implementation of it.
package store

import (
	"context"
	"fmt"
)

// Statement is one parameterized write queued for a batch round-trip.
type Statement struct {
	SQL    string
	Params []interface{}
}

// Rows is the minimal result cursor the core needs. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Channel is a synchronous write/read channel to a relational store. A
// channel is borrowed, never owned: the caller that opened the underlying
// connection closes it. No two goroutines may share one channel.
type Channel interface {
	// ExecuteWrite executes a single write statement and returns the
	// affected row count.
	ExecuteWrite(ctx context.Context, sql string, params ...interface{}) (int64, error)
	// ExecuteBatch sends a group of statements in one round-trip and
	// returns the per-statement affected counts.
	ExecuteBatch(ctx context.Context, batch []Statement) ([]int64, error)
	// ExecuteQuery executes a read statement and returns a row cursor.
	ExecuteQuery(ctx context.Context, sql string, params ...interface{}) (Rows, error)
}

// Preparer is implemented by channels that can compile a parameterized
// statement ahead of execution.
type Preparer interface {
	Prepare(ctx context.Context, sql string) (PreparedStatement, error)
}

// PreparedStatement is a compiled statement bound to one channel. Close it
// when done; the statement does not outlive its channel.
type PreparedStatement interface {
	Query(ctx context.Context, params ...interface{}) (Rows, error)
	Close() error
}

// PreparationPinner is implemented by prepared statements that expose the
// driver's server-side preparation control. The threshold counts executions:
// once a statement has run that many times, the store caches and reuses a
// generic plan instead of re-planning per call.
type PreparationPinner interface {
	SetPrepareThreshold(threshold int) error
	IsServerPrepared() bool
}

// BatchItemError attributes a batch failure to a single item when the store
// can report one.
type BatchItemError struct {
	Index int
	Cause error
}

// Error implements the error interface.
func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d failed: %v", e.Index, e.Cause)
}

// Unwrap returns the underlying error.
func (e *BatchItemError) Unwrap() error {
	return e.Cause
}
