package store

import (
	"context"
	"database/sql"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	"github.com/TFMV/tally/pkg/errors"
)

// DefaultPrepareThreshold matches the PostgreSQL driver default: a statement
// switches to a cached server-side plan after five executions.
const DefaultPrepareThreshold = 5

// duckdbChannel implements Channel over a database/sql DuckDB handle. The
// *sql.DB is borrowed; the caller that opened it closes it.
type duckdbChannel struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewDuckDBChannel wraps an open DuckDB database handle.
func NewDuckDBChannel(db *sql.DB, logger zerolog.Logger) Channel {
	return &duckdbChannel{
		db:     db,
		logger: logger.With().Str("channel", "duckdb").Logger(),
	}
}

// OpenDuckDB opens a DuckDB database at the given path (":memory:" for an
// in-memory store). The returned *sql.DB is owned by the caller.
func OpenDuckDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to open duckdb database")
	}
	return db, nil
}

// Capabilities advertises what this channel supports.
func (c *duckdbChannel) Capabilities() CapabilitySet {
	return NewCapabilitySet(
		CapabilityBatchWrite,
		CapabilityServerPreparation,
		CapabilityExplainAnalyze,
	)
}

// ExecuteWrite executes a single write statement.
func (c *duckdbChannel) ExecuteWrite(ctx context.Context, query string, params ...interface{}) (int64, error) {
	c.logger.Debug().Str("sql", query).Int("params", len(params)).Msg("Executing write")

	result, err := c.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeQueryFailed, "write failed: %s", query)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		// DuckDB reports affected counts for DML; DDL may not.
		return 0, nil
	}
	return affected, nil
}

// ExecuteBatch sends a group of statements inside one transaction, preparing
// each distinct statement text once. A failing item aborts the batch and is
// attributed by index.
func (c *duckdbChannel) ExecuteBatch(ctx context.Context, batch []Statement) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	c.logger.Debug().Int("batch_size", len(batch)).Msg("Executing batch")

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to begin batch transaction")
	}

	stmts := make(map[string]*sql.Stmt, 1)
	defer func() {
		for _, stmt := range stmts {
			_ = stmt.Close()
		}
	}()

	counts := make([]int64, 0, len(batch))
	for i, item := range batch {
		stmt, ok := stmts[item.SQL]
		if !ok {
			stmt, err = tx.PrepareContext(ctx, item.SQL)
			if err != nil {
				_ = tx.Rollback()
				return nil, &BatchItemError{Index: i, Cause: err}
			}
			stmts[item.SQL] = stmt
		}

		result, err := stmt.ExecContext(ctx, item.Params...)
		if err != nil {
			_ = tx.Rollback()
			return nil, &BatchItemError{Index: i, Cause: err}
		}

		affected, err := result.RowsAffected()
		if err != nil {
			affected = 0
		}
		counts = append(counts, affected)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.CodeBatchFailed, "failed to commit batch")
	}
	return counts, nil
}

// ExecuteQuery executes a read statement.
func (c *duckdbChannel) ExecuteQuery(ctx context.Context, query string, params ...interface{}) (Rows, error) {
	c.logger.Debug().Str("sql", query).Int("params", len(params)).Msg("Executing query")

	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeQueryFailed, "query failed: %s", query)
	}
	return rows, nil
}

// Prepare compiles a parameterized statement.
func (c *duckdbChannel) Prepare(ctx context.Context, query string) (PreparedStatement, error) {
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodePrepareFailed, "failed to prepare statement: %s", query)
	}
	return &duckdbStatement{
		stmt:      stmt,
		sql:       query,
		threshold: DefaultPrepareThreshold,
	}, nil
}

// duckdbStatement tracks executions against a prepare threshold the way the
// PostgreSQL driver's PGStatement does. DuckDB plans prepared statements
// server-side; the counter reproduces the threshold contract so callers can
// pin and introspect preparation state uniformly.
type duckdbStatement struct {
	stmt       *sql.Stmt
	sql        string
	threshold  int
	executions int
}

// Query executes the statement, counting the execution against the threshold.
func (s *duckdbStatement) Query(ctx context.Context, params ...interface{}) (Rows, error) {
	rows, err := s.stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeQueryFailed, "prepared query failed: %s", s.sql)
	}
	s.executions++
	return rows, nil
}

// Close releases the compiled statement.
func (s *duckdbStatement) Close() error {
	return s.stmt.Close()
}

// SetPrepareThreshold configures after how many executions the statement is
// treated as server-side prepared. A threshold of 1 makes the very next
// execution the triggering one; zero or below disables server-side
// preparation, mirroring the PostgreSQL driver semantics.
func (s *duckdbStatement) SetPrepareThreshold(threshold int) error {
	s.threshold = threshold
	return nil
}

// IsServerPrepared reports whether the statement crossed its threshold.
func (s *duckdbStatement) IsServerPrepared() bool {
	return s.threshold > 0 && s.executions >= s.threshold
}
