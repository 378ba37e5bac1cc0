// Package plan captures textual execution plans for parameterized queries,
// pinning statements to server-side preparation so plan output reflects the
// store's cached generic plan rather than a per-call client-side plan.
package plan

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TFMV/tally/pkg/errors"
	"github.com/TFMV/tally/pkg/infrastructure/metrics"
	"github.com/TFMV/tally/pkg/models"
	"github.com/TFMV/tally/pkg/store"
)

// explainModifier asks the store for the executed plan with runtime
// statistics, not just the estimate.
const explainModifier = "EXPLAIN ANALYZE "

// Options configures an Inspector.
type Options struct {
	Logger  zerolog.Logger
	Metrics metrics.Collector
}

// Inspector prepares parameterized queries against a borrowed channel and
// extracts their execution plans. Like the batch writer, an Inspector owns
// its channel exclusively and must not be shared across goroutines.
type Inspector struct {
	ch      store.Channel
	handles map[string]*StatementHandle
	logger  zerolog.Logger
	metrics metrics.Collector

	// pinSupported caches the channel-level capability probe; channels that
	// do not advertise server-side preparation degrade to local bookkeeping
	// even when a statement happens to expose the control.
	pinSupported bool
}

// StatementHandle is one compiled query plus its preparation-pin state.
// Handles are scoped to the statement's lifetime; Close releases them.
type StatementHandle struct {
	id    string
	query string
	stmt  store.PreparedStatement

	// pinner is set when the channel advertises the preparation capability
	// and the statement exposes the control; nil handles degrade to local
	// bookkeeping.
	pinner store.PreparationPinner

	// local bookkeeping for handles without a native pinner
	localThreshold  int
	localExecutions int
	degraded        bool
}

// ID returns the handle identifier.
func (h *StatementHandle) ID() string {
	return h.id
}

// Query returns the query source the handle was prepared from.
func (h *StatementHandle) Query() string {
	return h.query
}

// NewInspector creates an inspector over the given channel.
func NewInspector(ch store.Channel, opts Options) (*Inspector, error) {
	if ch == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "channel cannot be nil")
	}

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}

	logger := opts.Logger.With().Str("component", "plan_inspector").Logger()

	pinSupported := store.Supports(ch, store.CapabilityServerPreparation)
	if !pinSupported {
		logger.Warn().Msg("Channel does not advertise server-side preparation, pinning degrades to local bookkeeping")
	}

	return &Inspector{
		ch:           ch,
		handles:      make(map[string]*StatementHandle),
		logger:       logger,
		metrics:      collector,
		pinSupported: pinSupported,
	}, nil
}

// Prepare compiles a parameterized query. The explain modifier is part of
// the compiled text so pin state and plan output come from one statement:
// drivers track the preparation threshold per statement handle, and
// capturing the plan through a second handle would not consume it.
func (i *Inspector) Prepare(ctx context.Context, query string) (*StatementHandle, error) {
	preparer, ok := i.ch.(store.Preparer)
	if !ok {
		return nil, errors.New(errors.CodePrepareFailed, "channel cannot prepare statements")
	}

	stmt, err := preparer.Prepare(ctx, explainModifier+query)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodePrepareFailed, "failed to prepare query: %s", query)
	}

	handle := &StatementHandle{
		id:    uuid.New().String(),
		query: query,
		stmt:  stmt,
	}
	if pinner, ok := stmt.(store.PreparationPinner); ok && i.pinSupported {
		handle.pinner = pinner
	}
	i.handles[handle.id] = handle

	i.logger.Debug().Str("handle", handle.id).Str("query", query).Msg("Prepared statement")
	return handle, nil
}

// PinServerSidePreparation configures the handle so that after the given
// number of executions the store treats the statement as eligible for
// server-side generic-plan caching. Use 1 to make the very next execution
// the triggering one.
//
// When the channel does not expose the control, the first call per handle
// fails with an unsupported-capability error and arms local execution
// bookkeeping instead; subsequent calls are a no-op. The degradation affects
// only diagnostic plan accuracy, never write/read correctness, so callers
// are expected to log the error and proceed.
func (i *Inspector) PinServerSidePreparation(handle *StatementHandle, afterExecutions int) error {
	if handle == nil {
		return errors.ErrStatementNotFound
	}
	if afterExecutions <= 0 {
		return errors.New(errors.CodeInvalidConfig, "prepare threshold must be positive").
			WithDetail("after_executions", afterExecutions)
	}

	handle.localThreshold = afterExecutions

	if handle.pinner != nil {
		if err := handle.pinner.SetPrepareThreshold(afterExecutions); err != nil {
			return errors.Wrap(err, errors.CodeUnsupportedCapability, "failed to set prepare threshold")
		}
		i.logger.Debug().
			Str("handle", handle.id).
			Int("after_executions", afterExecutions).
			Msg("Pinned server-side preparation")
		return nil
	}

	if handle.degraded {
		return nil
	}
	handle.degraded = true
	i.metrics.IncrementCounter("plan_pin_unsupported_total")
	return errors.ErrServerPrepareNotSupported
}

// IsServerSidePrepared introspects the handle's preparation state. Before
// the first execution it reports false; once executions reach the pinned
// threshold it reports true.
func (i *Inspector) IsServerSidePrepared(handle *StatementHandle) (bool, error) {
	if handle == nil {
		return false, errors.ErrStatementNotFound
	}
	if handle.pinner != nil {
		return handle.pinner.IsServerPrepared(), nil
	}
	return handle.localThreshold > 0 && handle.localExecutions >= handle.localThreshold, nil
}

// Execute runs the statement once, discarding its output. Each call counts
// one execution against the pin threshold.
func (i *Inspector) Execute(ctx context.Context, handle *StatementHandle, params ...interface{}) error {
	if handle == nil {
		return errors.ErrStatementNotFound
	}

	rows, err := handle.stmt.Query(ctx, params...)
	if err != nil {
		return errors.Wrap(err, errors.CodeQueryFailed, "statement execution failed")
	}
	handle.localExecutions++

	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.CodeQueryFailed, "statement execution failed")
	}
	return nil
}

// Explain binds the parameter, executes the query under the explain
// modifier, and returns the ordered plan-line sequence the store produced.
func (i *Inspector) Explain(ctx context.Context, handle *StatementHandle, params ...interface{}) (models.ExecutionPlan, error) {
	if handle == nil {
		return nil, errors.ErrStatementNotFound
	}

	timer := i.metrics.StartTimer("plan_explain_duration_seconds")
	defer timer.Stop()

	rows, err := handle.stmt.Query(ctx, params...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "explain execution failed")
	}
	handle.localExecutions++
	defer rows.Close()

	plan, err := collectPlanLines(rows)
	if err != nil {
		return nil, err
	}

	i.metrics.IncrementCounter("plan_explain_total")
	i.logger.Debug().
		Str("handle", handle.id).
		Int("plan_lines", len(plan)).
		Msg("Captured execution plan")
	return plan, nil
}

// Close releases the handle's compiled statement. Closing a handle this
// inspector did not prepare, or one already closed, is an error.
func (i *Inspector) Close(handle *StatementHandle) error {
	if handle == nil {
		return errors.ErrStatementNotFound
	}
	if _, ok := i.handles[handle.id]; !ok {
		return errors.ErrStatementNotFound
	}
	delete(i.handles, handle.id)
	if err := handle.stmt.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close statement")
	}
	return nil
}

// CapturePlan runs the full pinning protocol against a fresh handle:
// prepare, pin with threshold 1, execute once to consume the threshold,
// then capture the plan. Unsupported pinning degrades to best-effort with a
// warning. The handle is closed before returning.
func (i *Inspector) CapturePlan(ctx context.Context, query string, params ...interface{}) (models.ExecutionPlan, error) {
	handle, err := i.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := i.Close(handle); cerr != nil {
			i.logger.Warn().Err(cerr).Str("handle", handle.id).Msg("Failed to close statement")
		}
	}()

	prepared, err := i.IsServerSidePrepared(handle)
	if err != nil {
		return nil, err
	}
	if prepared {
		return nil, errors.New(errors.CodeInternal, "statement server-prepared before first execution")
	}

	if err := i.PinServerSidePreparation(handle, 1); err != nil {
		if !errors.IsUnsupportedCapability(err) {
			return nil, err
		}
		i.logger.Warn().Err(err).Msg("Proceeding without server-side preparation pin")
	}

	if err := i.Execute(ctx, handle, params...); err != nil {
		return nil, err
	}

	prepared, err = i.IsServerSidePrepared(handle)
	if err != nil {
		return nil, err
	}
	if !prepared {
		return nil, errors.New(errors.CodeInternal, "statement not server-prepared after pinned execution")
	}

	return i.Explain(ctx, handle, params...)
}

// collectPlanLines reads a cursor of explain output into ordered plan lines.
// PostgreSQL-style output is one line per row in a single column; DuckDB
// returns (key, value) pairs whose values hold the whole rendered tree, so
// multi-line values are split.
func collectPlanLines(rows store.Rows) (models.ExecutionPlan, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to read explain columns")
	}

	var plan models.ExecutionPlan
	for rows.Next() {
		switch len(cols) {
		case 1:
			var line string
			if err := rows.Scan(&line); err != nil {
				return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to scan plan line")
			}
			plan = append(plan, line)
		default:
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to scan plan line")
			}
			for _, line := range strings.Split(strings.TrimRight(value, "\n"), "\n") {
				plan = append(plan, line)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to read plan rows")
	}
	return plan, nil
}
