// Package batch buffers record writes and flushes them in bounded groups,
// so N writes cost ceil(N/batchSize) round-trips instead of N.
package batch

import (
	"context"
	stderrors "errors"

	"github.com/rs/zerolog"

	"github.com/TFMV/tally/pkg/errors"
	"github.com/TFMV/tally/pkg/infrastructure/metrics"
	"github.com/TFMV/tally/pkg/models"
	"github.com/TFMV/tally/pkg/store"
)

// DefaultBatchSize is the flush threshold used when none is configured.
const DefaultBatchSize = 100

// Options configures a Writer.
type Options struct {
	// BatchSize is the flush threshold. Defaults to DefaultBatchSize.
	BatchSize int
	// Identity selects how record identifiers are assigned.
	Identity store.IdentityStrategy
	// Marshaler converts categories to the store's native enum value.
	// Defaults to the text enum marshaler.
	Marshaler store.CategoryMarshaler
	// Logger receives per-flush debug output.
	Logger zerolog.Logger
	// Metrics receives flush counters and durations. Defaults to no-op.
	Metrics metrics.Collector
}

// Writer accumulates record inserts against a borrowed channel and flushes
// them in contiguous groups of exactly BatchSize records, except possibly
// the final partial group flushed by Finish. A Writer owns its channel
// exclusively for the duration of a write session and must not be shared
// across goroutines. It never retries a failed flush and never closes the
// channel.
type Writer struct {
	ch        store.Channel
	insertSQL string
	identity  store.IdentityStrategy
	marshaler store.CategoryMarshaler

	batchSize int
	pending   []store.Statement
	flushes   int64
	total     int64
	closed    bool

	logger  zerolog.Logger
	metrics metrics.Collector
}

// NewWriter creates a writer for the given table. The channel is borrowed;
// the caller keeps ownership of its lifecycle.
func NewWriter(ch store.Channel, table string, opts Options) (*Writer, error) {
	if ch == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "channel cannot be nil")
	}
	if table == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "table cannot be empty")
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < 0 {
		return nil, errors.ErrInvalidBatchSize
	}

	marshaler := opts.Marshaler
	if marshaler == nil {
		marshaler = store.NewEnumMarshaler()
	}

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}

	return &Writer{
		ch:        ch,
		insertSQL: store.InsertStatement(table, opts.Identity),
		identity:  opts.Identity,
		marshaler: marshaler,
		batchSize: batchSize,
		pending:   make([]store.Statement, 0, batchSize),
		logger:    opts.Logger.With().Str("component", "batch_writer").Str("table", table).Logger(),
		metrics:   collector,
	}, nil
}

// Configure changes the flush threshold. A non-positive size fails with a
// configuration error and leaves the prior threshold untouched.
func (w *Writer) Configure(batchSize int) error {
	if batchSize <= 0 {
		return errors.ErrInvalidBatchSize
	}
	w.batchSize = batchSize
	return nil
}

// Add appends a record to the pending group and flushes when the group
// reaches the configured size. The record is never mutated; the writer owns
// only the bound statement it derives from it.
func (w *Writer) Add(ctx context.Context, rec models.Record) error {
	if w.closed {
		return errors.ErrWriterClosed
	}

	params, err := store.BindRecord(rec, w.identity, w.marshaler)
	if err != nil {
		return err
	}

	w.pending = append(w.pending, store.Statement{SQL: w.insertSQL, Params: params})
	w.total++

	if len(w.pending) >= w.batchSize {
		return w.flush(ctx)
	}
	return nil
}

// Finish flushes any remaining pending records (possibly none) and closes
// the writer. Calling Finish a second time fails with a writer-closed error.
func (w *Writer) Finish(ctx context.Context) error {
	if w.closed {
		return errors.ErrWriterClosed
	}
	// The writer closes even when the final flush fails; retry policy
	// belongs to the caller, on a fresh writer.
	w.closed = true

	if err := w.flush(ctx); err != nil {
		return err
	}

	w.logger.Debug().
		Int64("records", w.total).
		Int64("flushes", w.flushes).
		Msg("Write session finished")
	return nil
}

// flush sends the pending group in one round-trip. Empty groups are a no-op.
func (w *Writer) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	size := len(w.pending)
	timer := w.metrics.StartTimer("batch_flush_duration_seconds")
	_, err := w.ch.ExecuteBatch(ctx, w.pending)
	timer.Stop()

	w.pending = w.pending[:0]

	if err != nil {
		w.metrics.IncrementCounter("batch_flush_errors_total")
		return w.wrapFlushError(err, size)
	}

	w.flushes++
	w.metrics.IncrementCounter("batch_flush_total")
	w.metrics.RecordHistogram("batch_flush_records", float64(size))
	w.logger.Debug().Int("records", size).Msg("Flushed batch")
	return nil
}

// wrapFlushError attributes the failure to a single item when the channel
// reports one, else carries whole-batch context.
func (w *Writer) wrapFlushError(err error, size int) error {
	flushErr := errors.Wrap(err, errors.CodeBatchFailed, "batch flush failed").
		WithDetail("batch_size", size)

	var itemErr *store.BatchItemError
	if stderrors.As(err, &itemErr) {
		flushErr.WithDetail("failed_index", itemErr.Index)
	}
	return flushErr
}

// Pending returns the number of records buffered since the last flush.
func (w *Writer) Pending() int {
	return len(w.pending)
}

// Flushes returns the number of successful flush round-trips.
func (w *Writer) Flushes() int64 {
	return w.flushes
}

// Total returns the number of records accepted by Add.
func (w *Writer) Total() int64 {
	return w.total
}

// BatchSize returns the configured flush threshold.
func (w *Writer) BatchSize() int {
	return w.batchSize
}

// Closed reports whether Finish has run.
func (w *Writer) Closed() bool {
	return w.closed
}
