package plan

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/tally/pkg/errors"
	"github.com/TFMV/tally/pkg/models"
	"github.com/TFMV/tally/pkg/store"
)

// planRows serves canned single-column explain output.
type planRows struct {
	lines []string
	pos   int
	cols  []string
}

func newPlanRows(lines ...string) *planRows {
	return &planRows{lines: lines, cols: []string{"QUERY PLAN"}}
}

func (r *planRows) Next() bool {
	if r.pos >= len(r.lines) {
		return false
	}
	r.pos++
	return true
}

func (r *planRows) Scan(dest ...interface{}) error {
	line := r.lines[r.pos-1]
	if len(dest) == 1 {
		*(dest[0].(*string)) = line
		return nil
	}
	*(dest[0].(*string)) = "explain_value"
	*(dest[1].(*string)) = line
	return nil
}

func (r *planRows) Columns() ([]string, error) { return r.cols, nil }
func (r *planRows) Err() error                 { return nil }
func (r *planRows) Close() error               { return nil }

// fakeStatement is a prepared statement with the preparation-pin capability.
type fakeStatement struct {
	plans      [][]string
	executions int
	threshold  int
	queryErr   error
	closed     bool
}

func (s *fakeStatement) Query(ctx context.Context, params ...interface{}) (store.Rows, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	idx := s.executions
	if idx >= len(s.plans) {
		idx = len(s.plans) - 1
	}
	s.executions++
	return newPlanRows(s.plans[idx]...), nil
}

func (s *fakeStatement) Close() error { s.closed = true; return nil }

func (s *fakeStatement) SetPrepareThreshold(threshold int) error {
	s.threshold = threshold
	return nil
}

func (s *fakeStatement) IsServerPrepared() bool {
	return s.threshold > 0 && s.executions >= s.threshold
}

// bareStatement lacks the preparation-pin capability.
type bareStatement struct {
	fakeStatement
}

// store.PreparationPinner must not be satisfied; shadow the methods away.
func (s *bareStatement) SetPrepareThreshold() {}
func (s *bareStatement) IsServerPrepared()    {}

// fakeChannel hands out a scripted statement per Prepare call. It advertises
// the server-preparation capability unless noPinCap is set.
type fakeChannel struct {
	statements []store.PreparedStatement
	prepared   []string
	prepareErr error
	noPinCap   bool
}

func (c *fakeChannel) Capabilities() store.CapabilitySet {
	if c.noPinCap {
		return store.NewCapabilitySet(store.CapabilityExplainAnalyze)
	}
	return store.NewCapabilitySet(store.CapabilityServerPreparation, store.CapabilityExplainAnalyze)
}

func (c *fakeChannel) ExecuteWrite(ctx context.Context, sql string, params ...interface{}) (int64, error) {
	return 0, nil
}

func (c *fakeChannel) ExecuteBatch(ctx context.Context, batch []store.Statement) ([]int64, error) {
	return nil, nil
}

func (c *fakeChannel) ExecuteQuery(ctx context.Context, sql string, params ...interface{}) (store.Rows, error) {
	return nil, nil
}

func (c *fakeChannel) Prepare(ctx context.Context, sql string) (store.PreparedStatement, error) {
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	c.prepared = append(c.prepared, sql)
	stmt := c.statements[len(c.prepared)-1]
	return stmt, nil
}

const selectByStatus = "SELECT * FROM task WHERE status = ?"

func TestInspector_PinningProtocol(t *testing.T) {
	stmt := &fakeStatement{plans: [][]string{{"Seq Scan on task"}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	handle, err := insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	// before any execution the statement must not be server-prepared
	prepared, err := insp.IsServerSidePrepared(handle)
	require.NoError(t, err)
	assert.False(t, prepared)

	require.NoError(t, insp.PinServerSidePreparation(handle, 1))

	// the pin alone does not flip the state
	prepared, err = insp.IsServerSidePrepared(handle)
	require.NoError(t, err)
	assert.False(t, prepared)

	// one execution consumes the threshold
	require.NoError(t, insp.Execute(context.Background(), handle, "DONE"))

	prepared, err = insp.IsServerSidePrepared(handle)
	require.NoError(t, err)
	assert.True(t, prepared)
}

func TestInspector_PrepareUsesExplainModifier(t *testing.T) {
	stmt := &fakeStatement{plans: [][]string{{"Seq Scan on task"}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	_, err = insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	require.Len(t, ch.prepared, 1)
	assert.Equal(t, "EXPLAIN ANALYZE "+selectByStatus, ch.prepared[0])
}

func TestInspector_PrepareError(t *testing.T) {
	ch := &fakeChannel{prepareErr: fmt.Errorf("syntax error near SELEC")}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	_, err = insp.Prepare(context.Background(), "SELEC * FORM task")
	require.Error(t, err)
	assert.Equal(t, errors.CodePrepareFailed, errors.GetCode(err))
}

func TestInspector_PinInvalidThreshold(t *testing.T) {
	stmt := &fakeStatement{plans: [][]string{{"Seq Scan on task"}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	handle, err := insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	assert.True(t, errors.IsInvalidConfig(insp.PinServerSidePreparation(handle, 0)))
	assert.True(t, errors.IsInvalidConfig(insp.PinServerSidePreparation(handle, -1)))
}

func TestInspector_PinUnsupported_BestEffort(t *testing.T) {
	stmt := &bareStatement{fakeStatement{plans: [][]string{{"Seq Scan on task"}}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	handle, err := insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	// surfaced once per handle
	err = insp.PinServerSidePreparation(handle, 1)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupportedCapability(err))
	assert.NoError(t, insp.PinServerSidePreparation(handle, 1))

	// local bookkeeping still honors the threshold contract
	prepared, err := insp.IsServerSidePrepared(handle)
	require.NoError(t, err)
	assert.False(t, prepared)

	require.NoError(t, insp.Execute(context.Background(), handle, "DONE"))

	prepared, err = insp.IsServerSidePrepared(handle)
	require.NoError(t, err)
	assert.True(t, prepared)
}

func TestInspector_PinRequiresChannelCapability(t *testing.T) {
	// the statement exposes the control, but the channel does not advertise
	// the capability, so pinning must degrade to local bookkeeping
	stmt := &fakeStatement{plans: [][]string{{"Seq Scan on task"}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}, noPinCap: true}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	handle, err := insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	err = insp.PinServerSidePreparation(handle, 1)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupportedCapability(err))

	// the native control stays untouched
	assert.Equal(t, 0, stmt.threshold)

	require.NoError(t, insp.Execute(context.Background(), handle, "DONE"))
	prepared, err := insp.IsServerSidePrepared(handle)
	require.NoError(t, err)
	assert.True(t, prepared)
}

func TestInspector_Explain(t *testing.T) {
	stmt := &fakeStatement{plans: [][]string{{
		"Index Scan using idx_task_status on task",
		"  Index Cond: (status = 'TO_DO')",
	}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	handle, err := insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	plan, err := insp.Explain(context.Background(), handle, "TO_DO")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPlan{
		"Index Scan using idx_task_status on task",
		"  Index Cond: (status = 'TO_DO')",
	}, plan)
	assert.False(t, plan.UsesFullScan())
}

func TestInspector_ExplainFailure(t *testing.T) {
	stmt := &fakeStatement{queryErr: fmt.Errorf("table task does not exist")}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	handle, err := insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	_, err = insp.Explain(context.Background(), handle, "DONE")
	require.Error(t, err)
	assert.Equal(t, errors.CodeQueryFailed, errors.GetCode(err))
}

func TestInspector_Close(t *testing.T) {
	stmt := &fakeStatement{plans: [][]string{{"Seq Scan on task"}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	handle, err := insp.Prepare(context.Background(), selectByStatus)
	require.NoError(t, err)

	require.NoError(t, insp.Close(handle))
	assert.True(t, stmt.closed)
}

func TestInspector_CapturePlan_ProtocolOrder(t *testing.T) {
	stmt := &fakeStatement{plans: [][]string{{"Seq Scan on task"}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	plan, err := insp.CapturePlan(context.Background(), selectByStatus, "DONE")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPlan{"Seq Scan on task"}, plan)

	// pin threshold 1, one priming execution, one explain execution
	assert.Equal(t, 1, stmt.threshold)
	assert.Equal(t, 2, stmt.executions)
	assert.True(t, stmt.closed)
}

func TestInspector_CapturePlan_IndexComparison(t *testing.T) {
	// plans before and after a selective index on the category column
	preIndex := []string{"Seq Scan on task", "  Filter: (status = 'TO_DO')"}
	postIndex := []string{"Index Scan using idx_task_status on task", "  Index Cond: (status = 'TO_DO')"}

	before := &fakeStatement{plans: [][]string{preIndex}}
	after := &fakeStatement{plans: [][]string{postIndex}}
	ch := &fakeChannel{statements: []store.PreparedStatement{before, after}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	prePlan, err := insp.CapturePlan(context.Background(), selectByStatus, "TO_DO")
	require.NoError(t, err)
	postPlan, err := insp.CapturePlan(context.Background(), selectByStatus, "TO_DO")
	require.NoError(t, err)

	assert.False(t, prePlan.Equal(postPlan))
	assert.True(t, prePlan.UsesFullScan())
	assert.False(t, postPlan.UsesFullScan())
}

func TestCollectPlanLines_TwoColumnOutput(t *testing.T) {
	rows := newPlanRows("┌── SEQ_SCAN (task)\n│ rows: 95000")
	rows.cols = []string{"explain_key", "explain_value"}

	plan, err := collectPlanLines(rows)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPlan{"┌── SEQ_SCAN (task)", "│ rows: 95000"}, plan)
	assert.True(t, plan.UsesFullScan())
	assert.Equal(t, 2, len(strings.Split(plan.String(), "\n")))
}

func TestInspector_NilHandle(t *testing.T) {
	stmt := &fakeStatement{plans: [][]string{{"Seq Scan on task"}}}
	ch := &fakeChannel{statements: []store.PreparedStatement{stmt}}
	insp, err := NewInspector(ch, Options{})
	require.NoError(t, err)

	_, err = insp.IsServerSidePrepared(nil)
	assert.Error(t, err)
	assert.Error(t, insp.PinServerSidePreparation(nil, 1))
	assert.Error(t, insp.Execute(context.Background(), nil))
	_, err = insp.Explain(context.Background(), nil)
	assert.Error(t, err)
}
