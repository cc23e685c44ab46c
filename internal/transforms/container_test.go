package transforms

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"notebookcore/internal/engine/memdf"
	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

// countingHandler delegates to the memdf engine while counting how many
// transform steps actually execute, which is how the suffix-only replay
// property is observed.
type countingHandler struct {
	inner transform.Handler
	calls int
}

func (h *countingHandler) step() { h.calls++ }

func (h *countingHandler) HandleColumnConversion(f table.Frame, t transform.ColumnConversion) (table.Frame, error) {
	h.step()
	return h.inner.HandleColumnConversion(f, t)
}
func (h *countingHandler) HandleRenameColumn(f table.Frame, t transform.RenameColumn) (table.Frame, error) {
	h.step()
	return h.inner.HandleRenameColumn(f, t)
}
func (h *countingHandler) HandleSortColumn(f table.Frame, t transform.SortColumn) (table.Frame, error) {
	h.step()
	return h.inner.HandleSortColumn(f, t)
}
func (h *countingHandler) HandleFilterRows(f table.Frame, t transform.FilterRows) (table.Frame, error) {
	h.step()
	return h.inner.HandleFilterRows(f, t)
}
func (h *countingHandler) HandleGroupBy(f table.Frame, t transform.GroupBy) (table.Frame, error) {
	h.step()
	return h.inner.HandleGroupBy(f, t)
}
func (h *countingHandler) HandleAggregate(f table.Frame, t transform.Aggregate) (table.Frame, error) {
	h.step()
	return h.inner.HandleAggregate(f, t)
}
func (h *countingHandler) HandleSelectColumns(f table.Frame, t transform.SelectColumns) (table.Frame, error) {
	h.step()
	return h.inner.HandleSelectColumns(f, t)
}
func (h *countingHandler) HandleShuffleRows(f table.Frame, t transform.ShuffleRows) (table.Frame, error) {
	h.step()
	return h.inner.HandleShuffleRows(f, t)
}
func (h *countingHandler) HandleSampleRows(f table.Frame, t transform.SampleRows) (table.Frame, error) {
	h.step()
	return h.inner.HandleSampleRows(f, t)
}
func (h *countingHandler) HandleExplodeColumns(f table.Frame, t transform.ExplodeColumns) (table.Frame, error) {
	h.step()
	return h.inner.HandleExplodeColumns(f, t)
}
func (h *countingHandler) HandleExpandDict(f table.Frame, t transform.ExpandDict) (table.Frame, error) {
	h.step()
	return h.inner.HandleExpandDict(f, t)
}
func (h *countingHandler) HandleUnique(f table.Frame, t transform.Unique) (table.Frame, error) {
	h.step()
	return h.inner.HandleUnique(f, t)
}
func (h *countingHandler) HandlePivot(f table.Frame, t transform.Pivot) (table.Frame, error) {
	h.step()
	return h.inner.HandlePivot(f, t)
}

var _ transform.Handler = (*countingHandler)(nil)

func testFrame(t *testing.T) *memdf.Frame {
	t.Helper()
	f, err := memdf.FromColumns(
		[]string{"x", "y"},
		[][]any{
			{5, 3, 8, 1, 9, 2, 7, 4, 6, 0},
			{"a", "b", "a", "c", "b", "a", "c", "b", "a", "c"},
		},
	)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	return f
}

func rows(t *testing.T, f table.Frame) []table.Row {
	t.Helper()
	mf, ok := f.(*memdf.Frame)
	if !ok {
		t.Fatalf("got %T, want *memdf.Frame", f)
	}
	return mf.Rows()
}

func TestApplyExtensionReplaysOnlySuffix(t *testing.T) {
	h := &countingHandler{inner: memdf.Handler{}}
	c := NewContainer(testFrame(t), h)

	sortX := transform.SortColumn{ColumnID: "x", Ascending: true}
	filter := transform.FilterRows{
		Operation: transform.FilterKeep,
		Where:     []transform.Condition{{Column: "x", Operator: transform.OpGt, Value: 3}},
	}

	if _, err := c.Apply(transform.Transformations{sortX}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if h.calls != 1 {
		t.Fatalf("calls = %d, want 1", h.calls)
	}

	// Extending the log executes only the appended transform.
	if _, err := c.Apply(transform.Transformations{sortX, filter}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if h.calls != 2 {
		t.Fatalf("calls = %d, want 2 (suffix-only replay)", h.calls)
	}
	if got := c.Applied(); len(got) != 2 {
		t.Fatalf("applied log length = %d, want 2", len(got))
	}
}

func TestApplyDivergenceForcesFullReplay(t *testing.T) {
	h := &countingHandler{inner: memdf.Handler{}}
	c := NewContainer(testFrame(t), h)

	sortAsc := transform.SortColumn{ColumnID: "x", Ascending: true}
	sortDesc := transform.SortColumn{ColumnID: "x", Ascending: false}
	filter := transform.FilterRows{
		Operation: transform.FilterKeep,
		Where:     []transform.Condition{{Column: "x", Operator: transform.OpLte, Value: 5}},
	}

	if _, err := c.Apply(transform.Transformations{sortAsc, filter}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	h.calls = 0

	// A changed first entry diverges: the whole new list replays.
	if _, err := c.Apply(transform.Transformations{sortDesc, filter}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if h.calls != 2 {
		t.Fatalf("calls = %d, want 2 (full replay)", h.calls)
	}

	// Shrinking also replays from the original.
	h.calls = 0
	shrunk, err := c.Apply(transform.Transformations{sortDesc})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if h.calls != 1 {
		t.Fatalf("calls = %d, want 1", h.calls)
	}
	if shrunk.NumRows() != 10 {
		t.Fatalf("shrunk replay rows = %d, want the unfiltered 10", shrunk.NumRows())
	}
}

func TestApplyEmptyHistoryAlwaysReplaysFromOriginal(t *testing.T) {
	h := &countingHandler{inner: memdf.Handler{}}
	c := NewContainer(testFrame(t), h)

	// First call: empty history is never treated as a prefix of anything.
	ts := transform.Transformations{transform.SortColumn{ColumnID: "x", Ascending: true}}
	out, err := c.Apply(ts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.NumRows() != 10 {
		t.Fatalf("rows = %d", out.NumRows())
	}

	// Clearing the log resets to the original.
	cleared, err := c.Apply(nil)
	if err != nil {
		t.Fatalf("apply empty: %v", err)
	}
	if diff := cmp.Diff(rows(t, testFrame(t)), rows(t, cleared)); diff != "" {
		t.Fatalf("empty log should restore the original (-want +got):\n%s", diff)
	}
}

func TestApplyErrorRevertsState(t *testing.T) {
	c := NewContainer(testFrame(t), memdf.Handler{})

	good := transform.SortColumn{ColumnID: "x", Ascending: true}
	if _, err := c.Apply(transform.Transformations{good}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := rows(t, c.Snapshot())

	bad := transform.SelectColumns{ColumnIDs: []string{"ghost"}}
	_, err := c.Apply(transform.Transformations{good, bad})
	var applyErr ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("err = %v, want ApplyError", err)
	}
	if applyErr.Index != 1 || applyErr.Kind != transform.KindSelectColumns {
		t.Fatalf("ApplyError = %+v, want index 1 kind select_columns", applyErr)
	}

	// Snapshot and log stay at the pre-call state.
	if diff := cmp.Diff(before, rows(t, c.Snapshot())); diff != "" {
		t.Fatalf("snapshot changed on error (-want +got):\n%s", diff)
	}
	if got := c.Applied(); len(got) != 1 {
		t.Fatalf("applied log = %d entries, want 1", len(got))
	}
}

func TestApplyValidatesBeforeExecuting(t *testing.T) {
	h := &countingHandler{inner: memdf.Handler{}}
	c := NewContainer(testFrame(t), h)
	_, err := c.Apply(transform.Transformations{transform.FilterRows{Operation: "invert"}})
	if err == nil {
		t.Fatal("invalid transform should fail")
	}
	if h.calls != 0 {
		t.Fatalf("invalid list must not reach the engine, calls = %d", h.calls)
	}
}

func TestStepSchemasTrackAppliedLog(t *testing.T) {
	c := NewContainer(testFrame(t), memdf.Handler{})
	ts := transform.Transformations{
		transform.SelectColumns{ColumnIDs: []string{"x"}},
		transform.SortColumn{ColumnID: "x", Ascending: true},
	}
	if _, err := c.Apply(ts); err != nil {
		t.Fatalf("apply: %v", err)
	}
	schemas := c.StepSchemas()
	if len(schemas) != 2 {
		t.Fatalf("schemas = %d, want 2", len(schemas))
	}
	if schemas[0].Kind != transform.KindSelectColumns || len(schemas[0].Columns) != 1 {
		t.Fatalf("schema 0 = %+v", schemas[0])
	}
	if schemas[1].Columns[0].Name != "x" {
		t.Fatalf("schema 1 = %+v", schemas[1])
	}
}

// TestIncrementalMatchesScratch grows a random transform log one entry at a
// time through a single container and checks, at every step, that the
// incremental result is identical to a from-scratch replay of the same log.
func TestIncrementalMatchesScratch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	candidates := func() transform.Transformations {
		return transform.Transformations{
			transform.SortColumn{ColumnID: "x", Ascending: rng.Intn(2) == 0},
			transform.FilterRows{
				Operation: transform.FilterKeep,
				Where:     []transform.Condition{{Column: "x", Operator: transform.OpGte, Value: rng.Intn(5)}},
			},
			transform.ShuffleRows{Seed: int64(rng.Intn(100))},
			transform.Unique{ColumnIDs: []string{"y"}, Keep: transform.KeepFirst},
			transform.SelectColumns{ColumnIDs: []string{"x", "y"}},
		}
	}

	for trial := 0; trial < 20; trial++ {
		incremental := NewContainer(testFrame(t), memdf.Handler{})
		var log transform.Transformations
		steps := 1 + rng.Intn(6)
		for i := 0; i < steps; i++ {
			pool := candidates()
			log = append(log, pool[rng.Intn(len(pool))])

			got, err := incremental.Apply(append(transform.Transformations(nil), log...))
			if err != nil {
				t.Fatalf("trial %d step %d incremental: %v", trial, i, err)
			}

			scratch := NewContainer(testFrame(t), memdf.Handler{})
			want, err := scratch.Apply(append(transform.Transformations(nil), log...))
			if err != nil {
				t.Fatalf("trial %d step %d scratch: %v", trial, i, err)
			}

			if diff := cmp.Diff(rows(t, want), rows(t, got)); diff != "" {
				t.Fatalf("trial %d step %d: incremental diverged from scratch (-scratch +incremental):\n%s\nlog: %+v", trial, i, diff, log)
			}
		}
	}
}
