package memdf

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

func nan() float64 { return math.NaN() }

func mustFrame(t *testing.T, names []string, cells [][]any) *Frame {
	t.Helper()
	f, err := FromColumns(names, cells)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	return f
}

func columnCells(t *testing.T, f table.Frame, name string) []any {
	t.Helper()
	mf, ok := f.(*Frame)
	if !ok {
		t.Fatalf("got %T, want *Frame", f)
	}
	idx, err := mf.columnIndex(name)
	if err != nil {
		t.Fatalf("column %s: %v", name, err)
	}
	return mf.cols[idx].cells
}

func TestSortColumnNaPosition(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{3, nil, 1, 2}})

	asc, err := Handler{}.HandleSortColumn(f, transform.SortColumn{ColumnID: "x", Ascending: true, NaPosition: transform.NaLast})
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	want := []any{int64(1), int64(2), int64(3), nil}
	if diff := cmp.Diff(want, columnCells(t, asc, "x")); diff != "" {
		t.Fatalf("nulls last (-want +got):\n%s", diff)
	}

	desc, err := Handler{}.HandleSortColumn(f, transform.SortColumn{ColumnID: "x", Ascending: false, NaPosition: transform.NaFirst})
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	want = []any{nil, int64(3), int64(2), int64(1)}
	if diff := cmp.Diff(want, columnCells(t, desc, "x")); diff != "" {
		t.Fatalf("nulls first (-want +got):\n%s", diff)
	}
}

func TestSortColumnIsStable(t *testing.T) {
	f := mustFrame(t, []string{"k", "pos"},
		[][]any{{"b", "a", "b", "a"}, {0, 1, 2, 3}})
	sorted, err := Handler{}.HandleSortColumn(f, transform.SortColumn{ColumnID: "k", Ascending: true})
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	want := []any{int64(1), int64(3), int64(0), int64(2)}
	if diff := cmp.Diff(want, columnCells(t, sorted, "pos")); diff != "" {
		t.Fatalf("equal keys must keep input order (-want +got):\n%s", diff)
	}
}

func TestFilterRowsKeepAndRemove(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{1, 2, 3, 4}})
	cond := transform.Condition{Column: "x", Operator: transform.OpGt, Value: 2}

	kept, err := Handler{}.HandleFilterRows(f, transform.FilterRows{Operation: transform.FilterKeep, Where: []transform.Condition{cond}})
	if err != nil {
		t.Fatalf("keep: %v", err)
	}
	if got := kept.NumRows(); got != 2 {
		t.Fatalf("keep rows = %d, want 2", got)
	}

	removed, err := Handler{}.HandleFilterRows(f, transform.FilterRows{Operation: transform.FilterRemove, Where: []transform.Condition{cond}})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := removed.NumRows(); got != 2 {
		t.Fatalf("remove rows = %d, want 2", got)
	}
	if diff := cmp.Diff([]any{int64(1), int64(2)}, columnCells(t, removed, "x")); diff != "" {
		t.Fatalf("remove complement (-want +got):\n%s", diff)
	}
}

func TestFilterRowsConditionsAreANDCombined(t *testing.T) {
	f := mustFrame(t, []string{"x", "y"}, [][]any{{1, 2, 3}, {"a", "b", "a"}})
	kept, err := Handler{}.HandleFilterRows(f, transform.FilterRows{
		Operation: transform.FilterKeep,
		Where: []transform.Condition{
			{Column: "x", Operator: transform.OpGte, Value: 2},
			{Column: "y", Operator: transform.OpEquals, Value: "a"},
		},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got := kept.NumRows(); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
	if diff := cmp.Diff([]any{int64(3)}, columnCells(t, kept, "x")); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestFilterRowsNaNSentinelOnFloatColumn(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{1.0, nan(), 3.0}})
	kept, err := Handler{}.HandleFilterRows(f, transform.FilterRows{
		Operation: transform.FilterKeep,
		Where:     []transform.Condition{{Column: "x", Operator: transform.OpEq, Value: "NaN"}},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got := kept.NumRows(); got != 1 {
		t.Fatalf("rows = %d, want 1 (the NaN row)", got)
	}
}

func TestFilterRowsStringOperators(t *testing.T) {
	f := mustFrame(t, []string{"s"}, [][]any{{"apple", "banana", "apricot"}})
	cases := []struct {
		name string
		cond transform.Condition
		want int
	}{
		{"starts_with", transform.Condition{Column: "s", Operator: transform.OpStartsWith, Value: "ap"}, 2},
		{"contains", transform.Condition{Column: "s", Operator: transform.OpContains, Value: "an"}, 1},
		{"regex", transform.Condition{Column: "s", Operator: transform.OpRegex, Value: "^a.*t$"}, 1},
		{"in", transform.Condition{Column: "s", Operator: transform.OpIn, Value: []any{"banana", "cherry"}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kept, err := Handler{}.HandleFilterRows(f, transform.FilterRows{Operation: transform.FilterKeep, Where: []transform.Condition{tc.cond}})
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if got := kept.NumRows(); got != tc.want {
				t.Fatalf("rows = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestGroupByNamingAndOrder(t *testing.T) {
	f := mustFrame(t, []string{"city", "pop"},
		[][]any{{"b", "a", "b"}, {10, 20, 30}})
	out, err := Handler{}.HandleGroupBy(f, transform.GroupBy{ColumnIDs: []string{"city"}, Aggregation: transform.AggSum})
	if err != nil {
		t.Fatalf("group_by: %v", err)
	}
	wantCols := []table.Column{
		{Name: "city", Type: table.FieldString},
		{Name: "pop_sum", Type: table.FieldNumber},
	}
	if diff := cmp.Diff(wantCols, out.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	// Groups surface in first-seen order: b before a.
	if diff := cmp.Diff([]any{"b", "a"}, columnCells(t, out, "city")); diff != "" {
		t.Fatalf("group order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{40.0, 20.0}, columnCells(t, out, "pop_sum")); diff != "" {
		t.Fatalf("sums (-want +got):\n%s", diff)
	}
}

func TestGroupByDropNA(t *testing.T) {
	f := mustFrame(t, []string{"k", "v"}, [][]any{{"a", nil, "a"}, {1, 2, 3}})
	out, err := Handler{}.HandleGroupBy(f, transform.GroupBy{ColumnIDs: []string{"k"}, Aggregation: transform.AggCount, DropNA: true})
	if err != nil {
		t.Fatalf("group_by: %v", err)
	}
	if got := out.NumRows(); got != 1 {
		t.Fatalf("rows = %d, want 1 (null key dropped)", got)
	}
}

func TestAggregateProducesSingleRow(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{1, 2, 3, 4}})
	out, err := Handler{}.HandleAggregate(f, transform.Aggregate{
		ColumnIDs:    []string{"x"},
		Aggregations: []transform.Aggregation{transform.AggMin, transform.AggMax, transform.AggMean},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if out.NumRows() != 1 {
		t.Fatalf("rows = %d, want 1", out.NumRows())
	}
	row := out.(*Frame).Row(0)
	want := table.Row{"x_min": int64(1), "x_max": int64(4), "x_mean": 2.5}
	if diff := cmp.Diff(want, row); diff != "" {
		t.Fatalf("aggregates (-want +got):\n%s", diff)
	}
}

func TestShuffleRowsSeededDeterminism(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{1, 2, 3, 4, 5, 6, 7, 8}})
	a, err := Handler{}.HandleShuffleRows(f, transform.ShuffleRows{Seed: 7})
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	b, err := Handler{}.HandleShuffleRows(f, transform.ShuffleRows{Seed: 7})
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	if diff := cmp.Diff(columnCells(t, a, "x"), columnCells(t, b, "x")); diff != "" {
		t.Fatalf("same seed must permute identically (-a +b):\n%s", diff)
	}
	if a.NumRows() != 8 {
		t.Fatalf("shuffle changed row count: %d", a.NumRows())
	}
}

func TestSampleRowsWithoutReplacementBound(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{1, 2, 3}})
	if _, err := (Handler{}).HandleSampleRows(f, transform.SampleRows{N: 5, Seed: 1}); err == nil {
		t.Fatal("sampling more rows than exist without replacement should fail")
	}
	out, err := Handler{}.HandleSampleRows(f, transform.SampleRows{N: 5, Seed: 1, Replace: true})
	if err != nil {
		t.Fatalf("sample with replacement: %v", err)
	}
	if out.NumRows() != 5 {
		t.Fatalf("rows = %d, want 5", out.NumRows())
	}
}

func TestSampleRowsEmptyFrame(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{}})
	if _, err := (Handler{}).HandleSampleRows(f, transform.SampleRows{N: 1, Seed: 1, Replace: true}); err == nil {
		t.Fatal("sampling with replacement from an empty frame should fail, not panic")
	}
	out, err := (Handler{}).HandleSampleRows(f, transform.SampleRows{N: 0, Seed: 1, Replace: true})
	if err != nil {
		t.Fatalf("zero-row sample: %v", err)
	}
	if out.NumRows() != 0 {
		t.Fatalf("rows = %d, want 0", out.NumRows())
	}
}

func TestExplodeColumns(t *testing.T) {
	f := mustFrame(t, []string{"id", "tags"},
		[][]any{{1, 2, 3}, {[]any{"a", "b"}, []any{}, "plain"}})
	out, err := Handler{}.HandleExplodeColumns(f, transform.ExplodeColumns{ColumnIDs: []string{"tags"}})
	if err != nil {
		t.Fatalf("explode: %v", err)
	}
	if diff := cmp.Diff([]any{int64(1), int64(1), int64(2), int64(3)}, columnCells(t, out, "id")); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	// Empty list keeps its row with a null; scalar passes through.
	if diff := cmp.Diff([]any{"a", "b", nil, "plain"}, columnCells(t, out, "tags")); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
}

func TestExpandDict(t *testing.T) {
	f := mustFrame(t, []string{"id", "meta"},
		[][]any{{1, 2}, {map[string]any{"b": 2, "a": 1}, map[string]any{"a": 3}}})
	out, err := Handler{}.HandleExpandDict(f, transform.ExpandDict{ColumnID: "meta"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	names := out.(*Frame).ColumnNames()
	if diff := cmp.Diff([]string{"id", "a", "b"}, names); diff != "" {
		t.Fatalf("expanded columns sorted after survivors (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{int64(2), nil}, columnCells(t, out, "b")); diff != "" {
		t.Fatalf("missing keys become null (-want +got):\n%s", diff)
	}
}

func TestUniqueKeepPolicies(t *testing.T) {
	f := mustFrame(t, []string{"k", "pos"},
		[][]any{{"a", "b", "a", "c"}, {0, 1, 2, 3}})
	cases := []struct {
		keep transform.KeepPolicy
		want []any
	}{
		{transform.KeepFirst, []any{int64(0), int64(1), int64(3)}},
		{transform.KeepAny, []any{int64(0), int64(1), int64(3)}},
		{transform.KeepLast, []any{int64(1), int64(2), int64(3)}},
		{transform.KeepNone, []any{int64(1), int64(3)}},
	}
	for _, tc := range cases {
		t.Run(string(tc.keep), func(t *testing.T) {
			out, err := Handler{}.HandleUnique(f, transform.Unique{ColumnIDs: []string{"k"}, Keep: tc.keep})
			if err != nil {
				t.Fatalf("unique: %v", err)
			}
			if diff := cmp.Diff(tc.want, columnCells(t, out, "pos")); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestPivotRequiresIndexOrValueColumns(t *testing.T) {
	f := mustFrame(t, []string{"year", "city", "pop"},
		[][]any{{2020, 2021}, {"a", "a"}, {1, 2}})
	_, err := Handler{}.HandlePivot(f, transform.Pivot{PivotColumnIDs: []string{"year"}, Aggregation: transform.AggSum})
	if err == nil {
		t.Fatal("pivot with both index and value columns empty should fail")
	}
	if !strings.Contains(err.Error(), "index_column_ids or value_column_ids") {
		t.Fatalf("error should name the missing lists, got %v", err)
	}
}

func TestPivotDefaultsValueColumns(t *testing.T) {
	f := mustFrame(t, []string{"year", "city", "pop"},
		[][]any{{2020, 2021, 2020}, {"a", "a", "b"}, {1, 2, 3}})
	out, err := Handler{}.HandlePivot(f, transform.Pivot{
		PivotColumnIDs: []string{"year"},
		IndexColumnIDs: []string{"city"},
		Aggregation:    transform.AggSum,
	})
	if err != nil {
		t.Fatalf("pivot: %v", err)
	}
	// Single defaulted value column: new columns take the bare pivot key.
	names := out.(*Frame).ColumnNames()
	if diff := cmp.Diff([]string{"city", "2020", "2021"}, names); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{1.0, 3.0}, columnCells(t, out, "2020")); diff != "" {
		t.Fatalf("2020 values (-want +got):\n%s", diff)
	}
	// Missing (index, pivot) combination becomes null.
	if diff := cmp.Diff([]any{2.0, nil}, columnCells(t, out, "2021")); diff != "" {
		t.Fatalf("2021 values (-want +got):\n%s", diff)
	}
}

func TestPivotExplicitValueColumnsKeepPrefixedNames(t *testing.T) {
	f := mustFrame(t, []string{"year", "city", "pop"},
		[][]any{{2020, 2021}, {"a", "a"}, {1, 2}})
	out, err := Handler{}.HandlePivot(f, transform.Pivot{
		PivotColumnIDs: []string{"year"},
		IndexColumnIDs: []string{"city"},
		ValueColumnIDs: []string{"pop"},
		Aggregation:    transform.AggSum,
	})
	if err != nil {
		t.Fatalf("pivot: %v", err)
	}
	names := out.(*Frame).ColumnNames()
	if diff := cmp.Diff([]string{"city", "pop_2020", "pop_2021"}, names); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}

func TestColumnConversionIgnoreKeepsUnconvertible(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{"1", "two", "3"}})

	if _, err := (Handler{}).HandleColumnConversion(f, transform.ColumnConversion{
		ColumnID: "x", DataType: "integer", Errors: transform.ConversionRaise,
	}); err == nil {
		t.Fatal("raise policy should fail on unconvertible cell")
	}

	out, err := Handler{}.HandleColumnConversion(f, transform.ColumnConversion{
		ColumnID: "x", DataType: "integer", Errors: transform.ConversionIgnore,
	})
	if err != nil {
		t.Fatalf("ignore policy: %v", err)
	}
	if diff := cmp.Diff([]any{int64(1), "two", int64(3)}, columnCells(t, out, "x")); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// Mixed result re-infers to unknown.
	if got := out.Columns()[0].Type; got != table.FieldUnknown {
		t.Fatalf("type = %s, want unknown", got)
	}
}

func TestRenameColumnCollision(t *testing.T) {
	f := mustFrame(t, []string{"a", "b"}, [][]any{{1}, {2}})
	if _, err := (Handler{}).HandleRenameColumn(f, transform.RenameColumn{ColumnID: "a", NewColumnID: "b"}); err == nil {
		t.Fatal("renaming onto an existing column should fail")
	}
	out, err := Handler{}.HandleRenameColumn(f, transform.RenameColumn{ColumnID: "a", NewColumnID: "c"})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "b"}, out.(*Frame).ColumnNames()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestHandlersDoNotMutateInput(t *testing.T) {
	f := mustFrame(t, []string{"x"}, [][]any{{3, 1, 2}})
	if _, err := (Handler{}).HandleSortColumn(f, transform.SortColumn{ColumnID: "x", Ascending: true}); err != nil {
		t.Fatalf("sort: %v", err)
	}
	if diff := cmp.Diff([]any{int64(3), int64(1), int64(2)}, columnCells(t, f, "x")); diff != "" {
		t.Fatalf("input frame mutated (-want +got):\n%s", diff)
	}
}
