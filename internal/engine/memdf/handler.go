package memdf

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

// Handler implements transform.Handler over memdf frames.
type Handler struct{}

var _ transform.Handler = Handler{}

func asFrame(f table.Frame) (*Frame, error) {
	mf, ok := f.(*Frame)
	if !ok {
		return nil, fmt.Errorf("memdf: handler received foreign frame %T", f)
	}
	return mf, nil
}

// HandleColumnConversion casts one column to the requested field type. With
// errors="ignore" unconvertible cells are left as-is and the column type is
// re-inferred; with errors="raise" the first failure aborts.
func (Handler) HandleColumnConversion(f table.Frame, t transform.ColumnConversion) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	idx, err := mf.columnIndex(t.ColumnID)
	if err != nil {
		return nil, err
	}
	target := table.FieldType(t.DataType)
	src := mf.cols[idx]
	cells := make([]any, len(src.cells))
	for i, v := range src.cells {
		if isNull(v) {
			cells[i] = nil
			continue
		}
		converted, convErr := convertCell(v, target)
		if convErr != nil {
			if t.Errors == transform.ConversionIgnore {
				cells[i] = v
				continue
			}
			return nil, fmt.Errorf("memdf: convert %s row %d: %w", t.ColumnID, i, convErr)
		}
		cells[i] = converted
	}
	cols := append([]column(nil), mf.cols...)
	cols[idx] = column{name: src.name, typ: inferType(cells), cells: cells}
	return &Frame{cols: cols}, nil
}

func convertCell(v any, target table.FieldType) (any, error) {
	switch target {
	case table.FieldString:
		return stringify(v), nil
	case table.FieldInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as integer", x)
			}
			return n, nil
		}
	case table.FieldNumber:
		if f, ok := asFloat(v); ok {
			return f, nil
		}
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as number", s)
			}
			return f, nil
		}
	case table.FieldBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as boolean", x)
			}
			return b, nil
		case int64:
			return x != 0, nil
		}
	case table.FieldDatetime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			ts, err := time.Parse(time.RFC3339, x)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as datetime", x)
			}
			return ts, nil
		}
	default:
		return nil, fmt.Errorf("unknown target type %q", target)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, target)
}

// HandleRenameColumn renames one column; the target name must be free.
func (Handler) HandleRenameColumn(f table.Frame, t transform.RenameColumn) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	idx, err := mf.columnIndex(t.ColumnID)
	if err != nil {
		return nil, err
	}
	if _, err := mf.columnIndex(t.NewColumnID); err == nil {
		return nil, fmt.Errorf("memdf: rename target %q already exists", t.NewColumnID)
	}
	cols := append([]column(nil), mf.cols...)
	cols[idx].name = t.NewColumnID
	return &Frame{cols: cols}, nil
}

// HandleSortColumn stably sorts rows by one column, placing nulls per
// na_position (default last).
func (Handler) HandleSortColumn(f table.Frame, t transform.SortColumn) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	idx, err := mf.columnIndex(t.ColumnID)
	if err != nil {
		return nil, err
	}
	return sortByColumn(mf, idx, t.Ascending, t.NaPosition), nil
}

func sortByColumn(mf *Frame, idx int, ascending bool, na transform.NaPosition) *Frame {
	cells := mf.cols[idx].cells
	positions := make([]int, len(cells))
	for i := range positions {
		positions[i] = i
	}
	nullsFirst := na == transform.NaFirst
	sort.SliceStable(positions, func(a, b int) bool {
		va, vb := cells[positions[a]], cells[positions[b]]
		nullA, nullB := isNull(va), isNull(vb)
		switch {
		case nullA && nullB:
			return false
		case nullA:
			return nullsFirst
		case nullB:
			return !nullsFirst
		}
		c := compareCells(va, vb)
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return mf.takeRows(positions)
}

// HandleFilterRows keeps or removes the rows matching every condition.
func (Handler) HandleFilterRows(f table.Frame, t transform.FilterRows) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	type boundCond struct {
		idx  int
		typ  table.FieldType
		cond transform.Condition
	}
	bound := make([]boundCond, 0, len(t.Where))
	for _, cond := range t.Where {
		idx, err := mf.columnIndex(cond.Column)
		if err != nil {
			return nil, err
		}
		bound = append(bound, boundCond{idx: idx, typ: mf.cols[idx].typ, cond: cond})
	}
	var positions []int
	for i := 0; i < mf.NumRows(); i++ {
		matched := true
		for _, bc := range bound {
			ok, err := matchCondition(mf.cols[bc.idx].cells[i], bc.typ, bc.cond)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched == (t.Operation == transform.FilterKeep) {
			positions = append(positions, i)
		}
	}
	return mf.takeRows(positions), nil
}

// HandleGroupBy partitions rows by the key columns and applies the
// aggregation to every remaining column (or the explicit list), naming
// outputs "{col}_{agg}". Groups appear in first-seen order.
func (Handler) HandleGroupBy(f table.Frame, t transform.GroupBy) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	keyIdx := make([]int, 0, len(t.ColumnIDs))
	for _, name := range t.ColumnIDs {
		idx, err := mf.columnIndex(name)
		if err != nil {
			return nil, err
		}
		keyIdx = append(keyIdx, idx)
	}
	isKey := make(map[int]bool, len(keyIdx))
	for _, idx := range keyIdx {
		isKey[idx] = true
	}
	var aggIdx []int
	if len(t.AggregateColumnIDs) > 0 {
		for _, name := range t.AggregateColumnIDs {
			idx, err := mf.columnIndex(name)
			if err != nil {
				return nil, err
			}
			if isKey[idx] {
				return nil, fmt.Errorf("memdf: group_by: %q is both key and aggregate column", name)
			}
			aggIdx = append(aggIdx, idx)
		}
	} else {
		for i := range mf.cols {
			if !isKey[i] {
				aggIdx = append(aggIdx, i)
			}
		}
	}

	var order []string
	groups := make(map[string][]int)
	for i := 0; i < mf.NumRows(); i++ {
		if t.DropNA {
			missing := false
			for _, idx := range keyIdx {
				if isNull(mf.cols[idx].cells[i]) {
					missing = true
					break
				}
			}
			if missing {
				continue
			}
		}
		key := groupKey(mf, keyIdx, i)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	out := make([]column, 0, len(keyIdx)+len(aggIdx))
	for _, idx := range keyIdx {
		src := mf.cols[idx]
		cells := make([]any, 0, len(order))
		for _, key := range order {
			cells = append(cells, src.cells[groups[key][0]])
		}
		out = append(out, column{name: src.name, typ: src.typ, cells: cells})
	}
	for _, idx := range aggIdx {
		src := mf.cols[idx]
		cells := make([]any, 0, len(order))
		for _, key := range order {
			vec := make([]any, 0, len(groups[key]))
			for _, p := range groups[key] {
				vec = append(vec, src.cells[p])
			}
			agg, err := aggregate(vec, t.Aggregation)
			if err != nil {
				return nil, err
			}
			cells = append(cells, agg)
		}
		name := fmt.Sprintf("%s_%s", src.name, t.Aggregation)
		out = append(out, column{name: name, typ: inferType(cells), cells: cells})
	}
	return &Frame{cols: out}, nil
}

func groupKey(mf *Frame, keyIdx []int, row int) string {
	parts := make([]string, 0, len(keyIdx))
	for _, idx := range keyIdx {
		v := mf.cols[idx].cells[row]
		if isNull(v) {
			parts = append(parts, "\x00null")
			continue
		}
		parts = append(parts, stringify(v))
	}
	return strings.Join(parts, "\x1f")
}

// HandleAggregate reduces the listed columns to a single row, one output
// column per (column, aggregation) pair.
func (Handler) HandleAggregate(f table.Frame, t transform.Aggregate) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	out := make([]column, 0, len(t.ColumnIDs)*len(t.Aggregations))
	for _, name := range t.ColumnIDs {
		idx, err := mf.columnIndex(name)
		if err != nil {
			return nil, err
		}
		for _, agg := range t.Aggregations {
			v, err := aggregate(mf.cols[idx].cells, agg)
			if err != nil {
				return nil, err
			}
			cells := []any{v}
			out = append(out, column{
				name:  fmt.Sprintf("%s_%s", name, agg),
				typ:   inferType(cells),
				cells: cells,
			})
		}
	}
	return &Frame{cols: out}, nil
}

// HandleSelectColumns projects the listed columns in the given order.
func (Handler) HandleSelectColumns(f table.Frame, t transform.SelectColumns) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	out := make([]column, 0, len(t.ColumnIDs))
	for _, name := range t.ColumnIDs {
		idx, err := mf.columnIndex(name)
		if err != nil {
			return nil, err
		}
		out = append(out, mf.cols[idx].clone())
	}
	return &Frame{cols: out}, nil
}

// HandleShuffleRows permutes all rows with the seeded generator.
func (Handler) HandleShuffleRows(f table.Frame, t transform.ShuffleRows) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(t.Seed))
	positions := rng.Perm(mf.NumRows())
	return mf.takeRows(positions), nil
}

// HandleSampleRows draws n seeded rows, with or without replacement.
func (Handler) HandleSampleRows(f table.Frame, t transform.SampleRows) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	n := t.N
	rows := mf.NumRows()
	if rows == 0 && n > 0 {
		return nil, fmt.Errorf("memdf: cannot sample %d rows from an empty frame", n)
	}
	rng := rand.New(rand.NewSource(t.Seed))
	if t.Replace {
		positions := make([]int, 0, n)
		for i := 0; i < n; i++ {
			positions = append(positions, rng.Intn(rows))
		}
		return mf.takeRows(positions), nil
	}
	if n > rows {
		return nil, fmt.Errorf("memdf: sample of %d rows from %d without replacement", n, rows)
	}
	positions := rng.Perm(rows)[:n]
	return mf.takeRows(positions), nil
}

// HandleExplodeColumns multiplies rows over each listed container-typed
// column in turn; non-container cells pass through as single rows.
func (Handler) HandleExplodeColumns(f table.Frame, t transform.ExplodeColumns) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	cur := mf
	for _, name := range t.ColumnIDs {
		next, err := explodeColumn(cur, name)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func explodeColumn(mf *Frame, name string) (*Frame, error) {
	idx, err := mf.columnIndex(name)
	if err != nil {
		return nil, err
	}
	src := mf.cols[idx]
	type expansion struct {
		row   int
		value any
	}
	var expanded []expansion
	for i, v := range src.cells {
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				expanded = append(expanded, expansion{row: i, value: nil})
				continue
			}
			for _, item := range list {
				expanded = append(expanded, expansion{row: i, value: normalize(item)})
			}
			continue
		}
		expanded = append(expanded, expansion{row: i, value: v})
	}
	cols := make([]column, 0, len(mf.cols))
	for ci, c := range mf.cols {
		cells := make([]any, 0, len(expanded))
		for _, e := range expanded {
			if ci == idx {
				cells = append(cells, e.value)
			} else {
				cells = append(cells, c.cells[e.row])
			}
		}
		typ := c.typ
		if ci == idx {
			typ = inferType(cells)
		}
		cols = append(cols, column{name: c.name, typ: typ, cells: cells})
	}
	return &Frame{cols: cols}, nil
}

// HandleExpandDict replaces a dict-typed column with one sibling column per
// key, appended after the existing columns in sorted key order.
func (Handler) HandleExpandDict(f table.Frame, t transform.ExpandDict) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	idx, err := mf.columnIndex(t.ColumnID)
	if err != nil {
		return nil, err
	}
	src := mf.cols[idx]
	keySet := make(map[string]bool)
	for _, v := range src.cells {
		if m, ok := v.(map[string]any); ok {
			for k := range m {
				keySet[k] = true
			}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]column, 0, len(mf.cols)-1+len(keys))
	for ci, c := range mf.cols {
		if ci == idx {
			continue
		}
		cols = append(cols, c.clone())
	}
	for _, k := range keys {
		cells := make([]any, 0, mf.NumRows())
		for _, v := range src.cells {
			if m, ok := v.(map[string]any); ok {
				cells = append(cells, normalize(m[k]))
			} else {
				cells = append(cells, nil)
			}
		}
		cols = append(cols, column{name: k, typ: inferType(cells), cells: cells})
	}
	return &Frame{cols: cols}, nil
}

// HandleUnique de-duplicates by the listed columns. Keep policy first/any
// retains the first occurrence, last the final one, none drops every row
// that has a duplicate.
func (Handler) HandleUnique(f table.Frame, t transform.Unique) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	keyIdx := make([]int, 0, len(t.ColumnIDs))
	for _, name := range t.ColumnIDs {
		idx, err := mf.columnIndex(name)
		if err != nil {
			return nil, err
		}
		keyIdx = append(keyIdx, idx)
	}
	counts := make(map[string]int)
	last := make(map[string]int)
	var order []string
	first := make(map[string]int)
	for i := 0; i < mf.NumRows(); i++ {
		key := groupKey(mf, keyIdx, i)
		if counts[key] == 0 {
			order = append(order, key)
			first[key] = i
		}
		counts[key]++
		last[key] = i
	}
	var positions []int
	switch t.Keep {
	case transform.KeepNone:
		for i := 0; i < mf.NumRows(); i++ {
			if counts[groupKey(mf, keyIdx, i)] == 1 {
				positions = append(positions, i)
			}
		}
	case transform.KeepLast:
		for _, key := range order {
			positions = append(positions, last[key])
		}
		sort.Ints(positions)
	default: // first and any both retain the first occurrence
		for _, key := range order {
			positions = append(positions, first[key])
		}
	}
	return mf.takeRows(positions), nil
}

// HandlePivot spreads the pivot-key columns into new aggregated columns per
// index group. Unspecified index or value columns default to everything not
// otherwise claimed; both being empty is an operation error because the
// row/value split cannot be resolved.
func (Handler) HandlePivot(f table.Frame, t transform.Pivot) (table.Frame, error) {
	mf, err := asFrame(f)
	if err != nil {
		return nil, err
	}
	if len(t.IndexColumnIDs) == 0 && len(t.ValueColumnIDs) == 0 {
		return nil, fmt.Errorf("memdf: pivot requires at least one of index_column_ids or value_column_ids")
	}
	pivotIdx := make([]int, 0, len(t.PivotColumnIDs))
	claimed := make(map[int]bool)
	for _, name := range t.PivotColumnIDs {
		idx, err := mf.columnIndex(name)
		if err != nil {
			return nil, err
		}
		pivotIdx = append(pivotIdx, idx)
		claimed[idx] = true
	}
	resolve := func(names []string) ([]int, error) {
		out := make([]int, 0, len(names))
		for _, name := range names {
			idx, err := mf.columnIndex(name)
			if err != nil {
				return nil, err
			}
			out = append(out, idx)
			claimed[idx] = true
		}
		return out, nil
	}
	indexIdx, err := resolve(t.IndexColumnIDs)
	if err != nil {
		return nil, err
	}
	valueIdx, err := resolve(t.ValueColumnIDs)
	if err != nil {
		return nil, err
	}
	remaining := func() []int {
		var out []int
		for i := range mf.cols {
			if !claimed[i] {
				out = append(out, i)
				claimed[i] = true
			}
		}
		return out
	}
	if len(indexIdx) == 0 {
		indexIdx = remaining()
	}
	if len(valueIdx) == 0 {
		valueIdx = remaining()
	}
	if len(valueIdx) == 0 {
		return nil, fmt.Errorf("memdf: pivot has no value columns to aggregate")
	}

	// Partition rows by index key, and track pivot keys in first-seen order.
	var rowOrder []string
	rowGroups := make(map[string][]int)
	var pivotOrder []string
	pivotSeen := make(map[string]bool)
	for i := 0; i < mf.NumRows(); i++ {
		rk := groupKey(mf, indexIdx, i)
		if _, ok := rowGroups[rk]; !ok {
			rowOrder = append(rowOrder, rk)
		}
		rowGroups[rk] = append(rowGroups[rk], i)
		pk := pivotLabel(mf, pivotIdx, i)
		if !pivotSeen[pk] {
			pivotSeen[pk] = true
			pivotOrder = append(pivotOrder, pk)
		}
	}

	out := make([]column, 0, len(indexIdx)+len(pivotOrder)*len(valueIdx))
	for _, idx := range indexIdx {
		src := mf.cols[idx]
		cells := make([]any, 0, len(rowOrder))
		for _, rk := range rowOrder {
			cells = append(cells, src.cells[rowGroups[rk][0]])
		}
		out = append(out, column{name: src.name, typ: src.typ, cells: cells})
	}
	for _, pk := range pivotOrder {
		for _, vIdx := range valueIdx {
			src := mf.cols[vIdx]
			cells := make([]any, 0, len(rowOrder))
			for _, rk := range rowOrder {
				var vec []any
				for _, p := range rowGroups[rk] {
					if pivotLabel(mf, pivotIdx, p) == pk {
						vec = append(vec, src.cells[p])
					}
				}
				if len(vec) == 0 {
					cells = append(cells, nil)
					continue
				}
				agg, err := aggregate(vec, t.Aggregation)
				if err != nil {
					return nil, err
				}
				cells = append(cells, agg)
			}
			name := fmt.Sprintf("%s_%s", src.name, pk)
			if len(valueIdx) == 1 && len(t.ValueColumnIDs) == 0 {
				name = pk
			}
			out = append(out, column{name: name, typ: inferType(cells), cells: cells})
		}
	}
	return &Frame{cols: out}, nil
}

func pivotLabel(mf *Frame, pivotIdx []int, row int) string {
	parts := make([]string, 0, len(pivotIdx))
	for _, idx := range pivotIdx {
		parts = append(parts, stringify(mf.cols[idx].cells[row]))
	}
	return strings.Join(parts, "_")
}
