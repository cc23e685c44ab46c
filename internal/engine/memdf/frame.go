// Package memdf provides the in-memory columnar dataframe used as the
// reference engine behind table and dataframe widgets. A Frame implements
// both the table.Manager display surface and, through Handler, every
// transform operation. All operations are copy-on-write: a Frame is never
// mutated after construction.
package memdf

import (
	"fmt"
	"math"
	"time"

	"notebookcore/pkg/table"
)

// column is one named, typed cell vector. Cells use nil for null.
type column struct {
	name  string
	typ   table.FieldType
	cells []any
}

func (c column) clone() column {
	cp := c
	cp.cells = append([]any(nil), c.cells...)
	return cp
}

// Frame is an immutable in-memory table with ordered, named columns.
type Frame struct {
	cols []column
}

// FromRows builds a frame from records in the given column order. Column
// types are taken from cols when classified, else inferred from the data.
func FromRows(cols []table.Column, rows []table.Row) *Frame {
	built := make([]column, 0, len(cols))
	for _, c := range cols {
		cells := make([]any, 0, len(rows))
		for _, r := range rows {
			cells = append(cells, normalize(r[c.Name]))
		}
		typ := c.Type
		if typ == "" || typ == table.FieldUnknown {
			typ = inferType(cells)
		}
		built = append(built, column{name: c.Name, typ: typ, cells: cells})
	}
	return &Frame{cols: built}
}

// FromColumns builds a frame from parallel cell vectors, inferring types.
// All vectors must have equal length.
func FromColumns(names []string, cells [][]any) (*Frame, error) {
	if len(names) != len(cells) {
		return nil, fmt.Errorf("memdf: %d names for %d column vectors", len(names), len(cells))
	}
	var nrows int
	built := make([]column, 0, len(names))
	for i, name := range names {
		vec := make([]any, len(cells[i]))
		for j, v := range cells[i] {
			vec[j] = normalize(v)
		}
		if i == 0 {
			nrows = len(vec)
		} else if len(vec) != nrows {
			return nil, fmt.Errorf("memdf: column %s has %d rows, want %d", name, len(vec), nrows)
		}
		built = append(built, column{name: name, typ: inferType(vec), cells: vec})
	}
	return &Frame{cols: built}, nil
}

// FromSeries builds a single-column frame named "value", the shape used for
// plain list-backed table widgets.
func FromSeries(values []any) *Frame {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = normalize(v)
	}
	return &Frame{cols: []column{{name: "value", typ: inferType(cells), cells: cells}}}
}

// NumRows returns the row count.
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return len(f.cols[0].cells)
}

// NumColumns returns the column count.
func (f *Frame) NumColumns() int { return len(f.cols) }

// Columns returns the ordered column schema.
func (f *Frame) Columns() []table.Column {
	out := make([]table.Column, 0, len(f.cols))
	for _, c := range f.cols {
		out = append(out, table.Column{Name: c.name, Type: c.typ})
	}
	return out
}

// ColumnNames returns the ordered column names.
func (f *Frame) ColumnNames() []string {
	out := make([]string, 0, len(f.cols))
	for _, c := range f.cols {
		out = append(out, c.name)
	}
	return out
}

// Row materializes row i as a record keyed by column name.
func (f *Frame) Row(i int) table.Row {
	r := make(table.Row, len(f.cols))
	for _, c := range f.cols {
		r[c.name] = c.cells[i]
	}
	return r
}

// Rows materializes every row.
func (f *Frame) Rows() []table.Row {
	out := make([]table.Row, 0, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		out = append(out, f.Row(i))
	}
	return out
}

func (f *Frame) columnIndex(name string) (int, error) {
	for i, c := range f.cols {
		if c.name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("memdf: column %q not found", name)
}

// takeRows builds a new frame keeping the rows at the given positions, in
// the given order. Positions may repeat.
func (f *Frame) takeRows(positions []int) *Frame {
	cols := make([]column, 0, len(f.cols))
	for _, c := range f.cols {
		cells := make([]any, 0, len(positions))
		for _, p := range positions {
			cells = append(cells, c.cells[p])
		}
		cols = append(cols, column{name: c.name, typ: c.typ, cells: cells})
	}
	return &Frame{cols: cols}
}

// normalize maps engine-external values onto the frame's cell vocabulary:
// nil stays nil, integer widths collapse to int64, float NaN stays as-is so
// null checks can treat it as missing.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func inferType(cells []any) table.FieldType {
	typ := table.FieldUnknown
	for _, v := range cells {
		if v == nil {
			continue
		}
		var cur table.FieldType
		switch v.(type) {
		case string:
			cur = table.FieldString
		case int64:
			cur = table.FieldInteger
		case float64:
			cur = table.FieldNumber
		case bool:
			cur = table.FieldBoolean
		case time.Time:
			cur = table.FieldDatetime
		default:
			cur = table.FieldUnknown
		}
		switch {
		case typ == table.FieldUnknown:
			typ = cur
		case typ == cur:
		case typ == table.FieldInteger && cur == table.FieldNumber,
			typ == table.FieldNumber && cur == table.FieldInteger:
			typ = table.FieldNumber
		default:
			return table.FieldUnknown
		}
	}
	return typ
}

// isNull reports whether a cell is missing: nil or a float NaN.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok {
		return math.IsNaN(f)
	}
	return false
}
