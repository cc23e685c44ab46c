package memdf

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

var _ table.Manager = (*Frame)(nil)

// Frame returns the frame itself; memdf's display surface and transform
// value are the same type.
func (f *Frame) Frame() table.Frame { return f }

// Take returns up to n rows starting at offset, clamped to the data.
func (f *Frame) Take(n, offset int) []table.Row {
	rows := f.NumRows()
	if offset < 0 {
		offset = 0
	}
	if offset > rows {
		offset = rows
	}
	end := offset + n
	if n < 0 || end > rows {
		end = rows
	}
	out := make([]table.Row, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, f.Row(i))
	}
	return out
}

// GetRowsByIndex resolves positional indices against this view.
func (f *Frame) GetRowsByIndex(indices []int) ([]table.Row, error) {
	rows := f.NumRows()
	out := make([]table.Row, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= rows {
			return nil, fmt.Errorf("%w: index %d of %d rows", table.ErrRowIndex, idx, rows)
		}
		out = append(out, f.Row(idx))
	}
	return out, nil
}

// SelectColumns projects the named columns in the given order.
func (f *Frame) SelectColumns(names []string) (table.Manager, error) {
	next, err := Handler{}.HandleSelectColumns(f, transform.SelectColumns{ColumnIDs: names})
	if err != nil {
		return nil, err
	}
	return next.(*Frame), nil
}

// SortValues stably sorts the view by one column, nulls last.
func (f *Frame) SortValues(spec table.SortSpec) (table.Manager, error) {
	idx, err := f.columnIndex(spec.By)
	if err != nil {
		return nil, err
	}
	return sortByColumn(f, idx, !spec.Descending, transform.NaLast), nil
}

// FilterRows keeps the rows satisfying every condition, reusing the filter
// transform's evaluation (including sentinel coercion on float columns).
func (f *Frame) FilterRows(conds []table.FilterCondition) (table.Manager, error) {
	if len(conds) == 0 {
		return f, nil
	}
	where := make([]transform.Condition, 0, len(conds))
	for _, c := range conds {
		cond := transform.Condition{Column: c.Column, Operator: transform.Operator(c.Operator), Value: c.Value}
		if err := cond.Validate(); err != nil {
			return nil, err
		}
		where = append(where, cond)
	}
	next, err := Handler{}.HandleFilterRows(f, transform.FilterRows{
		Operation: transform.FilterKeep,
		Where:     where,
	})
	if err != nil {
		return nil, err
	}
	return next.(*Frame), nil
}

// Search keeps rows where any cell's string form contains the query,
// case-insensitively. An empty query returns the full view.
func (f *Frame) Search(query string) (table.Manager, error) {
	if query == "" {
		return f, nil
	}
	needle := strings.ToLower(query)
	var positions []int
	for i := 0; i < f.NumRows(); i++ {
		for _, c := range f.cols {
			if strings.Contains(strings.ToLower(stringify(c.cells[i])), needle) {
				positions = append(positions, i)
				break
			}
		}
	}
	return f.takeRows(positions), nil
}

// ToJSON serializes all rows as a JSON array of objects.
func (f *Frame) ToJSON(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(f.Rows())
}

// ToCSV serializes all rows as headered CSV in column order.
func (f *Frame) ToCSV(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(f.ColumnNames()); err != nil {
		return nil, err
	}
	for i := 0; i < f.NumRows(); i++ {
		record := make([]string, 0, len(f.cols))
		for _, c := range f.cols {
			record = append(record, stringify(c.cells[i]))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
