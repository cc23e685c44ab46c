// Package table defines the engine-neutral capability surface for tabular
// data: the Frame value handed between transform steps, the Manager interface
// a dataframe engine implements for display-oriented access, and the request
// and response shapes exchanged with a frontend table widget.
package table

import (
	"context"
	"errors"
)

// FieldType classifies a column for frontend rendering and filter coercion.
type FieldType string

const (
	// FieldString is a textual column.
	FieldString FieldType = "string"
	// FieldInteger is a whole-number column.
	FieldInteger FieldType = "integer"
	// FieldNumber is a floating-point column.
	FieldNumber FieldType = "number"
	// FieldBoolean is a true/false column.
	FieldBoolean FieldType = "boolean"
	// FieldDatetime is a timestamp column.
	FieldDatetime FieldType = "datetime"
	// FieldUnknown is any column the engine cannot classify.
	FieldUnknown FieldType = "unknown"
)

// Column pairs a column name with its classified type.
type Column struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Frame is an opaque handle to one engine's tabular value. Transform handlers
// receive and return Frames; each engine type-asserts its own concrete frame.
type Frame interface {
	NumRows() int
	NumColumns() int
	Columns() []Column
}

// Row is one record in original column order, keyed by column name.
type Row map[string]any

// CellPoint identifies one selected cell together with its value.
type CellPoint struct {
	Row    string `json:"row"`
	Column string `json:"column"`
	Value  any    `json:"value,omitempty"`
}

// SortSpec orders rows by one column.
type SortSpec struct {
	By         string `json:"by"`
	Descending bool   `json:"descending"`
}

// MaxPageSize bounds the number of rows a single search response may carry.
const MaxPageSize = 200

// TooManyRows is the sentinel reported when a row count is not computed
// exactly (for example an unbounded remote source).
const TooManyRows = -1

// FilterCondition is one AND-combined filter in a search request. Operators
// and coercion rules match the transform filter conditions; the engine
// evaluates them.
type FilterCondition struct {
	Column   string `json:"column_id"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// SearchRequest describes one frontend table interaction: free-text query,
// optional sort, AND-combined filter conditions and the requested page.
type SearchRequest struct {
	Query      string            `json:"query,omitempty"`
	Sort       *SortSpec         `json:"sort,omitempty"`
	Filters    []FilterCondition `json:"filters,omitempty"`
	PageSize   int               `json:"page_size"`
	PageNumber int               `json:"page_number"`
	MaxColumns int               `json:"max_columns,omitempty"`
}

// SearchResponse carries one page of serialized rows plus the counts the
// frontend needs to render pagination and the "N of M columns" banner.
type SearchResponse struct {
	Data         []Row                        `json:"data"`
	TotalRows    int                          `json:"total_rows"`
	TotalColumns int                          `json:"total_columns"`
	CellStyles   map[string]map[string]any    `json:"cell_styles,omitempty"`
	CellHover    map[string]map[string]string `json:"cell_hover_texts,omitempty"`
}

// Manager abstracts one dataframe engine for display-oriented access. All
// operations are read-only on the receiver; transforming methods return a new
// Manager over the derived view.
type Manager interface {
	Frame() Frame
	NumRows() int
	NumColumns() int
	Columns() []Column
	// Take returns up to n rows starting at offset, clamped to the data.
	Take(n, offset int) []Row
	// GetRowsByIndex resolves positional indices against this view. An out of
	// range index fails with ErrRowIndex.
	GetRowsByIndex(indices []int) ([]Row, error)
	// SelectColumns projects the named columns in the given order.
	SelectColumns(names []string) (Manager, error)
	// SortValues stably sorts by one column.
	SortValues(spec SortSpec) (Manager, error)
	// FilterRows keeps the rows satisfying every condition.
	FilterRows(conds []FilterCondition) (Manager, error)
	// Search keeps rows where any cell's string form contains the query,
	// case-insensitively. An empty query returns the full view.
	Search(query string) (Manager, error)
	// ToJSON serializes all rows of the view as a JSON array of objects.
	ToJSON(ctx context.Context) ([]byte, error)
	// ToCSV serializes all rows of the view as headered CSV.
	ToCSV(ctx context.Context) ([]byte, error)
}

// ErrRowIndex reports a positional selection that does not resolve against
// the current view, typically a stale selection after a narrowing search.
var ErrRowIndex = errors.New("table: row index out of range for current view")
