// Package transform defines the closed set of dataframe operation
// descriptors exchanged with the frontend, the condition algebra used by row
// filters, and the Handler capability interface a dataframe engine implements
// to execute each operation.
package transform

import "fmt"

// Kind discriminates the closed set of transform variants. The kind uniquely
// determines which variant record carries the operation's parameters.
type Kind string

const (
	// KindColumnConversion casts one column to a named type.
	KindColumnConversion Kind = "column_conversion"
	// KindRenameColumn renames one column.
	KindRenameColumn Kind = "rename_column"
	// KindSortColumn stably sorts by one column.
	KindSortColumn Kind = "sort_column"
	// KindFilterRows keeps or removes rows matching AND-combined conditions.
	KindFilterRows Kind = "filter_rows"
	// KindGroupBy partitions by columns and aggregates the rest.
	KindGroupBy Kind = "group_by"
	// KindAggregate aggregates explicit columns without grouping.
	KindAggregate Kind = "aggregate"
	// KindSelectColumns projects a subset of columns.
	KindSelectColumns Kind = "select_columns"
	// KindShuffleRows randomly permutes all rows.
	KindShuffleRows Kind = "shuffle_rows"
	// KindSampleRows draws a random subset of rows.
	KindSampleRows Kind = "sample_rows"
	// KindExplodeColumns multiplies rows over container-typed columns.
	KindExplodeColumns Kind = "explode_columns"
	// KindExpandDict flattens a dict-typed column into sibling columns.
	KindExpandDict Kind = "expand_dict"
	// KindUnique de-duplicates rows by a column subset.
	KindUnique Kind = "unique"
	// KindPivot spreads key columns into new aggregated columns.
	KindPivot Kind = "pivot"
)

// Aggregation names one aggregation function applied by group-by, aggregate
// and pivot transforms.
type Aggregation string

const (
	AggCount  Aggregation = "count"
	AggSum    Aggregation = "sum"
	AggMean   Aggregation = "mean"
	AggMedian Aggregation = "median"
	AggMin    Aggregation = "min"
	AggMax    Aggregation = "max"
)

// ConversionErrors selects how a failed column conversion is treated.
type ConversionErrors string

const (
	// ConversionRaise fails the transform on the first unconvertible value.
	ConversionRaise ConversionErrors = "raise"
	// ConversionIgnore leaves unconvertible values unconverted.
	ConversionIgnore ConversionErrors = "ignore"
)

// NaPosition places null values when sorting.
type NaPosition string

const (
	NaFirst NaPosition = "first"
	NaLast  NaPosition = "last"
)

// KeepPolicy selects which duplicate survives a unique transform.
type KeepPolicy string

const (
	KeepAny   KeepPolicy = "any"
	KeepNone  KeepPolicy = "none"
	KeepFirst KeepPolicy = "first"
	KeepLast  KeepPolicy = "last"
)

// FilterOperation selects whether matching rows are kept or removed.
type FilterOperation string

const (
	// FilterKeep retains rows matching all conditions.
	FilterKeep FilterOperation = "keep_rows"
	// FilterRemove drops rows matching all conditions (the complement of
	// the AND-combined predicate survives).
	FilterRemove FilterOperation = "remove_rows"
)

// Transform is one immutable dataframe operation descriptor. The concrete
// variant records below are the only implementations.
type Transform interface {
	Kind() Kind
	// Validate checks the variant's parameters for structural soundness.
	Validate() error

	isTransform()
}

// ColumnConversion casts one column to a named field type.
type ColumnConversion struct {
	ColumnID string           `json:"column_id"`
	DataType string           `json:"data_type"`
	Errors   ConversionErrors `json:"errors"`
}

// RenameColumn renames one column; the rename must be bijective, the target
// name must not collide with an existing column.
type RenameColumn struct {
	ColumnID    string `json:"column_id"`
	NewColumnID string `json:"new_column_id"`
}

// SortColumn stably sorts rows by one column.
type SortColumn struct {
	ColumnID   string     `json:"column_id"`
	Ascending  bool       `json:"ascending"`
	NaPosition NaPosition `json:"na_position"`
}

// FilterRows keeps or removes the rows matching every condition.
type FilterRows struct {
	Operation FilterOperation `json:"operation"`
	Where     []Condition     `json:"where"`
}

// GroupBy partitions rows by the key columns and applies one aggregation to
// every other column, or to AggregateColumnIDs when given. Aggregated columns
// are renamed "{col}_{agg}".
type GroupBy struct {
	ColumnIDs          []string    `json:"column_ids"`
	Aggregation        Aggregation `json:"aggregation"`
	AggregateColumnIDs []string    `json:"aggregate_column_ids,omitempty"`
	DropNA             bool        `json:"drop_na,omitempty"`
}

// Aggregate applies each aggregation to each listed column without grouping,
// producing one "{col}_{agg}" output column per pair.
type Aggregate struct {
	ColumnIDs    []string      `json:"column_ids"`
	Aggregations []Aggregation `json:"aggregations"`
}

// SelectColumns projects the listed columns, preserving the given order.
type SelectColumns struct {
	ColumnIDs []string `json:"column_ids"`
}

// ShuffleRows randomly permutes all rows with a fixed seed.
type ShuffleRows struct {
	Seed int64 `json:"seed"`
}

// SampleRows draws n random rows with a fixed seed.
type SampleRows struct {
	N       int   `json:"n"`
	Seed    int64 `json:"seed"`
	Replace bool  `json:"replace"`
}

// ExplodeColumns produces one row per element of the container-typed columns.
type ExplodeColumns struct {
	ColumnIDs []string `json:"column_ids"`
}

// ExpandDict flattens a dict-typed column into sibling columns.
type ExpandDict struct {
	ColumnID string `json:"column_id"`
}

// Unique de-duplicates rows by the listed columns under the keep policy.
type Unique struct {
	ColumnIDs []string   `json:"column_ids"`
	Keep      KeepPolicy `json:"keep"`
}

// Pivot spreads the key columns into new columns, aggregating the value
// columns per index group. Empty index or value lists default to every column
// not otherwise claimed; at least one of the two must resolve.
type Pivot struct {
	PivotColumnIDs []string    `json:"pivot_column_ids"`
	IndexColumnIDs []string    `json:"index_column_ids,omitempty"`
	ValueColumnIDs []string    `json:"value_column_ids,omitempty"`
	Aggregation    Aggregation `json:"aggregation"`
}

func (ColumnConversion) Kind() Kind { return KindColumnConversion }
func (RenameColumn) Kind() Kind     { return KindRenameColumn }
func (SortColumn) Kind() Kind       { return KindSortColumn }
func (FilterRows) Kind() Kind       { return KindFilterRows }
func (GroupBy) Kind() Kind          { return KindGroupBy }
func (Aggregate) Kind() Kind        { return KindAggregate }
func (SelectColumns) Kind() Kind    { return KindSelectColumns }
func (ShuffleRows) Kind() Kind      { return KindShuffleRows }
func (SampleRows) Kind() Kind       { return KindSampleRows }
func (ExplodeColumns) Kind() Kind   { return KindExplodeColumns }
func (ExpandDict) Kind() Kind       { return KindExpandDict }
func (Unique) Kind() Kind           { return KindUnique }
func (Pivot) Kind() Kind            { return KindPivot }

func (ColumnConversion) isTransform() {}
func (RenameColumn) isTransform()     {}
func (SortColumn) isTransform()       {}
func (FilterRows) isTransform()       {}
func (GroupBy) isTransform()          {}
func (Aggregate) isTransform()        {}
func (SelectColumns) isTransform()    {}
func (ShuffleRows) isTransform()      {}
func (SampleRows) isTransform()       {}
func (ExplodeColumns) isTransform()   {}
func (ExpandDict) isTransform()       {}
func (Unique) isTransform()           {}
func (Pivot) isTransform()            {}

// Validate implementations fail fast on structurally unsound parameters so a
// malformed frontend payload is rejected before any engine work happens.

func (t ColumnConversion) Validate() error {
	if t.ColumnID == "" {
		return fmt.Errorf("column_conversion: column_id required")
	}
	if t.DataType == "" {
		return fmt.Errorf("column_conversion: data_type required")
	}
	switch t.Errors {
	case ConversionRaise, ConversionIgnore:
		return nil
	default:
		return fmt.Errorf("column_conversion: unknown errors policy %q", t.Errors)
	}
}

func (t RenameColumn) Validate() error {
	if t.ColumnID == "" || t.NewColumnID == "" {
		return fmt.Errorf("rename_column: column_id and new_column_id required")
	}
	return nil
}

func (t SortColumn) Validate() error {
	if t.ColumnID == "" {
		return fmt.Errorf("sort_column: column_id required")
	}
	switch t.NaPosition {
	case NaFirst, NaLast, "":
		return nil
	default:
		return fmt.Errorf("sort_column: unknown na_position %q", t.NaPosition)
	}
}

func (t FilterRows) Validate() error {
	switch t.Operation {
	case FilterKeep, FilterRemove:
	default:
		return fmt.Errorf("filter_rows: unknown operation %q", t.Operation)
	}
	if len(t.Where) == 0 {
		return fmt.Errorf("filter_rows: at least one condition required")
	}
	for i, cond := range t.Where {
		if err := cond.Validate(); err != nil {
			return fmt.Errorf("filter_rows: condition %d: %w", i, err)
		}
	}
	return nil
}

func (t GroupBy) Validate() error {
	if len(t.ColumnIDs) == 0 {
		return fmt.Errorf("group_by: column_ids required")
	}
	return validAggregation("group_by", t.Aggregation)
}

func (t Aggregate) Validate() error {
	if len(t.ColumnIDs) == 0 {
		return fmt.Errorf("aggregate: column_ids required")
	}
	if len(t.Aggregations) == 0 {
		return fmt.Errorf("aggregate: aggregations required")
	}
	for _, agg := range t.Aggregations {
		if err := validAggregation("aggregate", agg); err != nil {
			return err
		}
	}
	return nil
}

func (t SelectColumns) Validate() error {
	if len(t.ColumnIDs) == 0 {
		return fmt.Errorf("select_columns: column_ids required")
	}
	return nil
}

func (ShuffleRows) Validate() error { return nil }

func (t SampleRows) Validate() error {
	if t.N < 0 {
		return fmt.Errorf("sample_rows: n must be non-negative")
	}
	return nil
}

func (t ExplodeColumns) Validate() error {
	if len(t.ColumnIDs) == 0 {
		return fmt.Errorf("explode_columns: column_ids required")
	}
	return nil
}

func (t ExpandDict) Validate() error {
	if t.ColumnID == "" {
		return fmt.Errorf("expand_dict: column_id required")
	}
	return nil
}

func (t Unique) Validate() error {
	if len(t.ColumnIDs) == 0 {
		return fmt.Errorf("unique: column_ids required")
	}
	switch t.Keep {
	case KeepAny, KeepNone, KeepFirst, KeepLast:
		return nil
	default:
		return fmt.Errorf("unique: unknown keep policy %q", t.Keep)
	}
}

func (t Pivot) Validate() error {
	if len(t.PivotColumnIDs) == 0 {
		return fmt.Errorf("pivot: pivot_column_ids required")
	}
	return validAggregation("pivot", t.Aggregation)
}

func validAggregation(op string, agg Aggregation) error {
	switch agg {
	case AggCount, AggSum, AggMean, AggMedian, AggMin, AggMax:
		return nil
	default:
		return fmt.Errorf("%s: unknown aggregation %q", op, agg)
	}
}
