package transform

import (
	"fmt"

	"notebookcore/pkg/table"
)

// Handler is the capability interface one dataframe engine implements: one
// method per transform kind, each taking the current frame and the typed
// variant and returning a new frame. Implementations must not mutate the
// input frame.
type Handler interface {
	HandleColumnConversion(f table.Frame, t ColumnConversion) (table.Frame, error)
	HandleRenameColumn(f table.Frame, t RenameColumn) (table.Frame, error)
	HandleSortColumn(f table.Frame, t SortColumn) (table.Frame, error)
	HandleFilterRows(f table.Frame, t FilterRows) (table.Frame, error)
	HandleGroupBy(f table.Frame, t GroupBy) (table.Frame, error)
	HandleAggregate(f table.Frame, t Aggregate) (table.Frame, error)
	HandleSelectColumns(f table.Frame, t SelectColumns) (table.Frame, error)
	HandleShuffleRows(f table.Frame, t ShuffleRows) (table.Frame, error)
	HandleSampleRows(f table.Frame, t SampleRows) (table.Frame, error)
	HandleExplodeColumns(f table.Frame, t ExplodeColumns) (table.Frame, error)
	HandleExpandDict(f table.Frame, t ExpandDict) (table.Frame, error)
	HandleUnique(f table.Frame, t Unique) (table.Frame, error)
	HandlePivot(f table.Frame, t Pivot) (table.Frame, error)
}

// Apply validates t and dispatches it to the handler method matching its
// kind.
func Apply(h Handler, f table.Frame, t Transform) (table.Frame, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	switch v := t.(type) {
	case ColumnConversion:
		return h.HandleColumnConversion(f, v)
	case RenameColumn:
		return h.HandleRenameColumn(f, v)
	case SortColumn:
		return h.HandleSortColumn(f, v)
	case FilterRows:
		return h.HandleFilterRows(f, v)
	case GroupBy:
		return h.HandleGroupBy(f, v)
	case Aggregate:
		return h.HandleAggregate(f, v)
	case SelectColumns:
		return h.HandleSelectColumns(f, v)
	case ShuffleRows:
		return h.HandleShuffleRows(f, v)
	case SampleRows:
		return h.HandleSampleRows(f, v)
	case ExplodeColumns:
		return h.HandleExplodeColumns(f, v)
	case ExpandDict:
		return h.HandleExpandDict(f, v)
	case Unique:
		return h.HandleUnique(f, v)
	case Pivot:
		return h.HandlePivot(f, v)
	default:
		return nil, fmt.Errorf("transform: no handler dispatch for %T", t)
	}
}
