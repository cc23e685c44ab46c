// Package transforms implements the incremental transform-replay engine: a
// container that caches the dataframe produced by the last applied transform
// list and re-applies only the newly appended suffix when the list grows by
// extension.
package transforms

import (
	"fmt"

	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

// ApplyError carries the description of the transform that failed during an
// Apply call. The container's snapshot and applied log revert to their
// pre-call state, so callers can fall back to presenting the previous data.
type ApplyError struct {
	Index int
	Kind  transform.Kind
	Err   error
}

func (e ApplyError) Error() string {
	return fmt.Sprintf("transform %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e ApplyError) Unwrap() error { return e.Err }

// StepSchema records the column schema in effect after one transform step;
// widgets report these so code-generation features know intermediate column
// types.
type StepSchema struct {
	Kind    transform.Kind `json:"type"`
	Columns []table.Column `json:"columns"`
}

// Container holds the immutable original frame, the snapshot produced by the
// last applied transform list, and that list. Invariant: snapshot is always
// exactly the result of applying the log to the original in order.
type Container struct {
	handler  transform.Handler
	original table.Frame
	snapshot table.Frame
	applied  transform.Transformations
	schemas  []StepSchema
}

// NewContainer wraps the untransformed source frame with the engine handler
// that will execute transforms against it.
func NewContainer(original table.Frame, handler transform.Handler) *Container {
	return &Container{
		handler:  handler,
		original: original,
		snapshot: original,
	}
}

// Original returns the untransformed source frame.
func (c *Container) Original() table.Frame { return c.original }

// Handler returns the engine handler executing the transforms.
func (c *Container) Handler() transform.Handler { return c.handler }

// Snapshot returns the frame after the last applied transform list; before
// any Apply it is the original.
func (c *Container) Snapshot() table.Frame { return c.snapshot }

// Applied returns the transform log corresponding to Snapshot.
func (c *Container) Applied() transform.Transformations {
	return append(transform.Transformations(nil), c.applied...)
}

// StepSchemas returns the per-step schema records for the applied log.
func (c *Container) StepSchemas() []StepSchema {
	return append([]StepSchema(nil), c.schemas...)
}

// Apply brings the container to the state described by ts. When ts extends
// the applied log as an exact structural prefix, only the new suffix is
// applied to the cached snapshot; the dominant interaction pattern is "add
// one more filter/sort on top", which this turns from O(total) into O(new).
// Any divergence or shrink replays the full list from the original. An empty
// history is never treated as a prefix, so the first call always replays
// from the original.
func (c *Container) Apply(ts transform.Transformations) (table.Frame, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}

	incremental := len(c.applied) > 0 && ts.HasPrefix(c.applied)

	var (
		frame   table.Frame
		schemas []StepSchema
		suffix  transform.Transformations
		base    int
	)
	if incremental {
		frame = c.snapshot
		schemas = append([]StepSchema(nil), c.schemas...)
		suffix = ts[len(c.applied):]
		base = len(c.applied)
	} else {
		frame = c.original
		suffix = ts
	}

	for i, t := range suffix {
		next, err := transform.Apply(c.handler, frame, t)
		if err != nil {
			return nil, ApplyError{Index: base + i, Kind: t.Kind(), Err: err}
		}
		frame = next
		schemas = append(schemas, StepSchema{Kind: t.Kind(), Columns: frame.Columns()})
	}

	c.snapshot = frame
	c.applied = append(transform.Transformations(nil), ts...)
	c.schemas = schemas
	return frame, nil
}
