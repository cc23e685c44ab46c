package widgets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"notebookcore/internal/runtime"
	"notebookcore/internal/transforms"
	"notebookcore/internal/ui"
	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

// TransformResult is the structured outcome of a transform request. A failed
// transform populates Error and leaves the previous state intact; the kernel
// never surfaces it as a hard failure, so the frontend can render it as an
// inline banner.
type TransformResult struct {
	Error        string                  `json:"error,omitempty"`
	NumRows      int                     `json:"num_rows"`
	NumColumns   int                     `json:"num_columns"`
	Columns      []table.Column          `json:"columns"`
	StepSchemas  []transforms.StepSchema `json:"step_schemas,omitempty"`
	FailedIndex  int                     `json:"failed_index,omitempty"`
	FailedKind   transform.Kind          `json:"failed_kind,omitempty"`
	PreviewTotal int                     `json:"preview_total"`
	Preview      []table.Row             `json:"preview,omitempty"`
}

// DataFrameConfig configures a dataframe widget.
type DataFrameConfig struct {
	// PreviewRows bounds the preview page in transform results; defaults
	// to 10.
	PreviewRows int
	Label       *string
	OnChange    func(table.Frame)
}

// DataFrame composes the generic element with an incremental transform
// container: the frontend value is the transform list, the kernel value the
// resulting frame, and extending the list replays only the appended suffix.
type DataFrame struct {
	el        *ui.Element[transform.Transformations, table.Frame]
	cfg       DataFrameConfig
	container *transforms.Container
}

// NewDataFrame wraps the source frame in a container and constructs the
// element with the transform RPC endpoint.
func NewDataFrame(ctx *runtime.Context, frame table.Frame, handler transform.Handler, cfg DataFrameConfig) (*DataFrame, error) {
	if frame == nil {
		return nil, fmt.Errorf("widgets: dataframe: nil frame")
	}
	if handler == nil {
		return nil, fmt.Errorf("widgets: dataframe: nil handler")
	}
	if cfg.PreviewRows == 0 {
		cfg.PreviewRows = 10
	}

	d := &DataFrame{cfg: cfg, container: transforms.NewContainer(frame, handler)}
	el, err := ui.New(ctx, ui.Config[transform.Transformations, table.Frame]{
		ComponentName: "dataframe",
		InitialValue:  nil,
		Label:         cfg.Label,
		Convert:       d.apply,
		OnChange:      cfg.OnChange,
		Functions: []runtime.Function{
			{Name: "apply_transforms", Handler: d.handleApply},
		},
		Owner: d,
	})
	if err != nil {
		return nil, err
	}
	d.el = el
	return d, nil
}

// ID returns the widget identity.
func (d *DataFrame) ID() runtime.ElementID { return d.el.ID() }

// Element exposes the underlying element.
func (d *DataFrame) Element() *ui.Element[transform.Transformations, table.Frame] { return d.el }

// Frame returns the frame after the applied transform list.
func (d *DataFrame) Frame() table.Frame { return d.container.Snapshot() }

// Applied returns the currently applied transform log.
func (d *DataFrame) Applied() transform.Transformations { return d.container.Applied() }

// StepSchemas returns the per-step column schemas of the applied log, which
// code generation uses to type intermediate results.
func (d *DataFrame) StepSchemas() []transforms.StepSchema { return d.container.StepSchemas() }

// Value returns the transformed frame, subject to the creating-cell guard.
func (d *DataFrame) Value() (table.Frame, error) { return d.el.Value() }

// UpdateRaw applies a raw frontend transform list.
func (d *DataFrame) UpdateRaw(raw json.RawMessage) error { return d.el.UpdateRaw(raw) }

// InvokeRaw routes a frontend RPC into the dataframe's registered functions.
func (d *DataFrame) InvokeRaw(ctx context.Context, name string, args json.RawMessage) (any, error) {
	return d.el.InvokeRaw(ctx, name, args)
}

// Descriptor returns the component descriptor.
func (d *DataFrame) Descriptor() ui.Descriptor { return d.el.Descriptor() }

// apply is the element convert hook: the frontend value is the transform
// list, the kernel value the frame it produces.
func (d *DataFrame) apply(ts transform.Transformations) (table.Frame, error) {
	return d.container.Apply(ts)
}

// Apply brings the widget to the state described by ts, returning a
// structured result. Transform failures are reported in the result, not as
// an error; the container reverts to its pre-call state on failure.
func (d *DataFrame) Apply(ts transform.Transformations) TransformResult {
	if err := d.el.Update(ts); err != nil {
		res := d.describe()
		res.Error = unwrapConvert(err).Error()
		var applyErr transforms.ApplyError
		if errors.As(err, &applyErr) {
			res.FailedIndex = applyErr.Index
			res.FailedKind = applyErr.Kind
		}
		return res
	}
	return d.describe()
}

func (d *DataFrame) describe() TransformResult {
	frame := d.container.Snapshot()
	res := TransformResult{
		NumRows:     frame.NumRows(),
		NumColumns:  frame.NumColumns(),
		Columns:     frame.Columns(),
		StepSchemas: d.container.StepSchemas(),
	}
	if mgr, ok := frame.(table.Manager); ok {
		res.PreviewTotal = frame.NumRows()
		res.Preview = mgr.Take(d.cfg.PreviewRows, 0)
	}
	return res
}

func (d *DataFrame) handleApply(ctx context.Context, args json.RawMessage) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ts transform.Transformations
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &ts); err != nil {
			return nil, fmt.Errorf("decode transforms: %w", err)
		}
	}
	return d.Apply(ts), nil
}

// Clone produces an independent dataframe widget over the same original
// frame, with its own container replaying the original's applied log.
func (d *DataFrame) Clone() (*DataFrame, error) {
	clone, err := NewDataFrame(d.el.Context(), d.containerOriginal(), d.containerHandler(), d.cfg)
	if err != nil {
		return nil, err
	}
	if applied := d.container.Applied(); len(applied) > 0 {
		if _, err := clone.container.Apply(applied); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

func (d *DataFrame) containerOriginal() table.Frame      { return d.container.Original() }
func (d *DataFrame) containerHandler() transform.Handler { return d.container.Handler() }

func unwrapConvert(err error) error {
	var ce ui.ConvertError
	if errors.As(err, &ce) {
		return ce.Err
	}
	return err
}
