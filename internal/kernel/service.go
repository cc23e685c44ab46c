// Package kernel exposes the message entry points a notebook host dispatches
// frontend traffic through: value updates, RPC invocations, table searches
// and transform requests, resolved via the runtime registries.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notebookcore/internal/export"
	"notebookcore/internal/runtime"
	"notebookcore/internal/session"
	"notebookcore/internal/transforms"
	"notebookcore/internal/ui"
	"notebookcore/pkg/table"
	"notebookcore/pkg/transform"
)

// Searcher is what a table-like widget exposes to the search entry point.
type Searcher interface {
	Search(ctx context.Context, req table.SearchRequest) (table.SearchResponse, error)
}

// TransformTarget is what a dataframe-like widget exposes for transform-state
// introspection: the applied log and the per-step schemas code generation
// consumes.
type TransformTarget interface {
	Applied() transform.Transformations
	StepSchemas() []transforms.StepSchema
}

// Service wires the registries, stores and observability into the message
// entry points. Construct with NewService; the zero value is not usable.
type Service struct {
	rt      *runtime.Context
	store   session.Store
	exports export.Store
	clock   func() time.Time
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.clock = fn }
}

// WithLogger installs a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer installs an operation tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithSessionStore overrides the session store backing resumed values.
func WithSessionStore(st session.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithExportStore installs the blob store table downloads write to.
func WithExportStore(st export.Store) Option {
	return func(s *Service) { s.exports = st }
}

// NewService constructs a service with an in-memory session store unless
// overridden.
func NewService(opts ...Option) *Service {
	s := &Service{
		clock:   time.Now,
		logger:  NopLogger{},
		metrics: NopMetricsRecorder{},
		tracer:  NopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = session.NewMemoryStore()
	}
	s.rt = runtime.NewContext(s.store)
	return s
}

// Runtime returns the per-session runtime context widget constructors thread
// through.
func (s *Service) Runtime() *runtime.Context { return s.rt }

// ExportStore returns the configured blob store, nil when downloads are
// disabled.
func (s *Service) ExportStore() export.Store { return s.exports }

// BeginCellRun marks cell as executing; element construction inside the run
// allocates sequence-derived ids and registrations from the cell's previous
// run are invalidated.
func (s *Service) BeginCellRun(cell runtime.CellID) { s.rt.BeginCellRun(cell) }

// EndCellRun clears the active execution.
func (s *Service) EndCellRun() { s.rt.EndCellRun() }

// SetUIElementValue delivers a frontend-sent value to the element registered
// under id, recording it in the session store on success. The update runs
// under the frontend-update flag so on-change callbacks may read the
// element's value without tripping the creating-cell guard.
func (s *Service) SetUIElementValue(ctx context.Context, id runtime.ElementID, raw json.RawMessage) error {
	return s.observe(ctx, "set_ui_element_value", map[string]any{"id": string(id)}, func() error {
		el, err := s.rt.Elements().Lookup(id)
		if err != nil {
			return err
		}
		target, ok := el.(ui.Updatable)
		if !ok {
			return fmt.Errorf("element %s does not accept value updates", id)
		}
		restore := s.rt.BeginFrontendUpdate()
		defer restore()
		if err := target.UpdateRaw(raw); err != nil {
			return err
		}
		if err := s.store.SaveValue(string(id), raw); err != nil {
			s.logger.Warn("record ui value", "id", string(id), "error", err)
		}
		return nil
	})
}

// InvokeFunction routes a frontend RPC to the element registered under
// namespace. The element's own dispatcher is preferred; a namespace with
// registered functions but no live element falls back to the function
// registry directly.
func (s *Service) InvokeFunction(ctx context.Context, namespace runtime.ElementID, name string, args json.RawMessage) (any, error) {
	var out any
	err := s.observe(ctx, "invoke_function", map[string]any{"namespace": string(namespace), "function": name}, func() error {
		restore := s.rt.BeginFrontendUpdate()
		defer restore()
		if el, err := s.rt.Elements().Lookup(namespace); err == nil {
			if inv, ok := el.(ui.Invoker); ok {
				var ierr error
				out, ierr = inv.InvokeRaw(ctx, name, args)
				return ierr
			}
		}
		fn, err := s.rt.Functions().Resolve(namespace, name)
		if err != nil {
			return err
		}
		out, err = fn.Handler(ctx, args)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchTable runs a search request against the table registered under id.
func (s *Service) SearchTable(ctx context.Context, id runtime.ElementID, req table.SearchRequest) (table.SearchResponse, error) {
	var resp table.SearchResponse
	err := s.observe(ctx, "search_table", map[string]any{"id": string(id)}, func() error {
		el, err := s.rt.Elements().Lookup(id)
		if err != nil {
			return err
		}
		target, ok := el.(Searcher)
		if !ok {
			return fmt.Errorf("element %s is not searchable", id)
		}
		resp, err = target.Search(ctx, req)
		return err
	})
	if err != nil {
		return table.SearchResponse{}, err
	}
	return resp, nil
}

// ApplyTransforms routes a transform list to the dataframe registered under
// id via its RPC endpoint. Transform failures come back inside the decoded
// result, never as a kernel error.
func (s *Service) ApplyTransforms(ctx context.Context, id runtime.ElementID, ts transform.Transformations) (any, error) {
	payload, err := json.Marshal(ts)
	if err != nil {
		return nil, fmt.Errorf("encode transforms: %w", err)
	}
	return s.InvokeFunction(ctx, id, "apply_transforms", payload)
}

// TransformState returns the applied transform log and per-step schemas of
// the dataframe registered under id.
func (s *Service) TransformState(id runtime.ElementID) (transform.Transformations, []transforms.StepSchema, error) {
	el, err := s.rt.Elements().Lookup(id)
	if err != nil {
		return nil, nil, err
	}
	target, ok := el.(TransformTarget)
	if !ok {
		return nil, nil, fmt.Errorf("element %s has no transform state", id)
	}
	return target.Applied(), target.StepSchemas(), nil
}

// Descriptor returns the component descriptor for the element registered
// under id.
func (s *Service) Descriptor(id runtime.ElementID) (ui.Descriptor, error) {
	el, err := s.rt.Elements().Lookup(id)
	if err != nil {
		return ui.Descriptor{}, err
	}
	target, ok := el.(ui.Describable)
	if !ok {
		return ui.Descriptor{}, fmt.Errorf("element %s has no descriptor", id)
	}
	return target.Descriptor(), nil
}

// observe wraps one entry point with context check, logging, metrics and
// tracing.
func (s *Service) observe(ctx context.Context, op string, fields map[string]any, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := s.clock()
	err := fn()
	d := s.clock().Sub(start)
	s.metrics.ObserveOperation(op, d, err == nil)
	s.tracer.Trace(op, start, d, fields)
	if err != nil {
		s.logger.Error(op, append(flatten(fields), "error", err)...)
		return err
	}
	s.logger.Debug(op, flatten(fields)...)
	return nil
}

func flatten(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
