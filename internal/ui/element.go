// Package ui implements the backend half of the widget synchronization
// protocol: the generic Element base every widget composes, the lens
// composition layer, and the construction protocol that gives elements a
// stable identity across cell re-executions.
package ui

import (
	"context"
	"encoding/json"
	"fmt"

	"notebookcore/internal/runtime"
)

// Lens records that an element is a named view inside a composite parent.
// The child does not own the parent; this is a routing back-reference only.
type Lens struct {
	ParentID runtime.ElementID `json:"parent_id"`
	Key      string            `json:"key"`
}

// ErrUsage reports a misuse the notebook author must fix, such as reading a
// widget's value from the cell that is constructing it.
type ErrUsage struct {
	ID     runtime.ElementID
	Reason string
}

func (e ErrUsage) Error() string {
	return fmt.Sprintf("element %s: %s", e.ID, e.Reason)
}

// ConvertError wraps a failure of the frontend-to-kernel value conversion.
// The element's value stays at its last-good state when conversion fails.
type ConvertError struct {
	ID  runtime.ElementID
	Err error
}

func (e ConvertError) Error() string {
	return fmt.Sprintf("element %s: convert value: %v", e.ID, e.Err)
}

func (e ConvertError) Unwrap() error { return e.Err }

// Config carries the constructor arguments for an Element. S is the
// frontend-visible (JSON-serializable) value type, T the kernel-side value
// the pure Convert hook derives from it.
type Config[S, T any] struct {
	// ComponentName names the frontend component tag. Required.
	ComponentName string
	// InitialValue seeds the frontend value unless a resumed-session
	// override exists for the allocated id.
	InitialValue S
	// Label is the optional user-facing caption.
	Label *string
	// OnChange, when set, is invoked with the converted value after every
	// frontend update.
	OnChange func(T)
	// Convert derives the kernel value from the frontend value. Required;
	// must be pure.
	Convert func(S) (T, error)
	// Args is the arbitrary component argument map included in the
	// descriptor.
	Args map[string]any
	// Functions are the RPC endpoints registered under the element's id.
	Functions []runtime.Function
	// Owner, when set, is registered in the element registry in place of the
	// element itself. Widgets pass themselves here so kernel dispatch resolves
	// the id to the widget's full capability surface (search, transform state)
	// rather than to the inner element alone.
	Owner any
}

// Element is the backend object mirroring one interactive frontend widget.
type Element[S, T any] struct {
	ctx           *runtime.Context
	id            runtime.ElementID
	componentName string
	label         *string
	args          map[string]any
	lens          *Lens
	functions     []runtime.Function
	// owner is the value registered under the element's id: the wrapping
	// widget when one exists, otherwise the element itself.
	owner any

	frontendValue S
	value         T
	convert       func(S) (T, error)
	onChange      func(T)
}

// Descriptor is the deterministic component description the rendering layer
// turns into a client-renderable tag.
type Descriptor struct {
	ComponentName string         `json:"component"`
	ID            string         `json:"id"`
	InitialValue  any            `json:"initial_value"`
	Label         *string        `json:"label,omitempty"`
	Args          map[string]any `json:"args,omitempty"`
}

// New runs the element construction protocol: validate the configuration,
// allocate an id (sequence-derived when a cell run is active, random
// otherwise), register with the element registry, apply any resumed-session
// value recorded under the allocated id, register the declared RPC functions
// and derive the initial kernel value.
func New[S, T any](ctx *runtime.Context, cfg Config[S, T]) (*Element[S, T], error) {
	if ctx == nil {
		return nil, fmt.Errorf("ui: nil runtime context")
	}
	if cfg.ComponentName == "" {
		return nil, fmt.Errorf("ui: component name must be a non-empty string")
	}
	if cfg.Convert == nil {
		return nil, fmt.Errorf("ui: %s: convert hook required", cfg.ComponentName)
	}

	id, err := ctx.TakeID()
	if err != nil {
		// No ordered provider active; fall back to a random id that will
		// never correlate with recorded frontend state.
		id = ctx.RandomID()
	}

	e := &Element[S, T]{
		ctx:           ctx,
		id:            id,
		componentName: cfg.ComponentName,
		label:         cfg.Label,
		args:          cloneArgs(cfg.Args),
		functions:     append([]runtime.Function(nil), cfg.Functions...),
		frontendValue: cfg.InitialValue,
		convert:       cfg.Convert,
		onChange:      cfg.OnChange,
	}
	e.owner = any(e)
	if cfg.Owner != nil {
		e.owner = cfg.Owner
	}
	ctx.Elements().Register(id, e.owner, ctx.ActiveCell())

	if raw, ok := ctx.RecordedValue(id); ok {
		var resumed S
		if err := json.Unmarshal(raw, &resumed); err == nil {
			e.frontendValue = resumed
		}
		// A recorded value that no longer decodes into the widget's shape is
		// discarded; the constructor-supplied value stands.
	}

	if len(e.functions) > 0 {
		ctx.Functions().RegisterFunctions(id, e.functions...)
	}

	value, err := e.convert(e.frontendValue)
	if err != nil {
		return nil, ConvertError{ID: id, Err: err}
	}
	e.value = value
	return e, nil
}

// ID returns the element's identity.
func (e *Element[S, T]) ID() runtime.ElementID { return e.id }

// ComponentName returns the frontend component tag name.
func (e *Element[S, T]) ComponentName() string { return e.componentName }

// Label returns the optional caption.
func (e *Element[S, T]) Label() *string { return e.label }

// Lens returns the composition lens, or nil when the element is not a view
// of a parent.
func (e *Element[S, T]) Lens() *Lens { return e.lens }

// Context returns the shared runtime context.
func (e *Element[S, T]) Context() *runtime.Context { return e.ctx }

// FrontendValue returns the current frontend-visible value.
func (e *Element[S, T]) FrontendValue() S { return e.frontendValue }

// Value returns the kernel-side converted value. Reading it from within the
// very cell that is constructing the element fails with a usage error: in a
// reactive dataflow a cell cannot observe the widget it created in the same
// run. Frontend-originated internal updates bypass the guard.
func (e *Element[S, T]) Value() (T, error) {
	var zero T
	active := e.ctx.ActiveCell()
	if active != "" && !e.ctx.InFrontendUpdate() {
		if creator, err := e.ctx.Elements().CreatingCell(e.id); err == nil && creator == active {
			return zero, ErrUsage{
				ID:     e.id,
				Reason: "cannot access the value of an element created by the currently executing cell",
			}
		}
	}
	return e.value, nil
}

// Update applies a frontend-sent value: it recomputes the kernel value via
// the convert hook and, on success, stores both and fires the on-change
// callback. A convert failure propagates and leaves the element at its
// last-good state.
func (e *Element[S, T]) Update(frontendValue S) error {
	value, err := e.convert(frontendValue)
	if err != nil {
		return ConvertError{ID: e.id, Err: err}
	}
	e.frontendValue = frontendValue
	e.value = value
	if e.onChange != nil {
		e.onChange(value)
	}
	return nil
}

// UpdateRaw decodes a raw frontend payload into the element's frontend value
// type and applies it.
func (e *Element[S, T]) UpdateRaw(raw json.RawMessage) error {
	var s S
	if err := json.Unmarshal(raw, &s); err != nil {
		return ConvertError{ID: e.id, Err: fmt.Errorf("decode frontend value: %w", err)}
	}
	return e.Update(s)
}

// RegisterAsView records that this element is the named sub-view of parent,
// so the frontend can route a nested update without the parent holding a
// back-pointer.
func (e *Element[S, T]) RegisterAsView(parentID runtime.ElementID, key string) {
	e.lens = &Lens{ParentID: parentID, Key: key}
}

// Descriptor produces the deterministic component descriptor.
func (e *Element[S, T]) Descriptor() Descriptor {
	return Descriptor{
		ComponentName: e.componentName,
		ID:            string(e.id),
		InitialValue:  e.frontendValue,
		Label:         e.label,
		Args:          cloneArgs(e.args),
	}
}

// Deregister removes the element from both registries. The removal is
// guarded by instance identity, so a newer element that reused the id keeps
// both its registration and its function namespace.
func (e *Element[S, T]) Deregister() {
	if cur, err := e.ctx.Elements().Lookup(e.id); err == nil && cur != e.owner {
		return
	}
	e.ctx.Elements().Delete(e.id, e.owner)
	e.ctx.Functions().DeleteNamespace(e.id)
}

// Clone produces a structurally independent element under a new identity
// that does not synchronize with the original. The runtime context is shared
// by reference; values copy with value semantics; the on-change callback is
// shared verbatim. Widgets whose callback references their own state use
// CloneWithOnChange to rebind it. Function registrations are re-created
// under the clone's namespace.
func (e *Element[S, T]) Clone() *Element[S, T] {
	return e.CloneWithOnChange(e.onChange)
}

// CloneWithOnChange clones the element, installing the given callback in
// place of the original's. This is the rebinding hook for self-referential
// callbacks: the widget-level clone passes a callback bound to the new
// widget instance.
func (e *Element[S, T]) CloneWithOnChange(onChange func(T)) *Element[S, T] {
	id, err := e.ctx.TakeID()
	if err != nil {
		id = e.ctx.RandomID()
	}
	clone := &Element[S, T]{
		ctx:           e.ctx,
		id:            id,
		componentName: e.componentName,
		label:         cloneLabel(e.label),
		args:          cloneArgs(e.args),
		functions:     append([]runtime.Function(nil), e.functions...),
		frontendValue: e.frontendValue,
		value:         e.value,
		convert:       e.convert,
		onChange:      onChange,
	}
	if e.lens != nil {
		lens := *e.lens
		clone.lens = &lens
	}
	clone.owner = any(clone)
	e.ctx.Elements().Register(id, clone.owner, e.ctx.ActiveCell())
	if len(clone.functions) > 0 {
		e.ctx.Functions().RegisterFunctions(id, clone.functions...)
	}
	return clone
}

// AdoptOwner makes owner the registry entry for this element's id, preserving
// the creating cell. Widget-level clones call it after CloneWithOnChange so
// kernel dispatch resolves to the new widget instance.
func (e *Element[S, T]) AdoptOwner(owner any) {
	cell, err := e.ctx.Elements().CreatingCell(e.id)
	if err != nil {
		cell = e.ctx.ActiveCell()
	}
	e.owner = owner
	e.ctx.Elements().Register(e.id, owner, cell)
}

// ReplaceFunctions swaps the element's RPC endpoints, re-registering them
// under its namespace. Widget-level clones use this to point endpoints at
// the new widget instance.
func (e *Element[S, T]) ReplaceFunctions(fns ...runtime.Function) {
	e.functions = append([]runtime.Function(nil), fns...)
	e.ctx.Functions().DeleteNamespace(e.id)
	if len(e.functions) > 0 {
		e.ctx.Functions().RegisterFunctions(e.id, e.functions...)
	}
}

// InvokeRaw funnels a frontend RPC into this element's registered function.
func (e *Element[S, T]) InvokeRaw(ctx context.Context, name string, args json.RawMessage) (any, error) {
	fn, err := e.ctx.Functions().Resolve(e.id, name)
	if err != nil {
		return nil, err
	}
	return fn.Handler(ctx, args)
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

func cloneLabel(label *string) *string {
	if label == nil {
		return nil
	}
	cp := *label
	return &cp
}
