package widgets

import (
	"context"
	"encoding/json"

	"notebookcore/internal/runtime"
	"notebookcore/internal/ui"
)

// Form wraps another element behind a staging buffer: frontend edits land on
// the form's own staged value and reach the wrapped element only when the
// user submits. The wrapped element is registered as the form's "element"
// sub-view so the frontend can route nested updates.
type Form[S, T any] struct {
	el      *ui.Element[S, S]
	wrapped *ui.Element[S, T]
}

// NewForm stages the wrapped element's current frontend value and registers
// the lens back-reference.
func NewForm[S, T any](ctx *runtime.Context, wrapped *ui.Element[S, T], label *string) (*Form[S, T], error) {
	f := &Form[S, T]{wrapped: wrapped}
	el, err := ui.New(ctx, ui.Config[S, S]{
		ComponentName: "form",
		InitialValue:  wrapped.FrontendValue(),
		Label:         label,
		Convert:       func(s S) (S, error) { return s, nil },
		Functions: []runtime.Function{
			{Name: "submit", Handler: f.handleSubmit},
		},
		Owner: f,
	})
	if err != nil {
		return nil, err
	}
	f.el = el
	wrapped.RegisterAsView(el.ID(), "element")
	return f, nil
}

// ID returns the form's identity.
func (f *Form[S, T]) ID() runtime.ElementID { return f.el.ID() }

// Element exposes the form's own element.
func (f *Form[S, T]) Element() *ui.Element[S, S] { return f.el }

// Wrapped exposes the element the form guards.
func (f *Form[S, T]) Wrapped() *ui.Element[S, T] { return f.wrapped }

// Stage records an edited value without propagating it to the wrapped
// element.
func (f *Form[S, T]) Stage(s S) error { return f.el.Update(s) }

// UpdateRaw stages a raw frontend payload.
func (f *Form[S, T]) UpdateRaw(raw json.RawMessage) error { return f.el.UpdateRaw(raw) }

// InvokeRaw routes a frontend RPC into the form's registered functions.
func (f *Form[S, T]) InvokeRaw(ctx context.Context, name string, args json.RawMessage) (any, error) {
	return f.el.InvokeRaw(ctx, name, args)
}

// Descriptor returns the component descriptor.
func (f *Form[S, T]) Descriptor() ui.Descriptor { return f.el.Descriptor() }

// Staged returns the currently staged frontend value.
func (f *Form[S, T]) Staged() S { return f.el.FrontendValue() }

// Submit copies the staged value into the wrapped element, which converts it
// and fires the wrapped element's callback.
func (f *Form[S, T]) Submit() error {
	return f.wrapped.Update(f.el.FrontendValue())
}

// Value returns the wrapped element's kernel value, i.e. the last submitted
// state.
func (f *Form[S, T]) Value() (T, error) { return f.wrapped.Value() }

// handleSubmit is the frontend RPC: an optional payload stages a final value
// first, then the staged value is submitted.
func (f *Form[S, T]) handleSubmit(ctx context.Context, args json.RawMessage) (any, error) {
	if len(args) > 0 && string(args) != "null" {
		var staged S
		if err := json.Unmarshal(args, &staged); err != nil {
			return nil, err
		}
		if err := f.el.Update(staged); err != nil {
			return nil, err
		}
	}
	if err := f.Submit(); err != nil {
		return nil, err
	}
	return map[string]any{"submitted": true}, nil
}
