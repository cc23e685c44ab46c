package ui

import (
	"context"
	"encoding/json"
)

// Updatable is the type-erased surface the kernel uses to deliver a raw
// frontend value to whatever element is registered under an id.
type Updatable interface {
	UpdateRaw(raw json.RawMessage) error
}

// Invoker is the type-erased surface for funneling an RPC into an element's
// registered function.
type Invoker interface {
	InvokeRaw(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Describable exposes the deterministic component descriptor.
type Describable interface {
	Descriptor() Descriptor
}
