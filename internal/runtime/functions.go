package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Function is one RPC endpoint scoped to an element instance. The handler
// decodes its own argument record from the raw payload and returns a
// JSON-serializable result.
type Function struct {
	Name    string
	Handler func(ctx context.Context, args json.RawMessage) (any, error)
}

// ErrFunctionNotFound is returned when an RPC resolves to no registered
// endpoint.
type ErrFunctionNotFound struct {
	Namespace ElementID
	Name      string
}

func (e ErrFunctionNotFound) Error() string {
	return fmt.Sprintf("function %s/%s not found", e.Namespace, e.Name)
}

// FunctionRegistry maps (namespace, name) pairs to callables the frontend
// may invoke. Namespaces are element ids; deleting a namespace removes every
// function the element declared.
type FunctionRegistry struct {
	mu         sync.Mutex
	namespaces map[ElementID]map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{namespaces: make(map[ElementID]map[string]Function)}
}

// RegisterFunctions installs fns under namespace, replacing any previous
// registration for the same names.
func (r *FunctionRegistry) RegisterFunctions(namespace ElementID, fns ...Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket, ok := r.namespaces[namespace]
	if !ok {
		bucket = make(map[string]Function, len(fns))
		r.namespaces[namespace] = bucket
	}
	for _, fn := range fns {
		bucket[fn.Name] = fn
	}
}

// Resolve looks up one endpoint.
func (r *FunctionRegistry) Resolve(namespace ElementID, name string) (Function, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket, ok := r.namespaces[namespace]
	if !ok {
		return Function{}, ErrFunctionNotFound{Namespace: namespace, Name: name}
	}
	fn, ok := bucket[name]
	if !ok {
		return Function{}, ErrFunctionNotFound{Namespace: namespace, Name: name}
	}
	return fn, nil
}

// DeleteNamespace removes every function registered under namespace.
// Deleting an absent namespace is a no-op.
func (r *FunctionRegistry) DeleteNamespace(namespace ElementID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.namespaces, namespace)
}

// Namespaces reports the number of registered namespaces.
func (r *FunctionRegistry) Namespaces() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.namespaces)
}
