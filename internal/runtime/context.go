package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNoIDProvider signals that no cell run is active, so no deterministic
// sequence id can be handed out. Callers fall back to a random id.
var ErrNoIDProvider = errors.New("runtime: no ordered id provider active")

// ValueSource supplies recorded frontend values for resumed sessions. The
// session package's Store satisfies it.
type ValueSource interface {
	RecordedValue(id string) (json.RawMessage, bool, error)
}

// Context is the per-session runtime context every widget constructor
// threads through: identity allocation, registries and the resumed-value
// source. One Context per kernel session; test code constructs fresh ones.
type Context struct {
	mu         sync.Mutex
	elements   *ElementRegistry
	functions  *FunctionRegistry
	values     ValueSource
	activeCell CellID
	running    bool
	seq        int
	inUpdate   bool
}

// NewContext constructs a runtime context. values may be nil when no
// resumed-session state exists.
func NewContext(values ValueSource) *Context {
	return &Context{
		elements:  NewElementRegistry(),
		functions: NewFunctionRegistry(),
		values:    values,
	}
}

// Elements returns the element registry.
func (c *Context) Elements() *ElementRegistry { return c.elements }

// Functions returns the function registry.
func (c *Context) Functions() *FunctionRegistry { return c.functions }

// BeginCellRun marks cell as the active execution and resets the sequence
// counter, so a deterministic cell body allocates the same ids every run.
// Registrations from the cell's previous run are invalidated.
func (c *Context) BeginCellRun(cell CellID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeCell = cell
	c.running = true
	c.seq = 0
	for _, id := range c.elements.BeginCellRun(cell) {
		c.functions.DeleteNamespace(id)
	}
}

// EndCellRun clears the active execution.
func (c *Context) EndCellRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.activeCell = ""
}

// ActiveCell returns the currently executing cell, or "" outside a run.
func (c *Context) ActiveCell() CellID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ""
	}
	return c.activeCell
}

// TakeID returns the next sequence-derived element id for the active cell
// run. Sequence ids are stable across re-runs as long as the cell constructs
// elements in a deterministic order. Outside a run it fails with
// ErrNoIDProvider.
func (c *Context) TakeID() (ElementID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return "", ErrNoIDProvider
	}
	id := ElementID(fmt.Sprintf("%s-%d", c.activeCell, c.seq))
	c.seq++
	return id, nil
}

// RandomID returns a fresh random element id, the fallback when no ordered
// provider is active. Random ids never match recorded session state, which
// forces a value reset for non-deterministic construction orders.
func (c *Context) RandomID() ElementID {
	return newRandomID()
}

// RecordedValue returns the resumed-session initial value recorded for id,
// if any.
func (c *Context) RecordedValue(id ElementID) (json.RawMessage, bool) {
	c.mu.Lock()
	src := c.values
	c.mu.Unlock()
	if src == nil {
		return nil, false
	}
	raw, ok, err := src.RecordedValue(string(id))
	if err != nil || !ok {
		return nil, false
	}
	return raw, true
}

// BeginFrontendUpdate marks the start of a frontend-originated update, which
// suspends the read-your-own-write guard for internal value reads. Returns a
// func restoring the previous state.
func (c *Context) BeginFrontendUpdate() func() {
	c.mu.Lock()
	prev := c.inUpdate
	c.inUpdate = true
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.inUpdate = prev
		c.mu.Unlock()
	}
}

// InFrontendUpdate reports whether a frontend-originated update is being
// dispatched.
func (c *Context) InFrontendUpdate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUpdate
}
