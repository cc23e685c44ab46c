// Package runtime holds the per-session execution context shared by every
// widget: element identity allocation, the element and function registries,
// and the bookkeeping that ties an element to the cell run that created it.
package runtime

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// CellID identifies one notebook cell.
type CellID string

// ElementID identifies one registered UI element.
type ElementID string

// ErrElementNotFound is returned when a registry lookup misses.
type ErrElementNotFound struct {
	ID ElementID
}

func (e ErrElementNotFound) Error() string {
	return fmt.Sprintf("element %s not found", e.ID)
}

type registration struct {
	element    any
	cell       CellID
	generation uint64
}

// ElementRegistry maps element ids to live element instances and to the cell
// that created them. Entries are invalidated generationally: when a cell
// re-runs, the previous run's registrations for that cell are dropped, so no
// GC hook is needed for cleanup.
type ElementRegistry struct {
	mu       sync.Mutex
	byID     map[ElementID]registration
	cellGens map[CellID]uint64
}

// NewElementRegistry constructs an empty registry.
func NewElementRegistry() *ElementRegistry {
	return &ElementRegistry{
		byID:     make(map[ElementID]registration),
		cellGens: make(map[CellID]uint64),
	}
}

// Register stores element under id, recording the creating cell. A later
// registration for the same id replaces the earlier one.
func (r *ElementRegistry) Register(id ElementID, element any, cell CellID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = registration{element: element, cell: cell, generation: r.cellGens[cell]}
}

// Lookup returns the element registered under id.
func (r *ElementRegistry) Lookup(id ElementID) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return nil, ErrElementNotFound{ID: id}
	}
	return reg.element, nil
}

// CreatingCell returns the cell that registered id. Used by the
// read-your-own-write guard.
func (r *ElementRegistry) CreatingCell(id ElementID) (CellID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return "", ErrElementNotFound{ID: id}
	}
	return reg.cell, nil
}

// Delete removes the registration for id only while the stored instance is
// still element. Deleting an absent id, or an id that a newer element has
// since reused, is a no-op; teardown races are legitimate.
func (r *ElementRegistry) Delete(id ElementID, element any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.byID[id]; ok && reg.element == element {
		delete(r.byID, id)
	}
}

// BeginCellRun invalidates every registration left over from cell's previous
// run and returns the invalidated ids so callers can tear down dependent
// state (function namespaces). Elements the new run constructs will register
// under the new generation.
func (r *ElementRegistry) BeginCellRun(cell CellID) []ElementID {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen := r.cellGens[cell] + 1
	r.cellGens[cell] = gen
	var removed []ElementID
	for id, reg := range r.byID {
		if reg.cell == cell && reg.generation < gen {
			delete(r.byID, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len reports the number of live registrations.
func (r *ElementRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// newRandomID mirrors the random fallback identity: a hex string that is
// unique per construction and therefore never correlates with recorded
// frontend state.
func newRandomID() ElementID {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return ElementID(hex.EncodeToString(b[:]))
}
