// Package registry owns the process-wide table of units.
//
// Ownership boundary:
// - presence checks for unit names
// - atomic claims of a name by a placeholder or a loaded unit
// - the in-place transition of a placeholder into its real unit
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/lazymod/pkg/unit"
)

var (
	ErrNotInstalled = errors.New("registry: cell is not the installed entry")
	ErrNilUnit      = errors.New("registry: unit is nil")
)

// Cell is a registry entry that stands in for a unit until it is loaded.
type Cell interface {
	unit.Unit
	State() unit.State
	Become(real unit.Unit)
}

const (
	KindPlaceholder = "placeholder"
	KindUnit        = "unit"
)

// Entry is one row of a registry snapshot.
type Entry struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Kind  string `json:"kind"`
}

// Registry maps unit names to their current representation.
type Registry struct {
	mu    sync.RWMutex
	units map[string]unit.Unit
}

var defaultRegistry = New()

// Default returns the registry shared by the whole process.
func Default() *Registry {
	return defaultRegistry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{units: make(map[string]unit.Unit)}
}

// Lookup returns the entry for name without loading anything.
func (r *Registry) Lookup(name string) (unit.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	return u, ok
}

// Loaded reports whether name is present and fully loaded.
func (r *Registry) Loaded(name string) bool {
	u, ok := r.Lookup(name)
	return ok && IsLoaded(u)
}

// Install claims u.Name() for u. When the name is already taken the existing
// entry is returned and installed is false.
func (r *Registry) Install(u unit.Unit) (winner unit.Unit, installed bool, err error) {
	if u == nil {
		return nil, false, ErrNilUnit
	}
	name := u.Name()
	if err := unit.Validate(name); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.units[name]; ok {
		return existing, false, nil
	}
	r.units[name] = u
	return u, true, nil
}

// MutateInPlace turns c into real. The registry keeps pointing at c, so every
// reference already handed out observes the change.
func (r *Registry) MutateInPlace(c Cell, real unit.Unit) error {
	if c == nil || real == nil {
		return ErrNilUnit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.units[c.Name()]
	if !ok || current != unit.Unit(c) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, c.Name())
	}
	c.Become(real)
	return nil
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// Snapshot returns every entry ordered by name.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	list := make([]Entry, 0, len(r.units))
	for name, u := range r.units {
		list = append(list, describe(name, u))
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Describe returns the snapshot row for a single name.
func (r *Registry) Describe(name string) (Entry, bool) {
	u, ok := r.Lookup(name)
	if !ok {
		return Entry{}, false
	}
	return describe(name, u), true
}

// IsLoaded reports whether u is a real unit or a cell that finished loading.
func IsLoaded(u unit.Unit) bool {
	if c, ok := u.(Cell); ok {
		return c.State() == unit.Loaded
	}
	return u != nil
}

func describe(name string, u unit.Unit) Entry {
	if c, ok := u.(Cell); ok {
		return Entry{Name: name, State: c.State().String(), Kind: KindPlaceholder}
	}
	return Entry{Name: name, State: unit.Loaded.String(), Kind: KindUnit}
}
