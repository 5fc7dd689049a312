package unit

import (
	"fmt"
	"sort"
	"sync"
)

// Module is an attribute table with a name. Hosts return it from their
// factories; it also carries the subunits bound beneath it.
type Module struct {
	name     string
	readOnly bool

	mu       sync.RWMutex
	attrs    map[string]any
	subunits map[string]Unit
}

var (
	_ Unit    = (*Module)(nil)
	_ Mutable = (*Module)(nil)
	_ Lister  = (*Module)(nil)
	_ Binder  = (*Module)(nil)
)

// NewModule constructs a module holding a copy of attrs.
func NewModule(name string, attrs map[string]any) *Module {
	m := &Module{
		name:     name,
		attrs:    make(map[string]any, len(attrs)),
		subunits: make(map[string]Unit),
	}
	for k, v := range attrs {
		m.attrs[k] = v
	}
	return m
}

// Freeze makes later SetAttr calls fail with ErrReadOnly.
func (m *Module) Freeze() *Module {
	m.mu.Lock()
	m.readOnly = true
	m.mu.Unlock()
	return m
}

func (m *Module) Name() string {
	return m.name
}

func (m *Module) Attr(name string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.attrs[name]; ok {
		return v, nil
	}
	if sub, ok := m.subunits[name]; ok {
		return sub, nil
	}
	return nil, NoAttribute(m.name, name)
}

func (m *Module) SetAttr(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: empty name on unit %q", ErrInvalidAttr, m.name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, m.name)
	}
	m.attrs[name] = value
	return nil
}

// Attrs returns attribute and subunit names in sorted order.
func (m *Module) Attrs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.attrs)+len(m.subunits))
	for k := range m.attrs {
		names = append(names, k)
	}
	for k := range m.subunits {
		if _, shadowed := m.attrs[k]; !shadowed {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Module) BindSubunit(segment string, child Unit) {
	if segment == "" || child == nil {
		return
	}
	m.mu.Lock()
	m.subunits[segment] = child
	m.mu.Unlock()
}

func (m *Module) String() string {
	return fmt.Sprintf("unit %s", m.name)
}
