// Package host is the import mechanism lazymod defers to: a catalog of unit
// factories compiled into the binary.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound      = errors.New("host: unit not found")
	ErrAlreadyExists = errors.New("host: unit already provided")
	ErrNilFactory    = errors.New("host: factory is nil")
)

// Loader locates, builds, and initialises the real unit for a name.
type Loader interface {
	Load(name string) (unit.Unit, error)
}

// Factory builds a unit. It runs at most once per successful lazy load.
type Factory func() (unit.Unit, error)

// InitError reports a factory that ran and failed.
type InitError struct {
	Name  string
	Cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("host: init %s: %v", e.Name, e.Cause)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

// Catalog is a Loader backed by registered factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var _ Loader = (*Catalog)(nil)

var defaultCatalog = NewCatalog()

// Default returns the catalog shared by the whole process.
func Default() *Catalog {
	return defaultCatalog
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Provide registers the factory for name.
func (c *Catalog) Provide(name string, f Factory) error {
	if err := unit.Validate(name); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	c.factories[name] = f
	log.Debug().Str("unit", name).Msg("host: factory provided")
	return nil
}

// MustProvide is Provide for package init paths.
func (c *Catalog) MustProvide(name string, f Factory) {
	if err := c.Provide(name, f); err != nil {
		panic(err)
	}
}

// Load runs the factory for name.
func (c *Catalog) Load(name string) (unit.Unit, error) {
	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	u, err := f()
	if err != nil {
		return nil, &InitError{Name: name, Cause: err}
	}
	if u == nil {
		return nil, &InitError{Name: name, Cause: errors.New("factory returned nil unit")}
	}
	if u.Name() != name {
		return nil, &InitError{Name: name, Cause: fmt.Errorf("factory returned unit %q", u.Name())}
	}
	return u, nil
}

// Has reports whether a factory is registered for name.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[name]
	return ok
}

// Names lists provided units in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Namespace returns a factory for a unit that only groups subunits.
func Namespace(name string) Factory {
	return func() (unit.Unit, error) {
		return unit.NewModule(name, nil), nil
	}
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(name string) (unit.Unit, error)

func (f LoaderFunc) Load(name string) (unit.Unit, error) {
	return f(name)
}
