package lazy

import (
	"sync"

	"github.com/danmuck/lazymod/pkg/host"
	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/danmuck/lazymod/pkg/unit"
	"golang.org/x/sync/singleflight"
)

// Importer binds lazy requests to one registry and one host loader.
type Importer struct {
	reg    *registry.Registry
	loader host.Loader
	flight singleflight.Group

	loadingMu sync.Mutex
	loading   map[string]uint64
}

var defaultImporter = New(registry.Default(), host.Default())

// Default returns the importer over the process-wide registry and catalog.
func Default() *Importer {
	return defaultImporter
}

// New creates an importer. Nil arguments fall back to the process-wide
// registry and catalog.
func New(reg *registry.Registry, loader host.Loader) *Importer {
	if reg == nil {
		reg = registry.Default()
	}
	if loader == nil {
		loader = host.Default()
	}
	return &Importer{reg: reg, loader: loader, loading: make(map[string]uint64)}
}

// Registry returns the registry this importer installs into.
func (i *Importer) Registry() *registry.Registry {
	return i.reg
}

// Module declares name lazily and returns the reference selected by the
// binding mode (Leaf unless WithMode says otherwise). A malformed name is
// the only error; load failures surface on first use.
func (i *Importer) Module(name string, opts ...Option) (unit.Unit, error) {
	return i.resolve(name, newRequest(name, opts))
}

func Module(name string, opts ...Option) (unit.Unit, error) {
	return defaultImporter.Module(name, opts...)
}

func Callable(qualified string, opts ...Option) (unit.Func, error) {
	return defaultImporter.Callable(qualified, opts...)
}

func Callables(unitName string, names ...string) ([]unit.Func, error) {
	return defaultImporter.Callables(unitName, names...)
}

func Import(name string) (unit.Unit, error) {
	return defaultImporter.Import(name)
}
