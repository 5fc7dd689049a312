package lazy

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/rs/zerolog/log"
)

// outcome is published once per placeholder and never replaced.
type outcome struct {
	real unit.Unit
	err  error
}

// Placeholder stands in for a unit that has not been loaded yet. It is the
// identity every holder keeps; after a successful load it forwards every
// access to the real unit.
type Placeholder struct {
	name    string
	mode    BindingMode
	parent  *Placeholder
	strings ErrorStrings
	imp     *Importer

	loadMu sync.Mutex
	result atomic.Pointer[outcome]

	linkMu    sync.RWMutex
	children  map[string]unit.Unit
	callables map[string]unit.Func
}

var (
	_ unit.Unit     = (*Placeholder)(nil)
	_ unit.Mutable  = (*Placeholder)(nil)
	_ unit.Lister   = (*Placeholder)(nil)
	_ unit.Invoker  = (*Placeholder)(nil)
	_ registry.Cell = (*Placeholder)(nil)
)

func newPlaceholder(imp *Importer, name string, parent *Placeholder, req request) *Placeholder {
	return &Placeholder{
		name:      name,
		mode:      req.mode,
		parent:    parent,
		strings:   req.strings,
		imp:       imp,
		children:  make(map[string]unit.Unit),
		callables: make(map[string]unit.Func),
	}
}

func (p *Placeholder) Name() string {
	return p.name
}

// Mode is the binding mode of the request that created the placeholder.
func (p *Placeholder) Mode() BindingMode {
	return p.mode
}

func (p *Placeholder) State() unit.State {
	o := p.result.Load()
	switch {
	case o == nil:
		return unit.Pending
	case o.err != nil:
		return unit.Failed
	default:
		return unit.Loaded
	}
}

// Err returns the cached load failure, if any.
func (p *Placeholder) Err() error {
	if o := p.result.Load(); o != nil {
		return o.err
	}
	return nil
}

// Real returns the loaded unit behind the placeholder.
func (p *Placeholder) Real() (unit.Unit, bool) {
	if o := p.result.Load(); o != nil && o.err == nil {
		return o.real, true
	}
	return nil, false
}

func (p *Placeholder) String() string {
	if real, ok := p.Real(); ok {
		if s, ok := real.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("unit %s", p.name)
	}
	return fmt.Sprintf("lazy unit %s (%s)", p.name, p.State())
}

// Attr resolves name against the unit. While pending, linked child
// placeholders, units already registered under "<unit>.<name>", and declared
// lazy callables are returned without loading. Anything else loads the unit.
func (p *Placeholder) Attr(name string) (any, error) {
	p.trace("attr", name)
	if o := p.result.Load(); o != nil {
		return p.forward(o, name)
	}
	if child, ok := p.child(name); ok {
		return child, nil
	}
	if u, ok := p.imp.reg.Lookup(p.name + "." + name); ok {
		return u, nil
	}
	if fn, ok := p.lazyCallable(name); ok {
		return fn, nil
	}
	if err := p.Load(); err != nil {
		return nil, err
	}
	return p.forward(p.result.Load(), name)
}

func (p *Placeholder) forward(o *outcome, name string) (any, error) {
	if o.err != nil {
		return nil, o.err
	}
	v, err := o.real.Attr(name)
	if errors.Is(err, unit.ErrNoAttribute) {
		if child, ok := p.child(name); ok {
			return child, nil
		}
	}
	return v, err
}

// SetAttr loads the unit and writes through to it.
func (p *Placeholder) SetAttr(name string, value any) error {
	p.trace("setattr", name)
	if err := p.Load(); err != nil {
		return err
	}
	real, _ := p.Real()
	m, ok := real.(unit.Mutable)
	if !ok {
		return fmt.Errorf("%w: %s", unit.ErrReadOnly, p.name)
	}
	return m.SetAttr(name, value)
}

// Attrs loads the unit and lists its attributes along with linked children.
func (p *Placeholder) Attrs() ([]string, error) {
	p.trace("attrs", "")
	if err := p.Load(); err != nil {
		return nil, err
	}
	real, _ := p.Real()
	seen := make(map[string]struct{})
	var names []string
	if l, ok := real.(unit.Lister); ok {
		listed, err := l.Attrs()
		if err != nil {
			return nil, err
		}
		for _, name := range listed {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	p.linkMu.RLock()
	for segment := range p.children {
		if _, ok := seen[segment]; !ok {
			names = append(names, segment)
		}
	}
	p.linkMu.RUnlock()
	sort.Strings(names)
	return names, nil
}

// Load forces the real load. Ancestors load first, root to leaf. Exactly one
// host load runs per name; its outcome, success or failure, is final. A
// factory may load descendants of the unit it is building, but touching the
// unit itself returns ErrReentrantLoad.
func (p *Placeholder) Load() error {
	if o := p.result.Load(); o != nil {
		return o.err
	}
	if p.imp.reentrant(p.name) {
		return fmt.Errorf("%w: %s", ErrReentrantLoad, p.name)
	}

	var parentErr error
	if p.parent != nil && !p.imp.reentrant(p.parent.name) {
		parentErr = p.parent.Load()
	}

	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if o := p.result.Load(); o != nil {
		return o.err
	}

	if parentErr != nil {
		log.Warn().Str("unit", p.name).Str("parent", p.parent.name).Err(parentErr).Msg("lazy: parent failed to load")
		return p.fail(parentErr)
	}

	start := time.Now()
	real, err := p.imp.load(p.name)
	if err != nil {
		log.Warn().Str("unit", p.name).Err(err).Msg("lazy: load failed")
		return p.fail(err)
	}
	if err := p.imp.reg.MutateInPlace(p, real); err != nil {
		return p.fail(err)
	}
	log.Debug().Str("unit", p.name).Dur("took", time.Since(start)).Msg("lazy: unit loaded")
	return nil
}

// Call loads the unit and invokes it when it is a unit.Invoker.
func (p *Placeholder) Call(args ...any) (any, error) {
	p.trace("call", "")
	if err := p.Load(); err != nil {
		return nil, err
	}
	real, _ := p.Real()
	inv, ok := real.(unit.Invoker)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", unit.ErrNotCallable, p.name, real)
	}
	return inv.Call(args...)
}

// Become publishes real as the loaded unit. The registry calls it from
// MutateInPlace; it has no effect once an outcome is published.
func (p *Placeholder) Become(real unit.Unit) {
	p.result.CompareAndSwap(nil, &outcome{real: real})
}

func (p *Placeholder) fail(cause error) error {
	loadErr := p.strings.loadError(p.name, cause)
	p.result.CompareAndSwap(nil, &outcome{err: loadErr})
	return p.result.Load().err
}

func (p *Placeholder) link(segment string, child unit.Unit) {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()
	if _, ok := p.children[segment]; !ok {
		p.children[segment] = child
	}
}

func (p *Placeholder) child(segment string) (unit.Unit, bool) {
	p.linkMu.RLock()
	defer p.linkMu.RUnlock()
	child, ok := p.children[segment]
	return child, ok
}

func (p *Placeholder) declareCallable(attr string, fn unit.Func) {
	p.linkMu.Lock()
	defer p.linkMu.Unlock()
	if _, ok := p.callables[attr]; !ok {
		p.callables[attr] = fn
	}
}

func (p *Placeholder) lazyCallable(attr string) (unit.Func, bool) {
	p.linkMu.RLock()
	defer p.linkMu.RUnlock()
	fn, ok := p.callables[attr]
	return fn, ok
}

func (p *Placeholder) trace(op, attr string) {
	if e := log.Trace(); e.Enabled() {
		e.Str("unit", p.name).
			Str("op", op).
			Str("attr", attr).
			Str("state", p.State().String()).
			Bytes("stack", debug.Stack()).
			Msg("lazy: placeholder touched")
	}
}
