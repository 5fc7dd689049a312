package lazy

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/danmuck/lazymod/internal/observability"
	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/danmuck/lazymod/pkg/unit"
)

// Wrapper loads its owning unit on first call and forwards to the function
// found at path inside it. It only forwards calls.
type Wrapper struct {
	owner    unit.Unit
	unitName string
	path     []string
	target   atomic.Pointer[unit.Func]
}

// Callable returns a function for qualified, a unit name followed by one
// attribute segment. When the owning unit is already loaded the real
// function is returned directly.
func (i *Importer) Callable(qualified string, opts ...Option) (unit.Func, error) {
	segments, err := unit.Split(qualified)
	if err != nil {
		return nil, err
	}
	if len(segments) < 2 {
		return nil, fmt.Errorf("%w: %q names no unit", unit.ErrMalformedName, qualified)
	}
	unitName := unit.Parent(qualified)
	return i.callable(unitName, unit.Leaf(qualified), newRequest(unitName, opts))
}

// Callables returns one function per attribute name of unitName, in order.
func (i *Importer) Callables(unitName string, names ...string) ([]unit.Func, error) {
	if err := unit.Validate(unitName); err != nil {
		return nil, err
	}
	req := newRequest(unitName, nil)
	out := make([]unit.Func, 0, len(names))
	for _, name := range names {
		if err := unit.Validate(name); err != nil {
			return nil, err
		}
		if strings.Contains(name, ".") {
			return nil, fmt.Errorf("%w: %q is not a single attribute", unit.ErrMalformedName, name)
		}
		fn, err := i.callable(unitName, name, req)
		if err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, nil
}

func (i *Importer) callable(unitName, attr string, req request) (unit.Func, error) {
	req.mode = Leaf
	owner, err := i.resolve(unitName, req)
	if err != nil {
		return nil, err
	}
	c := &Wrapper{owner: owner, unitName: unitName, path: []string{attr}}
	if registry.IsLoaded(owner) {
		return c.resolve()
	}
	if ph, ok := owner.(*Placeholder); ok {
		ph.declareCallable(attr, c.Call)
	}
	return c.Call, nil
}

// NewCallable returns a wrapper for the attribute at path inside unitName.
// An empty path calls the unit itself, which must be a unit.Invoker.
func (i *Importer) NewCallable(unitName string, path ...string) (*Wrapper, error) {
	for _, segment := range path {
		if err := unit.Validate(segment); err != nil {
			return nil, err
		}
		if strings.Contains(segment, ".") {
			return nil, fmt.Errorf("%w: %q is not a single attribute", unit.ErrMalformedName, segment)
		}
	}
	owner, err := i.resolve(unitName, newRequest(unitName, nil))
	if err != nil {
		return nil, err
	}
	return &Wrapper{
		owner:    owner,
		unitName: unitName,
		path:     append([]string(nil), path...),
	}, nil
}

// UnitName is the unit the callable loads.
func (c *Wrapper) UnitName() string {
	return c.unitName
}

// Path is the attribute path inside the unit.
func (c *Wrapper) Path() []string {
	return append([]string(nil), c.path...)
}

// State mirrors the owning unit.
func (c *Wrapper) State() unit.State {
	if cell, ok := c.owner.(registry.Cell); ok {
		return cell.State()
	}
	return unit.Loaded
}

// Call loads the owning unit, resolves the target, and invokes it. The
// target's result and error are returned unchanged.
func (c *Wrapper) Call(args ...any) (any, error) {
	fn, err := c.resolve()
	if err != nil {
		observability.RecordCallableCall(c.unitName, c.label(), false)
		return nil, err
	}
	out, err := fn(args...)
	observability.RecordCallableCall(c.unitName, c.label(), err == nil)
	return out, err
}

func (c *Wrapper) resolve() (unit.Func, error) {
	if fn := c.target.Load(); fn != nil {
		return *fn, nil
	}
	if ph, ok := c.owner.(*Placeholder); ok {
		if err := ph.Load(); err != nil {
			return nil, err
		}
	}

	var current any = c.owner
	if ph, ok := current.(*Placeholder); ok {
		current, _ = ph.Real()
	}
	for _, segment := range c.path {
		u, ok := current.(unit.Unit)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T, not a unit", unit.ErrNoAttribute, c.qualified(), current)
		}
		v, err := u.Attr(segment)
		if err != nil {
			return nil, err
		}
		current = v
	}
	fn, ok := unit.AsFunc(current)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", unit.ErrNotCallable, c.qualified(), current)
	}
	c.target.CompareAndSwap(nil, &fn)
	return fn, nil
}

func (c *Wrapper) label() string {
	if len(c.path) == 0 {
		return c.unitName
	}
	return strings.Join(c.path, ".")
}

func (c *Wrapper) qualified() string {
	if len(c.path) == 0 {
		return c.unitName
	}
	return c.unitName + "." + strings.Join(c.path, ".")
}
