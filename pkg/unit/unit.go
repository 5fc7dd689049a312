// Package unit defines what a loadable unit of code looks like to the rest
// of lazymod.
//
// Ownership boundary:
// - unit naming rules
// - the attribute protocol every unit (real or placeholder) speaks
// - a concrete attribute-table unit for hosts to build on
package unit

import (
	"errors"
	"fmt"
)

var (
	ErrNoAttribute = errors.New("no such attribute")
	ErrReadOnly    = errors.New("unit is read-only")
	ErrNotCallable = errors.New("attribute is not callable")
	ErrInvalidAttr = errors.New("invalid attribute name")
)

// Unit is anything that behaves like a loaded unit of code.
type Unit interface {
	Name() string
	Attr(name string) (any, error)
}

// Mutable units accept attribute writes.
type Mutable interface {
	SetAttr(name string, value any) error
}

// Lister units can enumerate their attributes.
type Lister interface {
	Attrs() ([]string, error)
}

// Binder units can hang a child unit under one of their segments.
type Binder interface {
	BindSubunit(segment string, child Unit)
}

// Invoker units can be called directly.
type Invoker interface {
	Call(args ...any) (any, error)
}

// Func is the callable shape of a unit attribute.
type Func func(args ...any) (any, error)

// AsFunc converts an attribute value into a Func. Invokers convert to their
// Call method.
func AsFunc(v any) (Func, bool) {
	switch fn := v.(type) {
	case Func:
		return fn, fn != nil
	case func(args ...any) (any, error):
		return fn, fn != nil
	case Invoker:
		return fn.Call, true
	default:
		return nil, false
	}
}

// State is the lifecycle position of a registry entry.
type State int

const (
	Pending State = iota
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NoAttribute builds the error returned for a missing attribute.
func NoAttribute(unitName, attr string) error {
	return fmt.Errorf("%w: unit %q has no attribute %q", ErrNoAttribute, unitName, attr)
}
