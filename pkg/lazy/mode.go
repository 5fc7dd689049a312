package lazy

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMode = errors.New("lazy: binding mode must be one of (base, leaf)")

// BindingMode selects which segment of a dotted name a request returns.
type BindingMode int

const (
	// Leaf returns the deepest segment: "a.b.c" yields c.
	Leaf BindingMode = iota
	// Base returns the top-level segment: "a.b.c" yields a, with b and c
	// reachable through Attr.
	Base
)

func (m BindingMode) String() string {
	switch m {
	case Leaf:
		return "leaf"
	case Base:
		return "base"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseBindingMode accepts "leaf", "base", or "" (leaf).
func ParseBindingMode(raw string) (BindingMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "leaf":
		return Leaf, nil
	case "base":
		return Base, nil
	default:
		return Leaf, fmt.Errorf("%w: got %q", ErrInvalidMode, raw)
	}
}
