// Package lazy defers loading a unit until something from it is used.
//
// Module hands back a placeholder that is installed into the unit registry
// under the requested name. The placeholder speaks the same attribute
// protocol as a real unit; the first attribute access loads the real unit
// through the host and the placeholder turns into it in place. Anyone who
// already holds the placeholder, including code that later asks the
// registry or Import for the same name, sees the loaded unit from then on.
//
// Go cannot rewrite an arbitrary value in place, so the placeholder is a
// cell: every access through a *Placeholder reads its published outcome and
// forwards to the real unit. That indirection is permanent.
//
// Load failures are not reported when a unit is declared. They are recorded
// the first time the unit is used, wrapped in a *LoadError, and returned
// unchanged on every later access without asking the host again. Malformed
// names are rejected immediately.
//
// Dotted names resolve one segment at a time. Navigating from a base
// placeholder to a child placeholder does not load anything; touching a real
// attribute on a child loads its ancestors first, root to leaf.
//
// Callable returns a function that loads its owning unit on first call and
// forwards the arguments. It only forwards calls; it is not a stand-in for
// the target's own identity.
//
// A unit factory may load descendants of the unit it is building; the
// ancestor being built is passed over while they load. Touching the unit
// itself from its factory returns ErrReentrantLoad. Handing that touch to
// another goroutine and waiting for it still deadlocks.
package lazy
