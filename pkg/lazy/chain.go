package lazy

import (
	"github.com/danmuck/lazymod/internal/observability"
	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/rs/zerolog/log"
)

// resolve walks the segments of name from the root down, reusing registry
// entries and installing placeholders for the rest.
func (i *Importer) resolve(name string, req request) (unit.Unit, error) {
	segments, err := unit.Split(name)
	if err != nil {
		return nil, err
	}
	if u, ok := i.loadedChain(segments, req.mode); ok {
		return u, nil
	}

	var base, parent unit.Unit
	for n := 1; n <= len(segments); n++ {
		current, err := i.ensure(unit.Join(segments, n), segments[n-1], parent, req)
		if err != nil {
			return nil, err
		}
		if base == nil {
			base = current
		}
		parent = current
	}
	if req.mode == Base {
		return base, nil
	}
	return parent, nil
}

// loadedChain returns the binding point when every segment is already
// loaded.
func (i *Importer) loadedChain(segments []string, mode BindingMode) (unit.Unit, bool) {
	var base, leaf unit.Unit
	for n := 1; n <= len(segments); n++ {
		u, ok := i.reg.Lookup(unit.Join(segments, n))
		if !ok || !registry.IsLoaded(u) {
			return nil, false
		}
		if base == nil {
			base = u
		}
		leaf = u
	}
	if mode == Base {
		return base, true
	}
	return leaf, true
}

// ensure returns the registry entry for name, creating a placeholder when
// there is none. Under a loaded parent the parent's own attribute is used
// if it already carries the unit.
func (i *Importer) ensure(name, segment string, parent unit.Unit, req request) (unit.Unit, error) {
	if existing, ok := i.reg.Lookup(name); ok {
		attach(parent, segment, existing)
		return existing, nil
	}
	if parent != nil && registry.IsLoaded(parent) {
		if v, err := parent.Attr(segment); err == nil {
			if u, ok := v.(unit.Unit); ok && u.Name() == name {
				return u, nil
			}
		}
	}

	var link *Placeholder
	if ph, ok := parent.(*Placeholder); ok {
		link = ph
	}
	ph := newPlaceholder(i, name, link, req)
	winner, installed, err := i.reg.Install(ph)
	if err != nil {
		return nil, err
	}
	if installed {
		observability.RecordPlaceholderInstalled(name)
		log.Debug().Str("unit", name).Str("mode", req.mode.String()).Msg("lazy: placeholder installed")
	}
	attach(parent, segment, winner)
	return winner, nil
}

// attach makes child reachable from parent by segment.
func attach(parent unit.Unit, segment string, child unit.Unit) {
	switch p := parent.(type) {
	case nil:
	case *Placeholder:
		p.link(segment, child)
	case unit.Binder:
		p.BindSubunit(segment, child)
	}
}
