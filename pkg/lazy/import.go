package lazy

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/danmuck/lazymod/internal/observability"
	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/rs/zerolog/log"
)

// Import loads name and its ancestors now, root to leaf. A placeholder that
// is already registered for a segment is forced and returned, so eager and
// lazy consumers share one identity. Failures of units that were never
// declared lazily are returned as-is and not cached.
func (i *Importer) Import(name string) (unit.Unit, error) {
	segments, err := unit.Split(name)
	if err != nil {
		return nil, err
	}
	var parent unit.Unit
	for n := 1; n <= len(segments); n++ {
		current, err := i.importOne(unit.Join(segments, n), n < len(segments))
		if err != nil {
			return nil, err
		}
		attach(parent, segments[n-1], current)
		parent = current
	}
	return parent, nil
}

// importOne forces a single name. An ancestor whose factory is running on
// this goroutine is passed over as it stands.
func (i *Importer) importOne(name string, ancestor bool) (unit.Unit, error) {
	if i.reentrant(name) {
		if ancestor {
			u, _ := i.reg.Lookup(name)
			return u, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrReentrantLoad, name)
	}
	if u, ok := i.reg.Lookup(name); ok {
		return forced(u)
	}
	real, err := i.load(name)
	if err != nil {
		return nil, fmt.Errorf("lazy: import %s: %w", name, err)
	}
	if u, ok := i.reg.Lookup(name); ok {
		return forced(u)
	}
	return real, nil
}

// load is the only path to the host loader. Concurrent callers for one name
// share a single load, and the result is in the registry before any of them
// return: installed as the entry, or published into the placeholder that
// holds the name.
func (i *Importer) load(name string) (unit.Unit, error) {
	v, err, _ := i.flight.Do(name, func() (any, error) {
		if u, ok := i.reg.Lookup(name); ok && registry.IsLoaded(u) {
			return realOf(u), nil
		}
		defer i.enter(name)()

		start := time.Now()
		real, err := i.loader.Load(name)
		observability.RecordUnitLoad(name, err == nil, time.Since(start))
		if err != nil {
			return nil, err
		}
		winner, installed, err := i.reg.Install(real)
		if err != nil {
			return nil, err
		}
		if !installed {
			cell, ok := winner.(registry.Cell)
			if !ok {
				return winner, nil
			}
			if err := i.reg.MutateInPlace(cell, real); err != nil {
				return nil, err
			}
		}
		log.Debug().Str("unit", name).Bool("installed", installed).Dur("took", time.Since(start)).Msg("lazy: host load finished")
		return real, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(unit.Unit), nil
}

// enter records that the factory for name runs on the calling goroutine.
// The returned func clears the record.
func (i *Importer) enter(name string) func() {
	gid := goroutineID()
	i.loadingMu.Lock()
	i.loading[name] = gid
	i.loadingMu.Unlock()
	return func() {
		i.loadingMu.Lock()
		delete(i.loading, name)
		i.loadingMu.Unlock()
	}
}

// reentrant reports whether the factory for name is running on the calling
// goroutine.
func (i *Importer) reentrant(name string) bool {
	i.loadingMu.Lock()
	gid, ok := i.loading[name]
	i.loadingMu.Unlock()
	return ok && gid == goroutineID()
}

func forced(u unit.Unit) (unit.Unit, error) {
	if ph, ok := u.(*Placeholder); ok {
		if err := ph.Load(); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func realOf(u unit.Unit) unit.Unit {
	if ph, ok := u.(*Placeholder); ok {
		if real, ok := ph.Real(); ok {
			return real
		}
	}
	return u
}

// goroutineID parses the id from the "goroutine N [" stack header.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if n := bytes.IndexByte(b, ' '); n >= 0 {
		b = b[:n]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
