package lazy

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/lazymod/internal/testutil/testlog"
	"github.com/danmuck/lazymod/pkg/host"
	"github.com/danmuck/lazymod/pkg/unit"
	"pgregory.net/rapid"
)

func TestMalformedNamesFailImmediately(t *testing.T) {
	w := newTestWorld(t)
	for _, name := range []string{"", ".", "a..b", ".a", "a.", "1a", "a-b", "a.b c", "ü"} {
		if _, err := w.imp.Module(name); !errors.Is(err, unit.ErrMalformedName) {
			t.Fatalf("Module(%q) err = %v", name, err)
		}
		if _, err := w.imp.Callable(name); !errors.Is(err, unit.ErrMalformedName) {
			t.Fatalf("Callable(%q) err = %v", name, err)
		}
		if _, err := w.imp.Import(name); !errors.Is(err, unit.ErrMalformedName) {
			t.Fatalf("Import(%q) err = %v", name, err)
		}
	}
	if _, err := w.imp.Callable("fn"); !errors.Is(err, unit.ErrMalformedName) {
		t.Fatalf("a callable needs a unit, got %v", err)
	}
	if w.reg.Len() != 0 {
		t.Fatalf("malformed requests created %d entries", w.reg.Len())
	}
}

func TestParentFailureFailsChildWithoutLoadingIt(t *testing.T) {
	w := newTestWorld(t)
	w.provide("a.b", map[string]any{"x": 1})

	ref, err := w.imp.Module("a.b")
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	_, childErr := ref.Attr("x")
	parent, _ := w.reg.Lookup("a")
	parentErr := parent.(*Placeholder).Err()
	if parentErr == nil {
		t.Fatalf("parent should have failed")
	}
	if !errors.Is(childErr, parentErr) || !errors.Is(childErr, host.ErrNotFound) {
		t.Fatalf("child error %v does not wrap parent error %v", childErr, parentErr)
	}
	var loadErr *LoadError
	if !errors.As(childErr, &loadErr) || loadErr.Name != "a.b" {
		t.Fatalf("child error = %#v", loadErr)
	}
	if got := w.count("a.b"); got != 0 {
		t.Fatalf("child was loaded after its parent failed")
	}
}

func TestRealUnitMidChain(t *testing.T) {
	w := newTestWorld(t)
	w.provide("a", map[string]any{"root": true})
	w.provide("a.b", map[string]any{"x": "b"})

	real, err := w.imp.Import("a")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	ref, err := w.imp.Module("a.b")
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	ph, ok := ref.(*Placeholder)
	if !ok {
		t.Fatalf("expected placeholder below the real unit, got %T", ref)
	}
	if ph.parent != nil {
		t.Fatalf("placeholder below a real unit must not link a parent")
	}
	via, err := real.Attr("b")
	if err != nil || via != ref {
		t.Fatalf("real parent does not expose the placeholder: %v,%v", via, err)
	}
	if x, err := ref.Attr("x"); err != nil || x != "b" {
		t.Fatalf("attr = %v,%v", x, err)
	}
	if got := strings.Join(w.loaded(), ","); got != "a,a.b" {
		t.Fatalf("load order = %s", got)
	}
	base, err := w.imp.Module("a.b", WithMode(Base))
	if err != nil || base != real {
		t.Fatalf("base binding = %v,%v", base, err)
	}
}

func TestPendingAttrFindsUnitRegisteredElsewhere(t *testing.T) {
	w := newTestWorld(t)
	w.provide("a", nil)

	base, err := w.imp.Module("a", WithMode(Base))
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	// unrelated code registers a.c while a is still pending
	real := unit.NewModule("a.c", nil)
	if _, installed, err := w.reg.Install(real); err != nil || !installed {
		t.Fatalf("install: %v", err)
	}
	v, err := base.Attr("c")
	if err != nil || v != unit.Unit(real) {
		t.Fatalf("attr c = %v,%v", v, err)
	}
	if w.count("a") != 0 {
		t.Fatalf("navigation loaded a")
	}
}

func TestImportSharesPlaceholderIdentity(t *testing.T) {
	w := newTestWorld(t)
	w.provide("x", map[string]any{"v": 1})

	ref, err := w.imp.Module("x")
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	got, err := w.imp.Import("x")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got != ref {
		t.Fatalf("import returned a different identity")
	}
	if ref.(*Placeholder).State() != unit.Loaded {
		t.Fatalf("import did not force the placeholder")
	}
	if w.count("x") != 1 {
		t.Fatalf("loads = %d", w.count("x"))
	}
}

func TestImportDeduplicatesConcurrentLoads(t *testing.T) {
	w := newTestWorld(t)
	release := make(chan struct{})
	w.catalog.MustProvide("eager", func() (unit.Unit, error) {
		<-release
		return unit.NewModule("eager", nil), nil
	})

	var wg sync.WaitGroup
	units := make([]unit.Unit, 8)
	for n := range units {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			units[n], _ = w.imp.Import("eager")
		}(n)
	}
	close(release)
	wg.Wait()

	for n, u := range units {
		if u == nil || u != units[0] {
			t.Fatalf("import %d returned %v", n, u)
		}
	}
	if got := w.count("eager"); got != 1 {
		t.Fatalf("loads = %d, want 1", got)
	}
}

func TestImportFailureIsNotCached(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.imp.Import("late"); !errors.Is(err, host.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	w.provide("late", nil)
	if _, err := w.imp.Import("late"); err != nil {
		t.Fatalf("second import: %v", err)
	}
}

func TestImportRacingTouchedPlaceholderLoadsOnce(t *testing.T) {
	w := newTestWorld(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	w.catalog.MustProvide("x", func() (unit.Unit, error) {
		once.Do(func() { close(entered) })
		<-release
		return unit.NewModule("x", map[string]any{"v": 1}), nil
	})

	imported := make(chan error, 1)
	go func() {
		_, err := w.imp.Import("x")
		imported <- err
	}()
	<-entered

	touched := make(chan any, 1)
	go func() {
		ref, err := w.imp.Module("x")
		if err != nil {
			touched <- err
			return
		}
		v, err := ref.Attr("v")
		if err != nil {
			touched <- err
			return
		}
		touched <- v
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-imported; err != nil {
		t.Fatalf("import: %v", err)
	}
	if v := <-touched; v != 1 {
		t.Fatalf("touch = %v", v)
	}
	if got := w.count("x"); got != 1 {
		t.Fatalf("host loads of x = %d, want 1", got)
	}
}

func TestFactoryMayLoadDescendants(t *testing.T) {
	w := newTestWorld(t)
	w.provide("pkg.sub", map[string]any{"v": 2})
	w.catalog.MustProvide("pkg", func() (unit.Unit, error) {
		sub, err := w.imp.Import("pkg.sub")
		if err != nil {
			return nil, err
		}
		return unit.NewModule("pkg", map[string]any{"inner": sub}), nil
	})

	ref, err := w.imp.Module("pkg.sub", WithMode(Base))
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	done := make(chan error, 1)
	var sub any
	go func() {
		var err error
		sub, err = ref.Attr("inner")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("attr: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("factory importing its descendant hung")
	}

	child, ok := w.reg.Lookup("pkg.sub")
	if !ok || sub != child {
		t.Fatalf("factory saw %v, registry holds %v", sub, child)
	}
	if v, err := child.Attr("v"); err != nil || v != 2 {
		t.Fatalf("child attr = %v,%v", v, err)
	}
	if got := strings.Join(w.loaded(), ","); got != "pkg,pkg.sub" {
		t.Fatalf("load order = %s", got)
	}
}

func TestFactoryTouchingItsOwnUnitFails(t *testing.T) {
	w := newTestWorld(t)
	var touchErr, importErr error
	w.catalog.MustProvide("self", func() (unit.Unit, error) {
		self, _ := w.reg.Lookup("self")
		_, touchErr = self.Attr("anything")
		_, importErr = w.imp.Import("self")
		return unit.NewModule("self", nil), nil
	})

	ref, _ := w.imp.Module("self")
	if _, err := ref.Attr("anything"); !errors.Is(err, unit.ErrNoAttribute) {
		t.Fatalf("expected missing attribute after load, got %v", err)
	}
	if !errors.Is(touchErr, ErrReentrantLoad) || !errors.Is(importErr, ErrReentrantLoad) {
		t.Fatalf("re-entry errors = %v / %v", touchErr, importErr)
	}
	if ref.(*Placeholder).State() != unit.Loaded || w.count("self") != 1 {
		t.Fatalf("state=%s loads=%d", ref.(*Placeholder).State(), w.count("self"))
	}
}

func TestSetAttrLoadsAndWritesThrough(t *testing.T) {
	w := newTestWorld(t)
	w.provide("m", nil)
	w.catalog.MustProvide("frozen", func() (unit.Unit, error) {
		return unit.NewModule("frozen", nil).Freeze(), nil
	})

	ref, _ := w.imp.Module("m")
	if err := ref.(unit.Mutable).SetAttr("k", "v"); err != nil {
		t.Fatalf("setattr: %v", err)
	}
	if v, err := ref.Attr("k"); err != nil || v != "v" {
		t.Fatalf("attr = %v,%v", v, err)
	}
	frozen, _ := w.imp.Module("frozen")
	if err := frozen.(unit.Mutable).SetAttr("k", "v"); !errors.Is(err, unit.ErrReadOnly) {
		t.Fatalf("expected read-only, got %v", err)
	}
}

func TestParseBindingMode(t *testing.T) {
	cases := map[string]BindingMode{"": Leaf, "leaf": Leaf, " BASE ": Base}
	for raw, want := range cases {
		got, err := ParseBindingMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseBindingMode(%q) = %v,%v", raw, got, err)
		}
	}
	if _, err := ParseBindingMode("middle"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected invalid mode, got %v", err)
	}
}

func segmentsGen() *rapid.Generator[[]string] {
	return rapid.SliceOfN(rapid.StringMatching(`[a-z_][a-z0-9_]{0,5}`), 1, 4)
}

func TestPropertyTouchIsIdempotent(t *testing.T) {
	testlog.Start(t)
	rapid.Check(t, func(r *rapid.T) {
		segments := segmentsGen().Draw(r, "segments")
		name := strings.Join(segments, ".")
		w := newWorld()
		for n := 1; n <= len(segments); n++ {
			w.provide(unit.Join(segments, n), map[string]any{"v": n})
		}

		ref, err := w.imp.Module(name)
		if err != nil {
			r.Fatalf("module(%q): %v", name, err)
		}
		if _, err := ref.Attr("v"); err != nil {
			r.Fatalf("first touch: %v", err)
		}
		if _, err := ref.Attr("v"); err != nil {
			r.Fatalf("second touch: %v", err)
		}
		if u, _ := w.reg.Lookup(name); u != ref {
			r.Fatalf("identity changed for %q", name)
		}
		loads := w.loaded()
		if len(loads) != len(segments) {
			r.Fatalf("loads = %v for %q", loads, name)
		}
		for n, got := range loads {
			if want := unit.Join(segments, n+1); got != want {
				r.Fatalf("load %d = %s, want %s", n, got, want)
			}
		}
	})
}

func TestPropertyLoadedChainIsReturnedAsIs(t *testing.T) {
	testlog.Start(t)
	rapid.Check(t, func(r *rapid.T) {
		segments := segmentsGen().Draw(r, "segments")
		base := rapid.Bool().Draw(r, "base")
		name := strings.Join(segments, ".")
		w := newWorld()
		for n := 1; n <= len(segments); n++ {
			w.provide(unit.Join(segments, n), nil)
		}
		leaf, err := w.imp.Import(name)
		if err != nil {
			r.Fatalf("import: %v", err)
		}
		size := w.reg.Len()

		mode, want := Leaf, leaf
		if base {
			mode = Base
			want, _ = w.reg.Lookup(segments[0])
		}
		got, err := w.imp.Module(name, WithMode(mode))
		if err != nil || got != want {
			r.Fatalf("module(%q, %s) = %v,%v", name, mode, got, err)
		}
		if _, isPlaceholder := got.(*Placeholder); isPlaceholder || w.reg.Len() != size {
			r.Fatalf("a placeholder was created for a loaded chain")
		}
	})
}

func TestPropertyConcurrentFanOutLoadsOnce(t *testing.T) {
	testlog.Start(t)
	rapid.Check(t, func(r *rapid.T) {
		callers := rapid.IntRange(1, 24).Draw(r, "callers")
		fail := rapid.Bool().Draw(r, "fail")
		w := newWorld()
		if !fail {
			w.provide("fan", map[string]any{"v": 1})
		}
		ref, err := w.imp.Module("fan")
		if err != nil {
			r.Fatalf("module: %v", err)
		}

		var wg sync.WaitGroup
		errs := make([]error, callers)
		for n := range callers {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, errs[n] = ref.Attr("v")
			}(n)
		}
		wg.Wait()

		if got := w.count("fan"); got != 1 {
			r.Fatalf("loads = %d", got)
		}
		for n := range callers {
			if errs[n] != errs[0] || (errs[n] != nil) != fail {
				r.Fatalf("caller %d saw %v (fail=%v)", n, errs[n], fail)
			}
		}
	})
}
