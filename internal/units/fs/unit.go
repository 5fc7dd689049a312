package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danmuck/lazymod/pkg/host"
	"github.com/danmuck/lazymod/pkg/unit"
	"github.com/rs/zerolog/log"
)

// UnitName is the registry name of the filesystem unit.
const UnitName = "edge.fs"

var (
	ErrMissingPath  = errors.New("edge.fs: missing path")
	ErrAbsolutePath = errors.New("edge.fs: absolute path not allowed")
	ErrEscapesRoot  = errors.New("edge.fs: path escapes root")
)

// Dir is a file store scoped to one root directory.
type Dir struct {
	root string
}

// NewDir roots a store at root, or local/dir under the working directory.
func NewDir(root string) Dir {
	resolved := strings.TrimSpace(root)
	if resolved == "" {
		resolved = filepath.Join("local", "dir")
	}
	return Dir{root: resolved}
}

func (d Dir) Root() string {
	return d.root
}

func (d Dir) Write(rel string, content []byte) error {
	p, err := d.resolvePath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, content, 0o644)
}

func (d Dir) Read(rel string) ([]byte, error) {
	p, err := d.resolvePath(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Delete removes rel; a missing file is not an error.
func (d Dir) Delete(rel string) error {
	p, err := d.resolvePath(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns slash-separated paths under the root with prefix.
func (d Dir) List(prefix string) ([]string, error) {
	root, err := filepath.Abs(d.root)
	if err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)
	keys := make([]string, 0)
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil || entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	sort.Strings(keys)
	return keys, nil
}

func (d Dir) resolvePath(pathArg string) (string, error) {
	rel := strings.TrimSpace(pathArg)
	if rel == "" {
		return "", ErrMissingPath
	}
	if filepath.IsAbs(rel) {
		return "", ErrAbsolutePath
	}
	root, err := filepath.Abs(d.root)
	if err != nil {
		return "", err
	}
	p := filepath.Clean(filepath.Join(root, rel))
	if !isWithin(p, root) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, rel)
	}
	return p, nil
}

func isWithin(path string, root string) bool {
	p := filepath.Clean(path)
	r := filepath.Clean(root)
	if p == r {
		return true
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}

// NewUnit exposes d as a read-only unit: write(path, content), read(path),
// delete(path), list([prefix]), and the root attribute.
func NewUnit(d Dir) *unit.Module {
	return unit.NewModule(UnitName, map[string]any{
		"root": d.Root(),
		"write": unit.Func(func(args ...any) (any, error) {
			rel, err := unit.StringArg(args, 0, "path")
			if err != nil {
				return nil, err
			}
			content, err := unit.StringArg(args, 1, "content")
			if err != nil {
				return nil, err
			}
			return nil, d.Write(rel, []byte(content))
		}),
		"read": unit.Func(func(args ...any) (any, error) {
			rel, err := unit.StringArg(args, 0, "path")
			if err != nil {
				return nil, err
			}
			out, err := d.Read(rel)
			if err != nil {
				return nil, err
			}
			return string(out), nil
		}),
		"delete": unit.Func(func(args ...any) (any, error) {
			rel, err := unit.StringArg(args, 0, "path")
			if err != nil {
				return nil, err
			}
			return nil, d.Delete(rel)
		}),
		"list": unit.Func(func(args ...any) (any, error) {
			prefix, err := unit.OptionalStringArg(args, 0, "prefix")
			if err != nil {
				return nil, err
			}
			return d.List(prefix)
		}),
	}).Freeze()
}

// Factory checks that root is usable before handing out the unit, so a bad
// root surfaces as a load failure on first use.
func Factory(root string) host.Factory {
	return func() (unit.Unit, error) {
		d := NewDir(root)
		if err := os.MkdirAll(d.Root(), 0o755); err != nil {
			return nil, fmt.Errorf("prepare root %s: %w", d.Root(), err)
		}
		log.Debug().Str("unit", UnitName).Str("root", d.Root()).Msg("fs: root ready")
		return NewUnit(d), nil
	}
}
