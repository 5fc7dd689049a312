// Package units wires the built-in units lazyctl can load.
package units

import (
	"github.com/danmuck/lazymod/internal/units/fs"
	"github.com/danmuck/lazymod/internal/units/kv"
	"github.com/danmuck/lazymod/pkg/host"
)

// Namespace is the package unit both built-ins live under.
const Namespace = "edge"

// Provide registers the namespace, edge.kv, and edge.fs rooted at fsRoot.
func Provide(c *host.Catalog, fsRoot string) error {
	if err := c.Provide(Namespace, host.Namespace(Namespace)); err != nil {
		return err
	}
	if err := c.Provide(kv.UnitName, kv.Factory()); err != nil {
		return err
	}
	return c.Provide(fs.UnitName, fs.Factory(fsRoot))
}
