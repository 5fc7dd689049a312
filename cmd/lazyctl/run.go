package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/danmuck/lazymod/internal/config"
	"github.com/danmuck/lazymod/internal/inspect"
	"github.com/danmuck/lazymod/internal/logging"
	"github.com/danmuck/lazymod/internal/observability"
	"github.com/danmuck/lazymod/internal/units"
	"github.com/danmuck/lazymod/pkg/host"
	"github.com/danmuck/lazymod/pkg/lazy"
	"github.com/danmuck/lazymod/pkg/registry"
	"github.com/rs/zerolog/log"
)

const defaultConfigPath = "cmd/lazyctl/config.toml"

type options struct {
	configPath string
	fsRoot     string
	touch      []string
	serve      bool
	jsonOut    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("lazyctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "manifest path")
	fsRoot := fs.String("fs-root", "", "root directory for edge.fs (default local/dir)")
	touch := fs.String("touch", "", "comma-separated units to load after declaring")
	serve := fs.Bool("serve", false, "serve the inspection API even if the manifest disables it")
	jsonOut := fs.Bool("json", false, "print the registry snapshot as JSON")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		configPath: *configPath,
		fsRoot:     *fsRoot,
		serve:      *serve,
		jsonOut:    *jsonOut,
	}
	for _, name := range strings.Split(*touch, ",") {
		if name = strings.TrimSpace(name); name != "" {
			opts.touch = append(opts.touch, name)
		}
	}
	return opts, nil
}

// app is one lazyctl process: a catalog of built-ins and the importer that
// declares the manifest against it.
type app struct {
	manifest config.Manifest
	importer *lazy.Importer
}

func newApp(manifest config.Manifest, fsRoot string) (*app, error) {
	catalog := host.NewCatalog()
	if err := units.Provide(catalog, fsRoot); err != nil {
		return nil, fmt.Errorf("provide built-in units: %w", err)
	}
	return &app{
		manifest: manifest,
		importer: lazy.New(registry.New(), catalog),
	}, nil
}

// declare registers every manifest entry lazily. Only malformed names fail.
func (a *app) declare() error {
	for _, entry := range a.manifest.Modules {
		if _, err := a.importer.Module(entry.Name, entry.Options()...); err != nil {
			return fmt.Errorf("declare module %s: %w", entry.Name, err)
		}
		log.Debug().Str("unit", entry.Name).Str("level", entry.Level).Msg("module declared")
	}
	for _, entry := range a.manifest.Callables {
		if _, err := a.importer.Callable(entry.Name, entry.Options()...); err != nil {
			return fmt.Errorf("declare callable %s: %w", entry.Name, err)
		}
		log.Debug().Str("callable", entry.Name).Msg("callable declared")
	}
	log.Info().
		Int("modules", len(a.manifest.Modules)).
		Int("callables", len(a.manifest.Callables)).
		Int("entries", a.importer.Registry().Len()).
		Msg("manifest declared")
	return nil
}

// touch forces each named unit and joins the failures.
func (a *app) touch(names []string) error {
	var errs []error
	for _, name := range names {
		if _, err := a.importer.Import(name); err != nil {
			log.Warn().Str("unit", name).Err(err).Msg("touch failed")
			errs = append(errs, err)
			continue
		}
		log.Info().Str("unit", name).Msg("touched")
	}
	return errors.Join(errs...)
}

func (a *app) printSnapshot(w io.Writer, asJSON bool) error {
	entries := a.importer.Registry().Snapshot()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tKIND")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.State, e.Kind)
	}
	return tw.Flush()
}

func applyLogLevel(raw string) {
	if os.Getenv(logging.EnvLogLevel) != "" {
		return
	}
	lvl, ok := logging.ParseLevel(raw)
	if !ok {
		return
	}
	cfg := logging.Current()
	cfg.Level = lvl
	logging.Apply(cfg)
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logging.ConfigureRuntime()

	manifest, err := config.LoadManifest(opts.configPath)
	if err != nil {
		return err
	}
	applyLogLevel(manifest.Logging.Level)
	observability.InitLogger("lazyctl")
	log.Info().Str("path", opts.configPath).Msg("loaded manifest")

	a, err := newApp(manifest, opts.fsRoot)
	if err != nil {
		return err
	}
	if err := a.declare(); err != nil {
		return err
	}
	touchErr := a.touch(opts.touch)
	if err := a.printSnapshot(stdout, opts.jsonOut); err != nil {
		return err
	}

	if !opts.serve && !manifest.Inspect.Enabled {
		return touchErr
	}
	server := inspect.New(manifest.Inspect.ID, manifest.Inspect.Addr, manifest.Inspect.CorsOrigins, a.importer)
	log.Info().Str("id", server.ID).Str("addr", server.Addr).Msg("inspect server started")
	return server.Serve()
}
