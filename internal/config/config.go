package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/lazymod/internal/logging"
	"github.com/danmuck/lazymod/pkg/lazy"
	"github.com/danmuck/lazymod/pkg/unit"
)

var ErrInvalidManifest = errors.New("invalid manifest")

const (
	DefaultLogLevel    = "info"
	DefaultInspectID   = "lazyctl"
	DefaultInspectAddr = ":9200"
)

// Manifest lists the units a lazyctl process declares on startup.
type Manifest struct {
	Logging   LoggingConfig   `toml:"logging"`
	Inspect   InspectConfig   `toml:"inspect"`
	Modules   []ModuleEntry   `toml:"modules"`
	Callables []CallableEntry `toml:"callables"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type InspectConfig struct {
	Enabled     bool     `toml:"enabled"`
	ID          string   `toml:"id"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// ModuleEntry declares one lazy unit.
type ModuleEntry struct {
	Name        string `toml:"name"`
	Level       string `toml:"level"`
	InstallName string `toml:"install_name"`
	Message     string `toml:"message"`
}

// CallableEntry declares one lazy callable by its qualified name.
type CallableEntry struct {
	Name        string `toml:"name"`
	InstallName string `toml:"install_name"`
	Message     string `toml:"message"`
}

func DefaultManifest() Manifest {
	return Manifest{
		Logging: LoggingConfig{Level: DefaultLogLevel},
		Inspect: InspectConfig{ID: DefaultInspectID, Addr: DefaultInspectAddr},
	}
}

// LoadManifest decodes path over the defaults and validates the result.
func LoadManifest(path string) (Manifest, error) {
	cfg := DefaultManifest()

	var raw Manifest
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("load manifest (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Manifest{}, fmt.Errorf("%w: unknown key %s in %s", ErrInvalidManifest, undecoded[0], path)
	}

	if meta.IsDefined("logging", "level") {
		cfg.Logging.Level = strings.TrimSpace(raw.Logging.Level)
	}
	if meta.IsDefined("inspect", "enabled") {
		cfg.Inspect.Enabled = raw.Inspect.Enabled
	}
	if meta.IsDefined("inspect", "id") {
		cfg.Inspect.ID = strings.TrimSpace(raw.Inspect.ID)
	}
	if meta.IsDefined("inspect", "addr") {
		cfg.Inspect.Addr = strings.TrimSpace(raw.Inspect.Addr)
	}
	if meta.IsDefined("inspect", "cors_origins") {
		cfg.Inspect.CorsOrigins = raw.Inspect.CorsOrigins
	}
	for _, entry := range raw.Modules {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.Level = strings.TrimSpace(entry.Level)
		cfg.Modules = append(cfg.Modules, entry)
	}
	for _, entry := range raw.Callables {
		entry.Name = strings.TrimSpace(entry.Name)
		cfg.Callables = append(cfg.Callables, entry)
	}

	if err := ValidateManifest(cfg); err != nil {
		return Manifest{}, fmt.Errorf("load manifest (%s): %w", path, err)
	}
	return cfg, nil
}

func ValidateManifest(cfg Manifest) error {
	if _, ok := logging.ParseLevel(cfg.Logging.Level); !ok {
		return fmt.Errorf("%w: logging level %q", ErrInvalidManifest, cfg.Logging.Level)
	}
	if cfg.Inspect.Enabled {
		if strings.TrimSpace(cfg.Inspect.ID) == "" {
			return fmt.Errorf("%w: inspect id is required", ErrInvalidManifest)
		}
		if strings.TrimSpace(cfg.Inspect.Addr) == "" {
			return fmt.Errorf("%w: inspect addr is required", ErrInvalidManifest)
		}
	}

	seen := make(map[string]struct{}, len(cfg.Modules))
	for i, entry := range cfg.Modules {
		if err := ValidateModuleEntry(entry); err != nil {
			return fmt.Errorf("modules[%d] invalid: %w", i, err)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("%w: modules[%d] duplicates %s", ErrInvalidManifest, i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	for i, entry := range cfg.Callables {
		if err := ValidateCallableEntry(entry); err != nil {
			return fmt.Errorf("callables[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateModuleEntry(entry ModuleEntry) error {
	if err := unit.Validate(entry.Name); err != nil {
		return err
	}
	if _, err := lazy.ParseBindingMode(entry.Level); err != nil {
		return err
	}
	return nil
}

func ValidateCallableEntry(entry CallableEntry) error {
	segments, err := unit.Split(entry.Name)
	if err != nil {
		return err
	}
	if len(segments) < 2 {
		return fmt.Errorf("%w: callable %q names no unit", unit.ErrMalformedName, entry.Name)
	}
	return nil
}

// Options converts the entry into lazy request options.
func (e ModuleEntry) Options() []lazy.Option {
	mode, _ := lazy.ParseBindingMode(e.Level)
	return append(stringOptions(e.InstallName, e.Message), lazy.WithMode(mode))
}

func (e CallableEntry) Options() []lazy.Option {
	return stringOptions(e.InstallName, e.Message)
}

func stringOptions(installName, message string) []lazy.Option {
	var opts []lazy.Option
	if v := strings.TrimSpace(installName); v != "" {
		opts = append(opts, lazy.WithInstallName(v))
	}
	if v := strings.TrimSpace(message); v != "" {
		opts = append(opts, lazy.WithMessage(v))
	}
	return opts
}
