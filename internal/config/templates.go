package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "lazyctl":
		return lazyctlTemplate, nil
	case "minimal":
		return minimalTemplate, nil
	default:
		return "", fmt.Errorf("unknown manifest kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("manifest already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const lazyctlTemplate = `[logging]
level = "info"

[inspect]
enabled = true
id = "lazyctl"
addr = ":9200"
cors_origins = ["http://localhost:3000"]

[[modules]]
name = "edge.kv"
level = "leaf"
install_name = "edge-kv"

[[modules]]
name = "edge.fs"
level = "base"

[[modules]]
name = "edge.cache"
install_name = "edge-cache"
message = "{caller} needs {unit}; build lazyctl with {install_name}"

[[callables]]
name = "edge.kv.get"

[[callables]]
name = "edge.fs.read"
`

const minimalTemplate = `[[modules]]
name = "edge.kv"
`
