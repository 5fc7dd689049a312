package main

import (
	"flag"

	"github.com/danmuck/lazymod/internal/config"
	"github.com/danmuck/lazymod/internal/logging"
	"github.com/danmuck/lazymod/internal/observability"
	"github.com/rs/zerolog/log"
)

const defaultPath = "cmd/lazyctl/config.toml"

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("configgen")

	kind := flag.String("kind", "lazyctl", "manifest kind: lazyctl|minimal")
	output := flag.String("output", defaultPath, "output path for the manifest template")
	validate := flag.Bool("validate", false, "validate an existing manifest")
	input := flag.String("input", defaultPath, "manifest path for validation")
	force := flag.Bool("force", false, "overwrite an existing manifest")
	flag.Parse()

	if *validate {
		cfg, err := config.LoadManifest(*input)
		if err != nil {
			log.Fatal().Err(err).Str("path", *input).Msg("manifest invalid")
		}
		log.Info().
			Str("path", *input).
			Int("modules", len(cfg.Modules)).
			Int("callables", len(cfg.Callables)).
			Msg("manifest valid")
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("write template failed")
	}
	log.Info().Str("kind", *kind).Str("path", *output).Msg("wrote manifest template")
}
