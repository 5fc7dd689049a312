package observability

import (
	"github.com/danmuck/lazymod/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the configured logger with app and installs it globally.
func InitLogger(app string) zerolog.Logger {
	logger := logging.NewLogger(logging.Current()).With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
