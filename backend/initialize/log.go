package initialize

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"job-relay/backend/global"
)

func init() {
	SetupLogger(os.Stdout, "info", "console")
}

// SetupLogger replaces global.Logger. format is console or json.
func SetupLogger(out io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	global.Logger = logger
	return logger
}
