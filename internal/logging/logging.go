// Package logging builds the zerolog logger of the server and adapts it to the
// logger interfaces of the libraries the server is built on.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/indigo-web/preview/config"
	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to w in the configured format.
func New(cfg config.Log, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	switch cfg.Format {
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("log format: unknown %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// Gnet adapts the logger to gnet's logging.Logger.
type Gnet struct {
	Log zerolog.Logger
}

func (g Gnet) Debugf(format string, args ...any) { g.Log.Debug().Msgf(format, args...) }
func (g Gnet) Infof(format string, args ...any)  { g.Log.Info().Msgf(format, args...) }
func (g Gnet) Warnf(format string, args ...any)  { g.Log.Warn().Msgf(format, args...) }
func (g Gnet) Errorf(format string, args ...any) { g.Log.Error().Msgf(format, args...) }

// Fatalf doesn't exit, the engine is stopped by its owner instead.
func (g Gnet) Fatalf(format string, args ...any) { g.Log.Error().Msgf(format, args...) }

// Printf adapts the logger to the Printf-style interface ants expects. Every
// message is logged at the given level.
type Printf struct {
	Log   zerolog.Logger
	Level zerolog.Level
}

func (p Printf) Printf(format string, args ...any) {
	p.Log.WithLevel(p.Level).Msgf(format, args...)
}
