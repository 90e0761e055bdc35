// Command preview serves a generated site from a local directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/indigo-web/preview"
	"github.com/indigo-web/preview/config"
	"github.com/indigo-web/preview/internal/logging"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "preview",
		Usage: "Serve a generated site on the local machine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Value:   "public",
				Usage:   "directory to serve",
				EnvVars: []string{"PREVIEW_DIR"},
			},
			&cli.UintFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8000,
				Usage:   "port to listen at on the loopback interface",
				EnvVars: []string{"PREVIEW_PORT"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a .toml or .yaml config file",
				EnvVars: []string{"PREVIEW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (trace, debug, info, warn, error, disabled)",
				EnvVars: []string{"PREVIEW_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log format (console, json)",
				EnvVars: []string{"PREVIEW_LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "engine",
				Usage:   "transport engine (goroutine, eventloop)",
				EnvVars: []string{"PREVIEW_ENGINE"},
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	if c.Uint("port") > math.MaxUint16 {
		return cli.Exit(fmt.Sprintf("port out of range: %d", c.Uint("port")), exitUsage)
	}

	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	alignProcs(cfg, log)

	app := preview.New(cfg, log)
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := c.String("dir")
	if err = app.Start(uint16(c.Uint("port")), dir); err != nil {
		return startFailure(err, dir)
	}

	fmt.Fprintln(c.App.Writer, "server listening on "+app.URL())

	<-ctx.Done()
	log.Info().Msg("interrupted")

	if err = app.Shutdown(context.Background()); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	return nil
}

func loadConfig(c *cli.Context) (cfg *config.Config, err error) {
	cfg = config.Default()
	if path := c.String("config"); len(path) > 0 {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	if c.IsSet("engine") {
		cfg.NET.Engine = c.String("engine")
	}

	return cfg, cfg.Validate()
}

// alignProcs fits GOMAXPROCS into the CPU quota before the event loops are sized
// after it.
func alignProcs(cfg *config.Config, log zerolog.Logger) {
	_, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug().Msgf(format, args...)
	}))
	if err != nil {
		log.Warn().Err(err).Msg("cannot set GOMAXPROCS")
	}

	cfg.NET.EventLoops = min(cfg.NET.EventLoops, runtime.GOMAXPROCS(0))
}

func startFailure(err error, dir string) error {
	var bindErr *preview.BindError

	switch {
	case errors.Is(err, preview.ErrOutputDirNotFound):
		return cli.Exit("output directory not found: "+dir, exitFailure)
	case errors.As(err, &bindErr) && bindErr.InUse():
		return cli.Exit("another preview session is likely already running on this port", exitFailure)
	default:
		return cli.Exit(err.Error(), exitFailure)
	}
}
