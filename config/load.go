package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("unknown config file format")

// Load decodes the file over the defaults and validates the result. The format is
// chosen by the extension: .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}

		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown key %q", undecoded[0].String())
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err = decoder.Decode(cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("config: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: %w: %q", ErrUnknownFormat, ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every setting which cannot be served with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, value int64) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, value))
		}
	}

	switch c.NET.Engine {
	case EngineEventLoop, EngineGoroutine:
	default:
		errs = append(errs, fmt.Errorf("net.engine: unknown engine %q", c.NET.Engine))
	}

	positive("net.event_loops", int64(c.NET.EventLoops))
	positive("net.read_buffer_size", int64(c.NET.ReadBufferSize))
	positive("net.max_pipeline_buffer", int64(c.NET.MaxPipelineBuffer))
	positive("net.accept_loop_interrupt_period", int64(c.NET.AcceptLoopInterruptPeriod))
	positive("headers.max_request_line_size", int64(c.Headers.MaxRequestLineSize))
	positive("headers.max_size", int64(c.Headers.MaxSize))
	positive("headers.max_number", int64(c.Headers.MaxNumber))
	positive("files.chunk_size", int64(c.Files.ChunkSize))
	positive("files.workers", int64(c.Files.Workers))
	positive("files.queue", int64(c.Files.Queue))
	positive("shutdown.timeout", int64(c.Shutdown.Timeout))

	if c.Body.MaxDrain < 0 {
		errs = append(errs, fmt.Errorf("body.max_drain must not be negative"))
	}

	if len(c.Files.Index) == 0 || strings.ContainsAny(c.Files.Index, `/\`) {
		errs = append(errs, fmt.Errorf("files.index must be a plain file name, got %q", c.Files.Index))
	}

	if len(c.Files.FallbackType) == 0 {
		errs = append(errs, fmt.Errorf("files.fallback_type must not be empty"))
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}

	return nil
}
