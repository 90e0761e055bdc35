package config

import (
	"runtime"
	"time"

	"github.com/indigo-web/preview/http/mime"
)

// Names of the transport engines.
const (
	// EngineEventLoop multiplexes connections over a fixed number of event loops.
	EngineEventLoop = "eventloop"
	// EngineGoroutine serves every connection by its own goroutine.
	EngineGoroutine = "goroutine"
)

type (
	NET struct {
		// Network is passed to the listener. The preview server is meant to be reachable
		// from the local machine only, therefore tcp6 on the loopback by default.
		Network string `toml:"network" yaml:"network"`
		// Host is the address to bind at, without a port.
		Host string `toml:"host" yaml:"host"`
		// Engine chooses the transport, either EngineGoroutine or EngineEventLoop. Only
		// EngineGoroutine finishes the response in flight after the peer half-closes.
		Engine string `toml:"engine" yaml:"engine"`
		// EventLoops is the number of event loops for EngineEventLoop. Defaults to the
		// number of CPU cores.
		EventLoops int `toml:"event_loops" yaml:"event_loops"`
		// ReadBufferSize is a size of buffer in bytes which will be used to read from
		// socket.
		ReadBufferSize int `toml:"read_buffer_size" yaml:"read_buffer_size"`
		// MaxPipelineBuffer limits how many bytes of pipelined requests are held while
		// a response is still being sent. Reading is paused once it is exceeded.
		MaxPipelineBuffer int `toml:"max_pipeline_buffer" yaml:"max_pipeline_buffer"`
		// AcceptLoopInterruptPeriod controls how often will the Accept() call be interrupted
		// in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration `toml:"accept_loop_interrupt_period" yaml:"accept_loop_interrupt_period"`
	}

	Headers struct {
		// MaxRequestLineSize limits the method, request target and protocol together.
		MaxRequestLineSize int `toml:"max_request_line_size" yaml:"max_request_line_size"`
		// MaxSize limits the amount of memory occupied by request headers.
		MaxSize int `toml:"max_size" yaml:"max_size"`
		// MaxNumber is the maximal number of header fields in a single request.
		MaxNumber int `toml:"max_number" yaml:"max_number"`
	}

	Body struct {
		// MaxDrain is the biggest request body that is read and thrown away. Bodies
		// exceeding it are answered with 413, closing the connection.
		MaxDrain int64 `toml:"max_drain" yaml:"max_drain"`
	}

	Files struct {
		// ChunkSize is how much of a file is read and sent at once.
		ChunkSize int `toml:"chunk_size" yaml:"chunk_size"`
		// Workers is the size of the pool doing blocking file operations.
		Workers int `toml:"workers" yaml:"workers"`
		// Queue is how many file operations may wait for a free worker. Requests
		// beyond it are answered with 500 Internal Server Error.
		Queue int `toml:"queue" yaml:"queue"`
		// Index is appended to paths naming a directory.
		Index string `toml:"index" yaml:"index"`
		// FallbackType is the Content-Type for extensions the registry doesn't know.
		FallbackType mime.MIME `toml:"fallback_type" yaml:"fallback_type"`
		// MIMEOverrides optionally names a JSON file with additional extension to
		// media type pairs.
		MIMEOverrides string `toml:"mime_overrides" yaml:"mime_overrides" test:"nullable"`
		// ConfineSymlinks rejects files whose real location lies outside the root.
		ConfineSymlinks bool `toml:"confine_symlinks" yaml:"confine_symlinks" test:"nullable"`
	}

	Shutdown struct {
		// Timeout bounds how long in-flight responses are waited for.
		Timeout time.Duration `toml:"timeout" yaml:"timeout"`
	}

	Log struct {
		// Level is one of zerolog levels: trace, debug, info, warn, error, disabled.
		Level string `toml:"level" yaml:"level"`
		// Format is either console or json.
		Format string `toml:"format" yaml:"format"`
	}
)

// Config holds settings used across various parts of the preview server, mainly
// restrictions, limitations and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	NET      NET      `toml:"net" yaml:"net"`
	Headers  Headers  `toml:"headers" yaml:"headers"`
	Body     Body     `toml:"body" yaml:"body"`
	Files    Files    `toml:"files" yaml:"files"`
	Shutdown Shutdown `toml:"shutdown" yaml:"shutdown"`
	Log      Log      `toml:"log" yaml:"log"`
}

// Default returns default config. Those are initially well-balanced, however maximal defaults
// are pretty permitting.
func Default() *Config {
	return &Config{
		NET: NET{
			Network:                   "tcp6",
			Host:                      "::1",
			Engine:                    EngineGoroutine,
			EventLoops:                runtime.NumCPU(),
			ReadBufferSize:            4 * 1024,
			MaxPipelineBuffer:         64 * 1024,
			AcceptLoopInterruptPeriod: time.Second,
		},
		Headers: Headers{
			// most web-entities limit it to 4-8kb, so 16kb is pretty tolerant.
			MaxRequestLineSize: 16 * 1024,
			MaxSize:            16 * 1024,
			MaxNumber:          100,
		},
		Body: Body{
			MaxDrain: 64 * 1024 * 1024,
		},
		Files: Files{
			ChunkSize:    32 * 1024,
			Workers:      6,
			Queue:        1024,
			Index:        "index.html",
			FallbackType: mime.OctetStream,
		},
		Shutdown: Shutdown{
			Timeout: 5 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}
