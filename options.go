package acpsdk

import (
	"log/slog"
	"time"
)

// defaultGraceWindow is how long a finished turn keeps accepting trailing
// notifications before its stream closes. The protocol has no explicit
// turn-complete sentinel, so notifications can race the prompt response.
const defaultGraceWindow = 100 * time.Millisecond

// Options configures a Client.
type Options struct {
	// Executable is the agent binary to launch. Required.
	Executable string

	// Args are passed to the executable. Defaults to ["acp"].
	Args []string

	// Env entries are appended to the inherited environment.
	Env map[string]string

	// Cwd is the working directory for the agent process.
	Cwd string

	// ClientInfo identifies this host at handshake.
	ClientInfo Implementation

	// Capabilities advertises what this host offers the agent.
	Capabilities ClientCapabilities

	// ProtocolVersion is sent in the handshake. Defaults to 1.
	ProtocolVersion int

	// GraceWindow overrides the trailing-notification window.
	GraceWindow time.Duration

	// Logger receives debug output. Defaults to silent.
	Logger *slog.Logger

	// Stderr, when set, receives each agent stderr line.
	Stderr func(line string)
}

// Option configures Options using the functional options pattern.
type Option func(*Options)

func applyOptions(opts []Option) *Options {
	options := &Options{
		Args:            []string{"acp"},
		ProtocolVersion: 1,
		GraceWindow:     defaultGraceWindow,
		ClientInfo:      Implementation{Name: "acp-sdk-go", Version: "0.1.0"},
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = NopLogger()
	}

	return options
}

// WithExecutable sets the agent binary to launch.
func WithExecutable(executable string) Option {
	return func(o *Options) {
		o.Executable = executable
	}
}

// WithArgs replaces the arguments passed to the agent binary.
func WithArgs(args ...string) Option {
	return func(o *Options) {
		o.Args = args
	}
}

// WithEnv provides additional environment variables for the agent process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithCwd sets the working directory for the agent process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithClientInfo sets the identity sent at handshake.
func WithClientInfo(info Implementation) Option {
	return func(o *Options) {
		o.ClientInfo = info
	}
}

// WithCapabilities sets the capabilities advertised at handshake.
func WithCapabilities(caps ClientCapabilities) Option {
	return func(o *Options) {
		o.Capabilities = caps
	}
}

// WithProtocolVersion overrides the protocol version sent at handshake.
func WithProtocolVersion(version int) Option {
	return func(o *Options) {
		o.ProtocolVersion = version
	}
}

// WithGraceWindow overrides how long a finished turn waits for trailing
// notifications before closing its stream.
func WithGraceWindow(window time.Duration) Option {
	return func(o *Options) {
		o.GraceWindow = window
	}
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithStderr streams each agent stderr line to the callback.
func WithStderr(fn func(line string)) Option {
	return func(o *Options) {
		o.Stderr = fn
	}
}

// WithProfile applies a launch profile loaded from disk. Options applied
// after it override its values.
func WithProfile(p *Profile) Option {
	return func(o *Options) {
		if p == nil {
			return
		}

		if p.Executable != "" {
			o.Executable = p.Executable
		}

		if len(p.Args) > 0 {
			o.Args = p.Args
		}

		if len(p.Env) > 0 {
			o.Env = p.Env
		}

		if p.Cwd != "" {
			o.Cwd = p.Cwd
		}
	}
}
