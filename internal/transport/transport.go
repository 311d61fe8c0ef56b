// Package transport owns the agent subprocess lifecycle and the raw framing
// of messages over its standard I/O. Frames are newline-delimited JSON;
// this framing must match the agent binary byte for byte.
package transport

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hostbridge/acp-sdk-go/internal/errors"
)

const (
	// maxScanTokenSize is the maximum buffer size for reading agent output lines.
	maxScanTokenSize = 1024 * 1024 // 1MB
	// maxStderrBufferSize caps the retained stderr used for exit reporting.
	maxStderrBufferSize = 256 * 1024
)

// Transport delivers complete frames to and from the agent process.
type Transport interface {
	Start(ctx context.Context) error
	ReadFrames(ctx context.Context) (<-chan []byte, <-chan error)
	Send(ctx context.Context, frame []byte) error
	Stop() error
}

// Config describes how to launch the agent subprocess.
type Config struct {
	// Executable is the agent binary name or path. Required.
	Executable string
	// Args are passed to the executable. Defaults to ["acp"] when nil.
	Args []string
	// Env entries are appended to the inherited environment.
	Env map[string]string
	// Cwd is the working directory for the process. Defaults to the
	// current directory.
	Cwd string
	// Stderr, when set, receives each stderr line as it arrives.
	Stderr func(line string)
	// Logger receives operational logging. Required (use a nop logger to
	// silence).
	Logger *slog.Logger
}

// ProcessTransport implements Transport by spawning the agent subprocess.
type ProcessTransport struct {
	log    *slog.Logger
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu      sync.Mutex // protects stdin writes, queued, closing
	queued  [][]byte   // frames sent before Start, flushed once running
	closing bool
	started bool
}

// Compile-time verification that ProcessTransport implements Transport.
var _ Transport = (*ProcessTransport)(nil)

// New creates a transport for the given launch configuration.
func New(cfg Config) *ProcessTransport {
	if len(cfg.Args) == 0 {
		cfg.Args = []string{"acp"}
	}

	return &ProcessTransport{
		log: cfg.Logger.With("component", "transport"),
		cfg: cfg,
	}
}

// Start resolves the executable and spawns the agent process with stdio
// pipes attached. Frames queued before Start are flushed to the process.
//
// Returns a TransportError if the executable cannot be found or the
// process fails to launch.
func (t *ProcessTransport) Start(ctx context.Context) error {
	path, err := exec.LookPath(t.cfg.Executable)
	if err != nil {
		t.log.Error("Agent executable not found", "executable", t.cfg.Executable)

		return &errors.TransportError{Err: fmt.Errorf("resolve executable %q: %w", t.cfg.Executable, err)}
	}

	//nolint:gosec // G204: launching a host-supplied agent binary is the point.
	cmd := exec.CommandContext(ctx, path, t.cfg.Args...)

	cmd.Dir = t.cfg.Cwd
	if cmd.Dir == "" {
		if cmd.Dir, err = os.Getwd(); err != nil {
			return &errors.TransportError{Err: fmt.Errorf("get working directory: %w", err)}
		}
	}

	cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start agent process", "error", err)

		return &errors.TransportError{Err: fmt.Errorf("start process: %w", err)}
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr
	t.started = true
	queued := t.queued
	t.queued = nil
	t.mu.Unlock()

	t.log.Info("Agent process started", "pid", cmd.Process.Pid, "executable", path)

	for _, frame := range queued {
		if err := t.Send(ctx, frame); err != nil {
			return err
		}
	}

	return nil
}

// ReadFrames reads newline-delimited frames from the agent stdout.
//
// One goroutine scans stdout and forwards each line; a second drains
// stderr. When stdout closes the process is reaped: an unexpected exit is
// reported as a *ProcessExitError on the error channel, which the
// connection treats as fatal. Both channels close when reading stops.
func (t *ProcessTransport) ReadFrames(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error, 1)

	var (
		stderrTail strings.Builder
		stderrMu   sync.Mutex
		readers    errgroup.Group
	)

	// Stderr reads must finish before cmd.Wait releases the pipes.
	readers.Go(func() error {
		scanner := bufio.NewScanner(t.stderr)
		for scanner.Scan() {
			line := scanner.Text()

			stderrMu.Lock()

			if stderrTail.Len() < maxStderrBufferSize {
				if stderrTail.Len() > 0 {
					stderrTail.WriteString("\n")
				}

				stderrTail.WriteString(line)
			}

			stderrMu.Unlock()

			if t.cfg.Stderr != nil {
				t.cfg.Stderr(line)
			}
		}

		return nil
	})

	go func() {
		defer close(frames)
		defer close(errs)

		scanner := bufio.NewScanner(t.stdout)
		scanner.Buffer(make([]byte, maxScanTokenSize), maxScanTokenSize)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			// Scanner reuses its buffer; hand consumers their own copy.
			frame := make([]byte, len(line))
			copy(frame, line)

			select {
			case frames <- frame:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}

		if err := scanner.Err(); err != nil {
			t.log.Error("Scanner error on agent stdout", "error", err)

			errs <- &errors.TransportError{Err: err}
		}

		_ = readers.Wait()

		err := t.cmd.Wait()

		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()

		if closing {
			t.log.Debug("Agent process terminated during shutdown")

			return
		}

		stderrMu.Lock()
		tail := stderrTail.String()
		stderrMu.Unlock()

		exitCode := 0
		if exitErr, ok := asExitError(err); ok {
			exitCode = exitErr.ExitCode()
		}

		t.log.Warn("Agent process exited unexpectedly", "exit_code", exitCode)

		errs <- &errors.ProcessExitError{ExitCode: exitCode, Stderr: tail, Err: err}
	}()

	return frames, errs
}

func asExitError(err error) (*exec.ExitError, bool) {
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr, true
	}

	return nil, false
}

// Send writes one complete frame, appending the newline terminator. Frames
// sent before the process is up are queued and flushed by Start.
func (t *ProcessTransport) Send(_ context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return errors.ErrProcessNotRunning
	}

	if !t.started {
		queued := make([]byte, len(frame))
		copy(queued, frame)
		t.queued = append(t.queued, queued)

		t.log.Debug("Queued frame before start", "queued", len(t.queued))

		return nil
	}

	// Append the terminator without mutating the caller's backing array.
	framed := make([]byte, len(frame)+1)
	copy(framed, frame)
	framed[len(frame)] = '\n'

	if _, err := t.stdin.Write(framed); err != nil {
		t.log.Error("Failed to write frame to agent", "error", err)

		return &errors.TransportError{Err: fmt.Errorf("write to stdin: %w", err)}
	}

	return nil
}

// Stop terminates the agent process. Safe to call multiple times or before
// Start.
func (t *ProcessTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return nil
	}

	t.closing = true

	if t.stdin != nil {
		_ = t.stdin.Close()
	}

	if t.cmd != nil && t.cmd.Process != nil {
		t.log.Debug("Killing agent process", "pid", t.cmd.Process.Pid)

		if err := t.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill agent process (pid %d): %w", t.cmd.Process.Pid, err)
		}
	}

	return nil
}
