package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	acperrors "github.com/hostbridge/acp-sdk-go/internal/errors"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoTransport launches a shell that copies stdin to stdout, the smallest
// possible stand-in for an agent process.
func echoTransport(t *testing.T) *ProcessTransport {
	t.Helper()

	tr := New(Config{
		Executable: "sh",
		Args:       []string{"-c", "cat"},
		Logger:     nopLogger(),
	})

	t.Cleanup(func() { _ = tr.Stop() })

	return tr
}

func TestSendReceiveRoundTrip(t *testing.T) {
	tr := echoTransport(t)

	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	frames, errs := tr.ReadFrames(ctx)

	require.NoError(t, tr.Send(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)))

	select {
	case frame := <-frames:
		require.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, string(frame))
	case err := <-errs:
		t.Fatalf("unexpected transport error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestFramesQueuedBeforeStart(t *testing.T) {
	tr := echoTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Send(ctx, []byte(`{"id":1}`)))
	require.NoError(t, tr.Send(ctx, []byte(`{"id":2}`)))

	require.NoError(t, tr.Start(ctx))

	frames, _ := tr.ReadFrames(ctx)

	for _, want := range []string{`{"id":1}`, `{"id":2}`} {
		select {
		case frame := <-frames:
			require.JSONEq(t, want, string(frame))
		case <-time.After(5 * time.Second):
			t.Fatal("queued frame never arrived")
		}
	}
}

func TestMissingExecutable(t *testing.T) {
	tr := New(Config{
		Executable: "definitely-not-a-real-agent-binary",
		Logger:     nopLogger(),
	})

	err := tr.Start(context.Background())
	require.Error(t, err)

	var transportErr *acperrors.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestUnexpectedExitReported(t *testing.T) {
	tr := New(Config{
		Executable: "sh",
		Args:       []string{"-c", "exit 3"},
		Logger:     nopLogger(),
	})
	t.Cleanup(func() { _ = tr.Stop() })

	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	frames, errs := tr.ReadFrames(ctx)

	// Drain frames so the reader reaches process reaping.
	go func() {
		for range frames { //nolint:revive // draining
		}
	}()

	select {
	case err := <-errs:
		var exitErr *acperrors.ProcessExitError
		require.ErrorAs(t, err, &exitErr)
		require.Equal(t, 3, exitErr.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("process exit never reported")
	}
}

func TestStderrCallback(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)

	tr := New(Config{
		Executable: "sh",
		Args:       []string{"-c", "echo diagnostics >&2; cat"},
		Stderr: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
		Logger: nopLogger(),
	})
	t.Cleanup(func() { _ = tr.Stop() })

	ctx := context.Background()
	require.NoError(t, tr.Start(ctx))

	_, _ = tr.ReadFrames(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(lines) == 1 && lines[0] == "diagnostics"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopIdempotent(t *testing.T) {
	tr := echoTransport(t)

	// Stop before Start is a no-op, and repeated stops stay quiet.
	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Stop())

	require.ErrorIs(t, tr.Send(context.Background(), []byte(`{}`)), acperrors.ErrProcessNotRunning)
}

func TestStopAfterStartKillsProcess(t *testing.T) {
	tr := echoTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))

	frames, _ := tr.ReadFrames(ctx)

	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Stop())

	select {
	case _, ok := <-frames:
		require.False(t, ok, "frames channel should close after stop")
	case <-time.After(5 * time.Second):
		t.Fatal("frames channel never closed")
	}
}
