package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/councillor-bot/councillor-deploy/internal/service/common"
)

var errDaemonDown = errors.New("daemon not running")

// fakeRunner scripts the outcome of engine CLI invocations.
type fakeRunner struct {
	// failuresLeft is how many probes still report the daemon as down.
	failuresLeft int
	// probes counts Output calls.
	probes int
	// commands records every non-probe invocation.
	commands []common.Command
}

// Run records service manager invocations and always succeeds.
func (f *fakeRunner) Run(_ context.Context, cmd common.Command) error {
	f.commands = append(f.commands, cmd)

	return nil
}

// Output mimics the readiness probe, failing until failuresLeft is exhausted.
func (f *fakeRunner) Output(_ context.Context, _ common.Command) ([]byte, error) {
	f.probes++
	if f.failuresLeft > 0 {
		f.failuresLeft--

		return nil, errDaemonDown
	}

	return []byte("ok"), nil
}

// Start records detached invocations and always succeeds.
func (f *fakeRunner) Start(_ context.Context, cmd common.Command) error {
	f.commands = append(f.commands, cmd)

	return nil
}

// TestWaitReadyRetriesUntilSuccess verifies the loop proceeds only once the probe succeeds.
func TestWaitReadyRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failuresLeft: 3}
	m := NewManager(WithRunner(runner), WithPollInterval(time.Millisecond))

	require.NoError(t, m.WaitReady(context.Background()))
	require.Equal(t, 4, runner.probes)
}

// TestWaitReadyCancellation verifies the unbounded loop honors context cancellation.
func TestWaitReadyCancellation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failuresLeft: 1 << 30}
	m := NewManager(WithRunner(runner), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.WaitReady(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestEnsureReadyStartsEngineWhenDown covers the start-then-poll path on Linux.
func TestEnsureReadyStartsEngineWhenDown(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failuresLeft: 2}
	m := NewManager(WithRunner(runner), WithPollInterval(time.Millisecond))
	m.goos = "linux"

	require.NoError(t, m.EnsureReady(context.Background()))
	require.True(t, m.startedByUs)
	require.NotEmpty(t, runner.commands)
	require.Equal(t, "systemctl", runner.commands[0].Name)
}

// TestEnsureReadySkipsStartWhenRunning ensures a responsive daemon is left alone.
func TestEnsureReadySkipsStartWhenRunning(t *testing.T) {
	t.Parallel()

	runner := new(fakeRunner)
	m := NewManager(WithRunner(runner))

	require.NoError(t, m.EnsureReady(context.Background()))
	require.False(t, m.startedByUs)
	require.Empty(t, runner.commands)
}

// TestShutdownOnlyTouchesOwnedEngine verifies Shutdown is a no-op without prior start.
func TestShutdownOnlyTouchesOwnedEngine(t *testing.T) {
	t.Parallel()

	runner := new(fakeRunner)
	m := NewManager(WithRunner(runner))
	m.goos = "linux"

	require.NoError(t, m.Shutdown(context.Background()))
	require.Empty(t, runner.commands)

	m.startedByUs = true

	require.NoError(t, m.Shutdown(context.Background()))
	require.Len(t, runner.commands, 1)
	require.Equal(t, []string{"stop", "docker"}, runner.commands[0].Args)
	require.False(t, m.startedByUs)
}

// TestShutdownUnsupportedOS surfaces ErrUnsupportedOS.
func TestShutdownUnsupportedOS(t *testing.T) {
	t.Parallel()

	m := NewManager(WithRunner(new(fakeRunner)))
	m.goos = "plan9"
	m.startedByUs = true

	require.ErrorIs(t, m.Shutdown(context.Background()), ErrUnsupportedOS)
}
