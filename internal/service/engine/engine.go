package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/councillor-bot/councillor-deploy/internal/logger"
	"github.com/councillor-bot/councillor-deploy/internal/service/common"
)

// DefaultPollInterval is how long the readiness loop sleeps between probes.
const DefaultPollInterval = 10 * time.Second

// ErrUnsupportedOS indicates the current OS has no known way to manage the engine.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// desktopProcessNames are the macOS Docker Desktop processes terminated on shutdown.
//
//nolint:gochecknoglobals // Fixed lookup table.
var desktopProcessNames = []string{"Docker", "Docker Desktop", "com.docker.backend"}

// Manager starts the local container engine, waits until its daemon
// answers and tears it down again after container-backed builds.
type Manager struct {
	// runner executes the engine CLI and service manager commands.
	runner common.Runner
	// pollInterval is the fixed delay between readiness probes.
	pollInterval time.Duration
	// goos selects the platform-specific start/stop commands.
	goos string
	// startedByUs records whether this process launched the engine,
	// so Shutdown never stops a daemon it does not own.
	startedByUs bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRunner overrides the command runner.
func WithRunner(runner common.Runner) Option {
	return func(m *Manager) {
		m.runner = runner
	}
}

// WithPollInterval overrides the readiness probe interval.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// NewManager returns a Manager for the local container engine.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		runner:       common.NewExecRunner(),
		pollInterval: DefaultPollInterval,
		goos:         runtime.GOOS,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Ping reports whether the engine daemon currently answers.
func (m *Manager) Ping(ctx context.Context) bool {
	_, err := m.runner.Output(ctx, common.Command{
		Name: "docker",
		Args: []string{"info"},
	})

	return err == nil
}

// EnsureReady makes sure the engine daemon is running, launching it when
// needed and blocking until it answers.
func (m *Manager) EnsureReady(ctx context.Context) error {
	if m.Ping(ctx) {
		logger.Debug(ctx, "Container engine is already running")
		return nil
	}

	logger.Info(ctx, "Starting the container engine")

	if err := m.start(ctx); err != nil {
		return fmt.Errorf("start container engine: %w", err)
	}

	m.startedByUs = true

	return m.WaitReady(ctx)
}

// WaitReady polls the daemon at a fixed interval until it answers.
// The loop has no retry cap; it ends only on success or context cancellation.
func (m *Manager) WaitReady(ctx context.Context) error {
	for {
		if m.Ping(ctx) {
			logger.Info(ctx, "Container engine is ready")
			return nil
		}

		logger.Infof(ctx, "Container engine is not ready yet, retrying in %s", m.pollInterval)

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for container engine: %w", ctx.Err())
		case <-time.After(m.pollInterval):
		}
	}
}

// Shutdown force-terminates the engine, but only if this process started it.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.startedByUs {
		return nil
	}

	logger.Info(ctx, "Stopping the container engine")

	osName := strings.ToLower(m.goos)

	var err error

	switch {
	case strings.Contains(osName, "darwin"):
		err = common.TerminateProcessesByName(desktopProcessNames...)
	case strings.Contains(osName, "linux"):
		err = m.runner.Run(ctx, common.Command{
			Name: "systemctl",
			Args: []string{"stop", "docker"},
		})
	default:
		err = fmt.Errorf("%s: %w", m.goos, ErrUnsupportedOS)
	}

	if err != nil {
		return fmt.Errorf("stop container engine: %w", err)
	}

	m.startedByUs = false

	return nil
}

// start launches the engine daemon for the current platform.
func (m *Manager) start(ctx context.Context) error {
	osName := strings.ToLower(m.goos)

	switch {
	case strings.Contains(osName, "darwin"):
		// Docker Desktop detaches on its own.
		return m.runner.Start(ctx, common.Command{
			Name: "open",
			Args: []string{"-a", "Docker"},
		})
	case strings.Contains(osName, "linux"):
		return m.runner.Run(ctx, common.Command{
			Name: "systemctl",
			Args: []string{"start", "docker"},
		})
	default:
		return fmt.Errorf("%s: %w", m.goos, ErrUnsupportedOS)
	}
}
