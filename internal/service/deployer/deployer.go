package deployer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/councillor-bot/councillor-deploy/internal/config"
	domain "github.com/councillor-bot/councillor-deploy/internal/domain/deploy"
	"github.com/councillor-bot/councillor-deploy/internal/logger"
	"github.com/councillor-bot/councillor-deploy/internal/repository/history"
	"github.com/councillor-bot/councillor-deploy/internal/service/builder"
	"github.com/councillor-bot/councillor-deploy/internal/service/common"
	"github.com/councillor-bot/councillor-deploy/internal/service/engine"
	"github.com/councillor-bot/councillor-deploy/internal/service/remote"
	"github.com/councillor-bot/councillor-deploy/internal/version"
)

var (
	errDeployAlreadyRunning = errors.New("a deploy is already running")
	errUnknownTarget        = errors.New("unknown deploy target")
	errChecksumMismatch     = errors.New("remote checksum does not match the staged artifact")
)

// Options are inputs accepted by the deploy entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// TargetName selects the deploy target from the settings.
	TargetName string
}

// engineManager is the container engine surface used by the pipeline.
type engineManager interface {
	EnsureReady(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// artifactBuilder builds and stages the release binary.
type artifactBuilder interface {
	Build(ctx context.Context, spec config.Build) error
	Stage(ctx context.Context, spec config.Build) (*builder.Artifact, error)
	WriteManifest(manifest *builder.Manifest) (string, error)
}

// remoteHost is the SSH surface used by the pipeline.
type remoteHost interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Checksum(ctx context.Context, remotePath string) ([]byte, error)
	RestartService(ctx context.Context, unit string) error
	CheckService(ctx context.Context, unit string) error
	Close()
}

// runner holds the state and collaborators of a single deploy execution.
// It is intentionally unexported; call Run(ctx, Options) from callers.
type runner struct {
	cfg        *config.Settings
	targetName string
	target     config.Target
	engine     engineManager
	builder    artifactBuilder
	history    history.Repository
	dial       func(target *config.Target) (remoteHost, error)
	markerPath string
	// markerCreated guards marker removal so a concurrent run's marker
	// is never deleted by this one.
	markerCreated bool
}

// Run executes the deploy pipeline and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "councillor-deploy")

	r, err := newRunner(ctx, opts)
	if r != nil {
		defer r.cleanup(ctx)
	}

	if err != nil {
		return err
	}

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Deploy failed", "target", r.targetName, "error", err)
		return err
	}

	logger.InfoKV(ctx, "Deploy completed", "target", r.targetName)

	return nil
}

// newRunner guards against concurrent deploys, loads the settings and
// wires the pipeline collaborators.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	r := &runner{
		markerPath: MarkerFilename,
	}

	if IsDeployRunningNow(ctx, r.markerPath) {
		return nil, errDeployAlreadyRunning
	}

	marker, err := os.Create(r.markerPath)
	if err != nil {
		return nil, fmt.Errorf("create deploy marker: %w", err)
	}

	if err = marker.Close(); err != nil {
		return nil, fmt.Errorf("close deploy marker: %w", err)
	}

	r.markerCreated = true

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return r, err
	}

	r.cfg = cfg
	r.targetName = strings.TrimSpace(opts.TargetName)

	target, ok := cfg.Targets[r.targetName]
	if !ok {
		return r, fmt.Errorf("%w: %s (configured: %s)",
			errUnknownTarget, r.targetName, strings.Join(targetNames(cfg), ", "))
	}

	r.target = target
	r.engine = engine.NewManager()
	r.builder = builder.New(cfg.DistDir)
	r.history = history.NewFileRepository(cfg.HistoryFile)
	r.dial = func(target *config.Target) (remoteHost, error) {
		return remote.Dial(target)
	}

	return r, nil
}

// run executes the pipeline steps in order, aborting on the first failure:
// 1) Ensure the container engine is ready (container-backed builds only).
// 2) Cross-build the release binary.
// 3) Stage the artifact and write the release manifest.
// 4) Upload binary and manifest over SSH.
// 5) Verify the remote checksum.
// 6) Restart the service unit and check it is active.
// 7) Record the deploy in the history file.
func (r *runner) run(ctx context.Context) error {
	actor, err := common.DetectActor()
	if err != nil {
		return err
	}

	if r.target.Build.NeedsEngine {
		logger.Info(ctx, "Ensuring the container engine is ready")

		if err = r.engine.EnsureReady(ctx); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Building release", "target", r.targetName)

	if err = r.builder.Build(ctx, r.target.Build); err != nil {
		return err
	}

	artifact, err := r.builder.Stage(ctx, r.target.Build)
	if err != nil {
		return err
	}

	manifest := builder.NewManifest(artifact, version.Short())

	manifestPath, err := r.builder.WriteManifest(manifest)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Connecting to remote host",
		"host", r.target.Host, "user", r.target.User)

	host, err := r.dial(&r.target)
	if err != nil {
		return err
	}

	defer host.Close()

	if err = host.Upload(ctx, artifact.Path, r.target.RemotePath); err != nil {
		return err
	}

	remoteManifestPath := path.Join(path.Dir(r.target.RemotePath), builder.ManifestFilename)
	if err = host.Upload(ctx, manifestPath, remoteManifestPath); err != nil {
		return err
	}

	logger.Info(ctx, "Verifying the uploaded binary")

	remoteChecksum, err := host.Checksum(ctx, r.target.RemotePath)
	if err != nil {
		return err
	}

	if !bytes.Equal(remoteChecksum, artifact.Checksum) {
		return fmt.Errorf("%w: %s", errChecksumMismatch, r.target.RemotePath)
	}

	if err = host.RestartService(ctx, r.target.Service); err != nil {
		return err
	}

	if err = host.CheckService(ctx, r.target.Service); err != nil {
		return err
	}

	r.recordDeploy(ctx, manifest, actor)

	return nil
}

// recordDeploy stores the deploy in the history file. The deploy already
// succeeded at this point, so failures only produce a warning.
func (r *runner) recordDeploy(ctx context.Context, manifest *builder.Manifest, actor *domain.Actor) {
	record := &domain.Record{
		Target:     r.targetName,
		Version:    manifest.VersionNumber,
		Checksum:   manifest.Checksum,
		Timestamp:  time.Now().UTC(),
		DeployedBy: actor,
	}

	if err := r.history.Save(ctx, record); err != nil {
		logger.WarnKV(ctx, "Unable to record deploy history", "error", err)
	}
}

// cleanup tears down the engine if this run started it and removes the marker.
func (r *runner) cleanup(ctx context.Context) {
	if r.engine != nil {
		if err := r.engine.Shutdown(ctx); err != nil {
			logger.WarnKV(ctx, "Unable to stop the container engine", "error", err)
		}
	}

	if r.markerCreated {
		if err := os.Remove(r.markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove the deploy marker", "error", err)
		}
	}
}

// targetNames lists the configured target names in stable order.
func targetNames(cfg *config.Settings) []string {
	names := make([]string, 0, len(cfg.Targets))
	for name := range cfg.Targets {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
