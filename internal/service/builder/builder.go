package builder

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/councillor-bot/councillor-deploy/internal/config"
	"github.com/councillor-bot/councillor-deploy/internal/logger"
	"github.com/councillor-bot/councillor-deploy/internal/service/common"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// DefaultFileMode is used for staged release binaries.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to calculate artifact hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512
)

var errHashUnavailable = errors.New("hash function unavailable")

// Builder runs the external cross-compilation tool and stages its artifact
// into the local dist directory with checksum verification.
type Builder struct {
	// runner executes the build tool.
	runner common.Runner
	// distDir is where verified artifacts are staged before upload.
	distDir string
}

// Option customizes a Builder.
type Option func(*Builder)

// WithRunner overrides the command runner.
func WithRunner(runner common.Runner) Option {
	return func(b *Builder) {
		b.runner = runner
	}
}

// New returns a Builder staging artifacts into distDir.
func New(distDir string, opts ...Option) *Builder {
	b := &Builder{
		runner:  common.NewExecRunner(),
		distDir: distDir,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build invokes the target's build tool with its environment overrides,
// streaming the tool's output to the terminal.
func (b *Builder) Build(ctx context.Context, spec config.Build) error {
	cmd := common.Command{
		Name: spec.Tool,
		Args: spec.Args,
		Env:  flattenEnv(spec.Env),
	}

	logger.InfoKV(ctx, "Running build", "command", cmd.String())

	if err := b.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("build: %w", err)
	}

	return nil
}

// Artifact describes a staged release binary ready for upload.
type Artifact struct {
	// Name is the binary's base name.
	Name string
	// Path is the staged location inside the dist directory.
	Path string
	// Checksum is the SHA-512 digest of the binary.
	Checksum []byte
}

// Stage verifies the build produced its artifact and copies it into the
// dist directory, replacing any previous release atomically.
func (b *Builder) Stage(ctx context.Context, spec config.Build) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Clean(spec.Artifact))
	if err != nil {
		return nil, fmt.Errorf("read build artifact: %w", err)
	}

	checksum, err := checksumBytes(data)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(b.distDir, DefaultFileMode); err != nil {
		return nil, fmt.Errorf("create dist directory: %w", err)
	}

	name := filepath.Base(spec.Artifact)
	stagedPath := filepath.Join(b.distDir, name)

	if _, err = os.Stat(stagedPath); err != nil && os.IsNotExist(err) {
		var staged *os.File

		staged, err = os.Create(stagedPath)
		if err != nil {
			return nil, fmt.Errorf("create staged file: %w", err)
		}

		if err = staged.Close(); err != nil {
			return nil, fmt.Errorf("close staged file: %w", err)
		}
	}

	options := goupdate.Options{
		TargetPath: stagedPath,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return nil, fmt.Errorf("stage artifact: %w", err)
	}

	oldPath := stagedPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	logger.InfoKV(ctx, "Staged release artifact", "path", stagedPath)

	return &Artifact{
		Name:     name,
		Path:     stagedPath,
		Checksum: checksum,
	}, nil
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	return checksumBytes(contents)
}

// checksumBytes hashes contents with DefaultChecksumFunction.
func checksumBytes(contents []byte) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// flattenEnv converts the build environment map into sorted KEY=VALUE pairs.
func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}

	pairs := make([]string, 0, len(env))
	for key, value := range env {
		pairs = append(pairs, key+"="+value)
	}

	sort.Strings(pairs)

	return pairs
}
