package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/councillor-bot/councillor-deploy/internal/config"
	"github.com/councillor-bot/councillor-deploy/internal/service/common"
)

// fakeRunner records build invocations and optionally writes the artifact,
// mimicking a successful compiler run.
type fakeRunner struct {
	// lastCommand is the most recent invocation.
	lastCommand common.Command
	// writeArtifact, when set, is a file created on Run to simulate build output.
	writeArtifact string
}

func (f *fakeRunner) Run(_ context.Context, cmd common.Command) error {
	f.lastCommand = cmd

	if f.writeArtifact != "" {
		return os.WriteFile(f.writeArtifact, []byte("binary"), 0o755)
	}

	return nil
}

func (f *fakeRunner) Output(_ context.Context, cmd common.Command) ([]byte, error) {
	f.lastCommand = cmd

	return nil, nil
}

func (f *fakeRunner) Start(_ context.Context, cmd common.Command) error {
	f.lastCommand = cmd

	return nil
}

// TestBuildPassesToolArgsAndEnv verifies the build tool invocation carries
// the recipe's arguments and sorted environment overrides.
func TestBuildPassesToolArgsAndEnv(t *testing.T) {
	t.Parallel()

	runner := new(fakeRunner)
	b := New(t.TempDir(), WithRunner(runner))

	spec := config.Build{
		Tool: "cargo",
		Args: []string{"build", "--release", "--target", "x86_64-unknown-linux-gnu"},
		Env: map[string]string{
			"CARGO_TARGET_X86_64_UNKNOWN_LINUX_GNU_LINKER": "x86_64-linux-gnu-gcc",
		},
	}

	require.NoError(t, b.Build(context.Background(), spec))
	require.Equal(t, "cargo", runner.lastCommand.Name)
	require.Equal(t, spec.Args, runner.lastCommand.Args)
	require.Equal(t,
		[]string{"CARGO_TARGET_X86_64_UNKNOWN_LINUX_GNU_LINKER=x86_64-linux-gnu-gcc"},
		runner.lastCommand.Env)
}

// TestStageVerifiesAndCopiesArtifact covers staging a fresh build output.
func TestStageVerifiesAndCopiesArtifact(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	distDir := filepath.Join(workDir, "dist")
	artifactPath := filepath.Join(workDir, "councillor-runner")

	require.NoError(t, os.WriteFile(artifactPath, []byte("release binary"), 0o755))

	b := New(distDir)

	artifact, err := b.Stage(context.Background(), config.Build{Artifact: artifactPath})
	require.NoError(t, err)
	require.Equal(t, "councillor-runner", artifact.Name)
	require.FileExists(t, artifact.Path)

	staged, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, []byte("release binary"), staged)

	// Staged checksum must match an independent calculation.
	independent, err := GetFileChecksum(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, independent, artifact.Checksum)

	// Re-staging a changed artifact replaces the previous release.
	require.NoError(t, os.WriteFile(artifactPath, []byte("next release"), 0o755))

	artifact, err = b.Stage(context.Background(), config.Build{Artifact: artifactPath})
	require.NoError(t, err)

	staged, err = os.ReadFile(artifact.Path)
	require.NoError(t, err)
	require.Equal(t, []byte("next release"), staged)
	require.NoFileExists(t, artifact.Path+".old")
}

// TestStageMissingArtifact fails when the build produced nothing.
func TestStageMissingArtifact(t *testing.T) {
	t.Parallel()

	b := New(t.TempDir())

	_, err := b.Stage(context.Background(), config.Build{
		Artifact: filepath.Join(t.TempDir(), "missing"),
	})
	require.Error(t, err)
}

// TestManifestRoundtrip ensures the manifest persists version and checksum.
func TestManifestRoundtrip(t *testing.T) {
	t.Parallel()

	distDir := t.TempDir()
	b := New(distDir)

	artifact := &Artifact{
		Name:     "councillor-bot",
		Checksum: []byte{0x01, 0x02},
	}

	path, err := b.WriteManifest(NewManifest(artifact, "1.4.0"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(distDir, ManifestFilename), path)

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, "1.4.0", loaded.VersionNumber)
	require.Equal(t, "councillor-bot", loaded.Artifact)
	require.Equal(t, "AQI=", loaded.Checksum)
	require.False(t, loaded.BuiltAt.IsZero())
}
