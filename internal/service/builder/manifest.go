package builder

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/councillor-bot/councillor-deploy/internal/config"
)

// ManifestFilename is the release manifest uploaded next to the binary.
const ManifestFilename = "councillor-release.yaml"

// Manifest contains metadata about a staged release.
type Manifest struct {
	// VersionNumber is the semantic version of this release.
	VersionNumber string `yaml:"version"`
	// Artifact is the base name of the released binary.
	Artifact string `yaml:"artifact"`
	// Checksum is the base64-encoded SHA-512 digest of the binary.
	Checksum string `yaml:"checksum"`
	// BuiltAt is when the release was staged.
	BuiltAt time.Time `yaml:"built_at"`
}

// NewManifest describes the provided artifact under the given version.
func NewManifest(artifact *Artifact, versionNumber string) *Manifest {
	return &Manifest{
		VersionNumber: versionNumber,
		Artifact:      artifact.Name,
		Checksum:      base64.StdEncoding.EncodeToString(artifact.Checksum),
		BuiltAt:       time.Now().UTC(),
	}
}

// WriteManifest persists the manifest into the dist directory and returns its path.
func (b *Builder) WriteManifest(manifest *Manifest) (string, error) {
	contents, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(b.distDir, ManifestFilename)
	if err = os.WriteFile(path, contents, config.DefaultFilePermissions); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	return path, nil
}

// LoadManifest reads a manifest back from disk.
func LoadManifest(path string) (*Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err = yaml.Unmarshal(contents, &manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	return &manifest, nil
}
