package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Build describes how a target's release binary is produced.
type Build struct {
	// Tool is the build command to invoke (e.g. "cross" or "cargo").
	Tool string `yaml:"tool"`
	// Args are the arguments passed to the build tool.
	Args []string `yaml:"args"`
	// Env holds extra environment variables for the build tool,
	// appended to the inherited environment.
	Env map[string]string `yaml:"env,omitempty"`
	// Artifact is the local path of the binary produced by the build.
	Artifact string `yaml:"artifact"`
	// NeedsEngine marks builds that require a running container engine.
	NeedsEngine bool `yaml:"needs_engine,omitempty"`
}

// Target describes one deployable host: where to copy the binary
// and which service unit to restart afterwards.
type Target struct {
	// Host is the remote hostname or address.
	Host string `yaml:"host"`
	// Port is the SSH port (22 when omitted).
	Port int `yaml:"port,omitempty"`
	// User is the remote SSH user.
	User string `yaml:"user"`
	// RemotePath is the absolute path of the installed binary on the host.
	RemotePath string `yaml:"remote_path"`
	// Service is the systemd unit restarted after a successful transfer.
	Service string `yaml:"service"`
	// KeyFile is the SSH private key used for authentication
	// (~/.ssh/id_ed25519 when omitted).
	KeyFile string `yaml:"key_file,omitempty"`
	// KnownHostsFile is the known_hosts file used to verify the host key
	// (~/.ssh/known_hosts when omitted).
	KnownHostsFile string `yaml:"known_hosts_file,omitempty"`
	// Timeout is the SSH connection timeout.
	Timeout Duration `yaml:"timeout,omitempty"`
	// Build is the recipe producing the binary shipped to this target.
	Build Build `yaml:"build"`
}

// Settings holds the deploy targets and shared options.
type Settings struct {
	// HistoryFile is the path to the JSON file recording past deploys.
	HistoryFile string `yaml:"history_file"`
	// DistDir is the local directory where release artifacts are staged.
	DistDir string `yaml:"dist_dir"`
	// Targets maps target names to their deploy descriptions.
	Targets map[string]Target `yaml:"targets"`
}

const (
	// DefaultConfigFilename is the default filename for deploy settings.
	DefaultConfigFilename = "councillor-deploy.yaml"

	// DefaultHistoryFilename is the default filename for deploy history JSON.
	DefaultHistoryFilename = "councillor-deploy-history.json"

	// DefaultDistDir is the default staging directory for release artifacts.
	DefaultDistDir = "dist"

	// DefaultSSHPort is used when a target does not specify a port.
	DefaultSSHPort = 22

	// DefaultTimeout is the default duration for SSH connection attempts.
	DefaultTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errSettingsNotSet is returned when a nil configuration is provided.
	errSettingsNotSet = errors.New("settings are not set")
	// errNoTargets is returned when the settings define no deploy targets.
	errNoTargets = errors.New("at least one deploy target must be configured")
	// errHostRequired is returned when a target is missing its host.
	errHostRequired = errors.New("host must be provided")
	// errUserRequired is returned when a target is missing its SSH user.
	errUserRequired = errors.New("user must be provided")
	// errRemotePathRequired is returned when a target is missing the install path.
	errRemotePathRequired = errors.New("remote path must be provided")
	// errServiceRequired is returned when a target is missing the service unit.
	errServiceRequired = errors.New("service unit must be provided")
	// errBuildToolRequired is returned when a target's build recipe has no tool.
	errBuildToolRequired = errors.New("build tool must be provided")
	// errArtifactRequired is returned when a target's build recipe has no artifact path.
	errArtifactRequired = errors.New("build artifact path must be provided")
)

// Default returns settings reproducing the two original deploy flows:
// the Raspberry Pi runner built with the container-backed cross tool and
// the cloud VM bot built natively with a linker override.
func Default() *Settings {
	return &Settings{
		HistoryFile: DefaultHistoryFilename,
		DistDir:     DefaultDistDir,
		Targets: map[string]Target{
			"runner": {
				Host:       "raspberrypi.local",
				User:       "pi",
				RemotePath: "/home/pi/bin/councillor-runner",
				Service:    "councillor-runner.service",
				Build: Build{
					Tool:        "cross",
					Args:        []string{"build", "--release", "--target", "armv7-unknown-linux-musleabihf"},
					Artifact:    "target/armv7-unknown-linux-musleabihf/release/councillor-runner",
					NeedsEngine: true,
				},
			},
			"bot": {
				Host:       "councillor.example.com",
				User:       "deploy",
				RemotePath: "/opt/councillor/councillor-bot",
				Service:    "councillor-bot.service",
				Build: Build{
					Tool: "cargo",
					Args: []string{"build", "--release", "--target", "x86_64-unknown-linux-gnu"},
					Env: map[string]string{
						"CARGO_TARGET_X86_64_UNKNOWN_LINUX_GNU_LINKER": "x86_64-linux-gnu-gcc",
					},
					Artifact: "target/x86_64-unknown-linux-gnu/release/councillor-bot",
				},
			},
		},
	}
}

// Load reads settings from the provided path and validates essential fields.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Settings
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Settings) error {
	if cfg == nil {
		return errSettingsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields
// and fills in default values.
func Validate(cfg *Settings) error {
	if cfg == nil {
		return errSettingsNotSet
	}

	if len(cfg.Targets) == 0 {
		return errNoTargets
	}

	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFilename
	}

	if cfg.DistDir == "" {
		cfg.DistDir = DefaultDistDir
	}

	for name, target := range cfg.Targets {
		if err := validateTarget(&target); err != nil {
			return fmt.Errorf("target %s: %w", name, err)
		}

		cfg.Targets[name] = target
	}

	return nil
}

// validateTarget checks one target and fills in its defaults.
func validateTarget(target *Target) error {
	switch {
	case target.Host == "":
		return errHostRequired
	case target.User == "":
		return errUserRequired
	case target.RemotePath == "":
		return errRemotePathRequired
	case target.Service == "":
		return errServiceRequired
	case target.Build.Tool == "":
		return errBuildToolRequired
	case target.Build.Artifact == "":
		return errArtifactRequired
	}

	if target.Port <= 0 {
		target.Port = DefaultSSHPort
	}

	if target.Timeout <= 0 {
		target.Timeout = Duration(DefaultTimeout)
	}

	return nil
}
