package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/councillor-bot/councillor-deploy/internal/config"
	"github.com/councillor-bot/councillor-deploy/internal/logger"
	"github.com/councillor-bot/councillor-deploy/internal/service/deployer"
	"github.com/councillor-bot/councillor-deploy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// logLevel is the minimum level for log output.
	logLevel string

	// rootCmd represents the base command for building and shipping a release.
	rootCmd = &cobra.Command{
		Use:   "councillor-deploy <target>",
		Short: "Cross-build a councillor release and ship it to a remote host",
		Long: "Cross-build the release binary for the selected deploy target, " +
			"copy it to the remote host over SSH and restart the service unit. " +
			"Targets are defined in the settings file; run `councillor-deploy init` to create one.",
		Args: cobra.ExactArgs(1),
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &deployer.Options{
				ConfigPath: configPath,
				TargetName: args[0],
			}

			return deployer.Run(ctx, options)
		},
	}
)

// Execute runs the councillor-deploy CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(newInitCommand(), newTargetsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level",
		"info", "logging level (debug, info, warn, error, fatal)")
}
