package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/councillor-bot/councillor-deploy/internal/config"
	domain "github.com/councillor-bot/councillor-deploy/internal/domain/deploy"
	"github.com/councillor-bot/councillor-deploy/internal/repository/history"
)

// errConfigExists is returned when init would overwrite an existing settings file.
var errConfigExists = errors.New("settings file already exists, use --force to overwrite")

// newInitCommand returns the subcommand writing the default settings file.
func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings file",
		Long: "Write a settings file with the built-in runner and bot targets. " +
			"Edit the hosts, paths and build recipes to match your environment.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(configPath); err == nil {
					return fmt.Errorf("%w: %s", errConfigExists, configPath)
				}
			}

			if err := config.Save(configPath, config.Default()); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")

	return cmd
}

// newTargetsCommand returns the subcommand listing targets and their last deploys.
func newTargetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List configured deploy targets and their last deploys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			records, err := history.NewFileRepository(cfg.HistoryFile).Load(cmd.Context())
			if err != nil && !errors.Is(err, history.ErrNotFound) {
				return err
			}

			names := make([]string, 0, len(cfg.Targets))
			for name := range cfg.Targets {
				names = append(names, name)
			}

			sort.Strings(names)

			out := cmd.OutOrStdout()

			for _, name := range names {
				target := cfg.Targets[name]

				_, _ = fmt.Fprintf(out, "%s\t%s@%s\t%s\t%s\n",
					name, target.User, target.Host, target.RemotePath, target.Service)
				_, _ = fmt.Fprintf(out, "\tlast deploy: %s\n", formatRecord(records[name]))
			}

			return nil
		},
	}
}

// formatRecord renders a history record for the targets listing.
func formatRecord(record *domain.Record) string {
	if record == nil {
		return "never"
	}

	by := "unknown"
	if record.DeployedBy != nil {
		by = fmt.Sprintf("%s@%s", record.DeployedBy.Username, record.DeployedBy.Hostname)
	}

	return fmt.Sprintf("%s at %s by %s",
		record.Version, record.Timestamp.Format("2006-01-02 15:04:05 MST"), by)
}
