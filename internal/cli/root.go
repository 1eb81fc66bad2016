// Package cli implements the davpush command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/config"
	"github.com/Ning0612/davpush/internal/logger"
)

// globalFlags are shared by every command
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the davpush command tree
func NewRootCommand(version string) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "davpush",
		Short: "Push a local directory tree to a WebDAV server",
		Long: `davpush compares a local directory with a directory on a WebDAV server
and creates every folder and uploads every file that is missing remotely.
Nothing is ever deleted or overwritten on the server.`,
		Version: version,

		// main prints the error and picks the exit code
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigFile, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log_level")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (text, json); overrides log_format")

	pushCmd := newPushCommand(flags, version)
	rootCmd.AddCommand(
		pushCmd,
		newPlanCommand(flags, version),
		newInitCommand(flags),
		newHistoryCommand(flags, version),
		newStatusCommand(flags, version),
		newStopCommand(flags, version),
		newUnlockCommand(flags, version),
		newKeyringCommand(),
	)

	// Running davpush without a subcommand pushes once
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runPushWith(cmd, flags, version, &pushOptions{})
	}

	return rootCmd
}

// loadConfig reads the configuration, applies flag overrides and starts
// the global logger
func loadConfig(flags *globalFlags, version string) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Fields = []any{"version", version}
	if err := logger.Init(logCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Get().Debug("configuration loaded", "path", cfg.Path, "server_url", cfg.ServerURL)
	return cfg, nil
}
