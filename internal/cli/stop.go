package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/daemon"
)

func newStopCommand(flags *globalFlags, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running push --every process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, version)
			if err != nil {
				return err
			}

			pidPath, err := daemon.DefaultPIDPath(cfg.StateDir)
			if err != nil {
				return err
			}
			pidFile := daemon.NewPIDFile(pidPath)

			running, err := pidFile.IsRunning()
			if err != nil || !running {
				fmt.Fprintln(cmd.OutOrStdout(), "No interval push is running.")
				return nil
			}

			if err := pidFile.Kill(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop signal sent; a push in progress finishes first.")
			return nil
		},
	}
}
