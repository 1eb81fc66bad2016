package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/service"
)

func newUnlockCommand(flags *globalFlags, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Remove a leftover run lock",
		Long: `Remove the run lock left behind by a push that did not exit cleanly.
Only use this when no other davpush process is running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, version)
			if err != nil {
				return err
			}

			svc, err := service.NewPushService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			if !svc.IsLocked() {
				fmt.Fprintln(cmd.OutOrStdout(), "No run lock is held.")
				return nil
			}
			if err := svc.ForceUnlock(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Run lock removed.")
			return nil
		},
	}
}
