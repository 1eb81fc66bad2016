package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/domain"
	"github.com/Ning0612/davpush/internal/service"
)

func newPlanCommand(flags *globalFlags, version string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what push would do without changing the server",
		Args:  cobra.NoArgs,
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

			plan, err := svc.Plan(cmd.Context())
			if err != nil {
				return err
			}

			printPlan(cmd.OutOrStdout(), plan, all)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also list every local and remote entry")

	return cmd
}

func printPlan(w io.Writer, plan *service.Plan, all bool) {
	if all {
		printPaths(w, "LOCAL", plan.Local.Sorted())
		printPaths(w, "REMOTE", plan.Remote.Sorted())
	}
	printPaths(w, "MISSING FOLDERS", plan.Result.MissingFolders)
	printPaths(w, "MISSING FILES", plan.Result.MissingFiles)

	fmt.Fprintf(w, "%d local, %d remote, %d folder(s) and %d file(s) missing\n",
		plan.Result.LocalCount,
		plan.Result.RemoteCount,
		len(plan.Result.MissingFolders),
		len(plan.Result.MissingFiles),
	)
}

func printPaths(w io.Writer, title string, paths []domain.RelativePath) {
	fmt.Fprintf(w, "%s (%d):\n", title, len(paths))
	for _, p := range paths {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintln(w)
}
