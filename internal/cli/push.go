package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/service"
)

type pushOptions struct {
	every       time.Duration
	concurrency int
}

func newPushCommand(flags *globalFlags, version string) *cobra.Command {
	opts := &pushOptions{}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Create missing folders and upload missing files",
		Long: `Push scans the local directory and the remote directory, then creates
every missing remote folder and uploads every missing file.

Failed folders or files are listed in the report but do not make the
command fail; only connectivity, listing and local access errors do.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.every < 0 {
				return fmt.Errorf("--every must not be negative")
			}
			if opts.concurrency < 0 {
				return fmt.Errorf("--concurrency must not be negative")
			}
			return runPushWith(cmd, flags, version, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.every, "every", 0, "Repeat the push on this interval until interrupted (e.g. 15m)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Parallel requests; overrides concurrency")

	return cmd
}

func runPushWith(cmd *cobra.Command, flags *globalFlags, version string, opts *pushOptions) error {
	cfg, err := loadConfig(flags, version)
	if err != nil {
		return err
	}
	if opts.concurrency > 0 {
		cfg.Concurrency = opts.concurrency
	}

	svc, err := service.NewPushService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if opts.every > 0 {
		return runInterval(cmd.Context(), cmd, svc, opts.every)
	}

	report, err := svc.Push(cmd.Context())
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	return err
}

// runInterval pushes until ctx is cancelled, e.g. by SIGINT or davpush stop
func runInterval(ctx context.Context, cmd *cobra.Command, svc *service.PushService, every time.Duration) error {
	interval, err := service.NewIntervalService(svc)
	if err != nil {
		return err
	}

	if err := interval.Start(ctx, every); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pushing to %s every %s. Press Ctrl+C to stop.\n", svc.Target(), every)

	<-interval.Done()

	status := interval.Status()
	if stats := status.SchedulerStats; stats != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped after %d run(s): %d completed, %d failed.\n",
			stats.TotalRuns, stats.SuccessfulRuns, stats.FailedRuns)
	}
	return nil
}
