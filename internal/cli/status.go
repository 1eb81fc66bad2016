package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/daemon"
	"github.com/Ning0612/davpush/internal/service"
)

func newStatusCommand(flags *globalFlags, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a push is running and the last successful run",
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

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Target:   %s\n", svc.Target())
			fmt.Fprintf(out, "Local:    %s\n", cfg.LocalDirectoryPath)

			if holder, err := svc.GetLockHolder(); err == nil {
				fmt.Fprintf(out, "Running:  run %s (PID %d on %s, started %s)\n",
					holder.RunID, holder.PID, holder.Hostname, humanize.Time(holder.StartTime))
			} else {
				fmt.Fprintln(out, "Running:  no")
			}

			if pidPath, err := daemon.DefaultPIDPath(cfg.StateDir); err == nil {
				pidFile := daemon.NewPIDFile(pidPath)
				if running, _ := pidFile.IsRunning(); running {
					pid, _ := pidFile.Read()
					fmt.Fprintf(out, "Interval: PID %d\n", pid)
				}
			}

			last, err := svc.LastSuccess()
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Fprintln(out, "Last OK:  never")
			} else {
				fmt.Fprintf(out, "Last OK:  %s (%d file(s), %s)\n",
					humanize.Time(last.EndTime), last.FilesUploaded, humanize.IBytes(uint64(last.BytesUploaded)))
			}
			return nil
		},
	}
}
