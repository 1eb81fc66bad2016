package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/service"
	"github.com/Ning0612/davpush/internal/state"
)

func newHistoryCommand(flags *globalFlags, version string) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past push runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			cfg, err := loadConfig(flags, version)
			if err != nil {
				return err
			}

			var records []state.RunRecord
			if all {
				mgr, err := state.NewManager(cfg.StateDir)
				if err != nil {
					return err
				}
				defer mgr.Close()
				records, err = mgr.GetAllHistory(limit)
				if err != nil {
					return err
				}
			} else {
				svc, err := service.NewPushService(cfg)
				if err != nil {
					return err
				}
				defer svc.Close()
				records, err = svc.History(limit)
				if err != nil {
					return err
				}
			}

			printHistory(cmd.OutOrStdout(), records, all)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&all, "all", false, "Show runs for every target, not only the configured one")

	return cmd
}

func printHistory(w io.Writer, records []state.RunRecord, withTarget bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}

	headers := []string{"Started", "Status", "Duration", "Folders", "Files", "Failed", "Uploaded", "Error"}
	if withTarget {
		headers = append([]string{"Target"}, headers...)
	}

	table := newTable(w, headers)
	for _, r := range records {
		row := []string{
			humanize.Time(r.StartTime),
			r.Status,
			r.Duration().Round(time.Second).String(),
			fmt.Sprintf("%d/%d", r.FoldersCreated, r.MissingFolders),
			fmt.Sprintf("%d/%d", r.FilesUploaded, r.MissingFiles),
			strconv.Itoa(r.Failures),
			humanize.IBytes(uint64(r.BytesUploaded)),
			runError(r),
		}
		if withTarget {
			row = append([]string{r.Target}, row...)
		}
		table.Append(row)
	}
	table.Render()
}

func runError(r state.RunRecord) string {
	if r.Error == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", r.Phase, r.Error)
}
