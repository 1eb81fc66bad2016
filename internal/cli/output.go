package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/Ning0612/davpush/internal/domain"
)

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// printReport writes the final report of a push
func printReport(w io.Writer, report *domain.RunReport) {
	result := report.Result
	failures := report.Failures()

	foldersFailed := len(report.Folders) - report.FoldersCreated()
	filesFailed := len(report.Files) - report.FilesUploaded()

	table := newTable(w, []string{"", "Listed", "Missing", "Done", "Failed"})
	table.Append([]string{"local", strconv.Itoa(result.LocalCount), "", "", ""})
	table.Append([]string{"remote", strconv.Itoa(result.RemoteCount), "", "", ""})
	table.Append([]string{"folders", "",
		strconv.Itoa(len(result.MissingFolders)),
		strconv.Itoa(report.FoldersCreated()),
		strconv.Itoa(foldersFailed),
	})
	table.Append([]string{"files", "",
		strconv.Itoa(len(result.MissingFiles)),
		strconv.Itoa(report.FilesUploaded()),
		strconv.Itoa(filesFailed),
	})
	table.Render()

	if len(failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "FAILED (%d):\n", len(failures))
		ft := newTable(w, []string{"Path", "Error"})
		for _, f := range failures {
			ft.Append([]string{f.Path.String(), errorText(f.Err)})
		}
		ft.Render()
	}

	fmt.Fprintln(w)
	if report.Err != nil {
		fmt.Fprintf(w, "Run %s failed in %s phase: %v\n", report.RunID, report.Phase, report.Err)
		return
	}
	fmt.Fprintf(w, "Run %s: %s, %s uploaded in %s\n",
		report.RunID,
		report.Status(),
		humanize.IBytes(uint64(report.BytesUploaded())),
		report.EndTime.Sub(report.StartTime).Round(10*time.Millisecond),
	)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
