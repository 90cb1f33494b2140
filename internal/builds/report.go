package builds

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

const jsonIndentConstant = "  "

var (
	statusTableHeader  = []string{"Project", "Recipe", "Series/Arch", "State", "Revision", "Age", "Store Status"}
	requestTableHeader = []string{"Project", "Recipe", "Requested", "Reason"}
)

// humanizeSince renders the elapsed time since a build finished, for example
// "3 days ago".
func humanizeSince(now time.Time, buildTime time.Time) string {
	return humanize.RelTime(buildTime, now, "ago", "from now")
}

// RenderStatuses prints the build statuses as a table, with any detected log
// errors listed underneath, or as JSON.
func RenderStatuses(outputWriter io.Writer, statuses []BuildStatus, asJSON bool) error {
	if asJSON {
		return renderJSON(outputWriter, statuses)
	}

	table := tablewriter.NewWriter(outputWriter)
	table.SetHeader(statusTableHeader)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, status := range statuses {
		table.Append([]string{
			status.Project,
			status.Recipe,
			status.SeriesArch,
			status.State,
			status.Revision,
			status.Age,
			status.StoreUploadStatus,
		})
	}
	table.Render()

	for _, status := range statuses {
		if len(status.DetectedErrors) == 0 {
			continue
		}
		fmt.Fprintf(outputWriter, "\nerrors in %s (%s):\n", status.Recipe, status.SeriesArch)
		for _, errorLine := range status.DetectedErrors {
			fmt.Fprintf(outputWriter, "  %s\n", errorLine)
		}
	}
	return nil
}

// RenderRequests prints build request outcomes as a table or as JSON.
func RenderRequests(outputWriter io.Writer, results []RequestResult, asJSON bool) error {
	if asJSON {
		return renderJSON(outputWriter, results)
	}

	table := tablewriter.NewWriter(outputWriter)
	table.SetHeader(requestTableHeader)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, result := range results {
		requestedMarker := "no"
		if result.Requested {
			requestedMarker = "yes"
		}
		table.Append([]string{result.Project, result.Recipe, requestedMarker, result.Reason})
	}
	table.Render()
	return nil
}

func renderJSON(outputWriter io.Writer, payload any) error {
	encoder := json.NewEncoder(outputWriter)
	encoder.SetIndent("", jsonIndentConstant)
	return encoder.Encode(payload)
}
