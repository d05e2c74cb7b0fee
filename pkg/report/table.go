package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/kisy/netan/pkg/model"
	"github.com/kisy/netan/pkg/stats"
)

// WriteRequests renders the request details table for a snapshot.
func WriteRequests(w io.Writer, snap model.MetricsSnapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Resource", "Type", "Size", "Duration"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, r := range snap.Records {
		table.Append([]string{
			r.Name,
			r.Kind,
			stats.FormatBytes(r.TransferredBytes),
			fmt.Sprintf("%.2f ms", float64(r.DurationMs)),
		})
	}
	table.SetFooter([]string{
		fmt.Sprintf("%d requests", len(snap.Records)),
		"",
		stats.FormatBytes(snap.TotalBytes),
		fmt.Sprintf("avg %.2f ms", snap.AverageDurationMs),
	})
	table.Render()
}

// WriteNetworks renders the network directory with signal bars.
func WriteNetworks(w io.Writer, networks []model.Network) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "SSID", "Security", "Signal", "Location"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	for i, n := range networks {
		loc := "-"
		if n.Coordinates != nil {
			loc = fmt.Sprintf("%.4f, %.4f", n.Coordinates.Latitude, n.Coordinates.Longitude)
		}
		table.Append([]string{
			strconv.Itoa(i),
			n.SSID,
			string(n.Security),
			signalBars(n.Strength),
			loc,
		})
	}
	table.Render()
}

func signalBars(strength int) string {
	bars := []rune("____")
	for i := 0; i < strength && i < len(bars); i++ {
		bars[i] = '|'
	}
	return string(bars)
}
