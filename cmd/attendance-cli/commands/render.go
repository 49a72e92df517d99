package commands

import (
	"attendance-backend/internal/acquisition"
	"attendance-backend/internal/store"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02 Jan 2006 15:04")
}

func formatMetadata(metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%s", k, metadata[k])
	}
	return strings.Join(pairs, ", ")
}

func renderRecords(out io.Writer, records []store.Record) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Subject", "Present", "Absent", "Total", "Percent", "Can miss", "Required"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Subject,
			r.Present,
			r.Absent,
			r.Total,
			fmt.Sprintf("%.2f%%", r.Percent),
			r.Margin,
			r.Required,
		})
	}
	t.Render()
}

func renderUpcoming(out io.Writer, upcoming []store.Upcoming) {
	if len(upcoming) == 0 {
		return
	}
	t := newTable(out)
	t.AppendHeader(table.Row{"Upcoming", "Start", "End", "Details"})
	for _, u := range upcoming {
		t.AppendRow(table.Row{
			u.Name,
			formatTime(u.Start),
			formatTime(u.End),
			formatMetadata(u.Metadata),
		})
	}
	t.Render()
}

func renderSnapshot(out io.Writer, snapshot store.Snapshot) {
	switch snapshot.State {
	case store.StatePending:
		fmt.Fprintf(out, "%s: pending, no acquisition has completed yet\n", snapshot.Identity)
		return
	case store.StateEmpty:
		fmt.Fprintf(out, "%s (%s): the portal had no attendance as of %s\n", snapshot.Identity, snapshot.DisplayName, formatTime(snapshot.FetchedAt))
	case store.StateSuccess:
		fmt.Fprintf(out, "%s (%s): fetched %s\n", snapshot.Identity, snapshot.DisplayName, formatTime(snapshot.FetchedAt))
		renderRecords(out, snapshot.Records)
	}
	renderUpcoming(out, snapshot.Upcoming)
}

func renderResult(out io.Writer, result acquisition.Result) {
	if result.Failed() {
		fmt.Fprintf(out, "%s: failed while %s (%s): %v\n", result.Identity, result.Stage, result.Reason, result.Err)
		return
	}
	fmt.Fprintf(out, "%s (%s): %s, %d subjects\n", result.Identity, result.DisplayName, result.Outcome, len(result.Records))
	if len(result.Records) > 0 {
		renderRecords(out, result.Records)
	}
	renderUpcoming(out, result.Upcoming)
}
