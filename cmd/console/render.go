package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aluiziolira/go-admin-console/console"
	"github.com/aluiziolira/go-admin-console/models"
	"github.com/c2h5oh/datasize"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func renderTargets(w io.Writer, t *models.Targets) {
	fmt.Fprintf(w, "Spiders:   %s\n", joinOrDash(t.Spiders))
	fmt.Fprintf(w, "Countries: %s\n", joinOrDash(t.Countries))
}

func renderStatus(w io.Writer, s console.State) {
	switch {
	case s.Scraping == nil && s.ScrapingErr == "":
		fmt.Fprintln(w, "Scraping status: unknown")
	case s.Scraping != nil:
		fmt.Fprintf(w, "Scraping status: %s (%d active)\n", s.Scraping.SystemStatus, s.Scraping.TotalActive)
	}
	if s.ScrapingErr != "" {
		fmt.Fprintf(w, "Status error: %s\n", s.ScrapingErr)
	}
	renderTasks(w, s.ActiveTasks())
}

func renderTasks(w io.Writer, tasks []models.ScrapingTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No active tasks")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TASK\tSTATUS\tSPIDERS\tCOUNTRIES\tJOBS\tPAGES\tSTARTED\tERROR")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			t.TaskID, t.Status, joinOrDash(t.Spiders), joinOrDash(t.Countries),
			t.MaxJobs, t.MaxPages, formatTimestamp(t.StartedAt), orDash(t.Error))
	}
	tw.Flush()
}

func renderLLM(w io.Writer, s console.State) {
	if s.LLMErr != "" {
		fmt.Fprintf(w, "Model status error: %s\n", s.LLMErr)
	}
	if s.LLM == nil {
		if s.LLMErr == "" {
			fmt.Fprintln(w, "Model status: unknown")
		}
		return
	}
	state := "not downloaded"
	switch {
	case s.LLM.Ready:
		state = "ready"
	case s.LLM.Downloaded:
		state = "downloaded"
	}
	size := "size unknown"
	if s.LLM.SizeGB > 0 {
		size = (datasize.ByteSize(s.LLM.SizeGB * float64(datasize.GB))).HumanReadable()
	}
	fmt.Fprintf(w, "Model %s: %s (%s)\n", s.LLM.ModelName, state, size)
}

func renderDetail(w io.Writer, d *models.TaskDetail) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Task:\t%s\n", d.TaskID)
	fmt.Fprintf(tw, "Status:\t%s\n", d.Status)
	fmt.Fprintf(tw, "Progress:\t%d%%\n", d.Progress)
	if d.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", d.Error)
	}
	if len(d.Result) > 0 && string(d.Result) != "null" {
		fmt.Fprintf(tw, "Result:\t%s\n", d.Result)
	}
	tw.Flush()
}

func renderLogs(w io.Writer, l *models.TaskLogs) {
	fmt.Fprintf(w, "== %s (%d lines, tail %d) ==\n", l.LogFile, l.Lines, l.Tail)
	fmt.Fprint(w, l.Content)
	if l.Content != "" && !strings.HasSuffix(l.Content, "\n") {
		fmt.Fprintln(w)
	}
}

func renderForm(w io.Writer, f console.Form) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Spiders:\t%s\n", joinOrDash(f.Spiders))
	fmt.Fprintf(tw, "Countries:\t%s\n", joinOrDash(f.Countries))
	fmt.Fprintf(tw, "Max jobs:\t%d\n", f.MaxJobs)
	fmt.Fprintf(tw, "Max pages:\t%d\n", f.MaxPages)
	tw.Flush()
}

func renderHistory(w io.Writer, entries []models.ActionEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recorded actions")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "AT\tACTION\tTARGET\tOUTCOME\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Local().Format(time.DateTime), e.Action, orDash(e.Target), e.Outcome, orDash(e.Detail))
	}
	tw.Flush()
}

func renderRecent(w io.Writer, tasks []models.ScrapingTask) {
	if len(tasks) == 0 {
		return
	}
	fmt.Fprintln(w, "Recently seen:")
	renderTasks(w, tasks)
}

func formatTimestamp(ts *models.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.DateTime)
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
