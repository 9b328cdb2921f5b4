// Package cli runs a burst headless and prints progress to a terminal.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"volley/internal/control"
	"volley/internal/report"
	"volley/internal/stats"
)

// Start prepares and dispatches one burst, printing a progress line until it
// completes and the summary afterwards.
func Start(ctx context.Context, c *control.Controller, out io.Writer) (*control.Report, error) {
	tasks, err := c.Prepare()
	if err != nil {
		return nil, err
	}

	printHeader(out, c.Config, len(tasks))

	live := stats.NewLive(len(tasks))
	c.Observer = live

	type done struct {
		report *control.Report
		err    error
	}
	finished := make(chan done, 1)
	go func() {
		r, err := c.Dispatch(ctx, tasks)
		finished <- done{r, err}
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprint(out, "\r"+progressLine(live.Snapshot()))
		case d := <-finished:
			fmt.Fprintln(out, "\r"+progressLine(live.Snapshot()))
			if d.report != nil {
				report.Render(out, d.report)
			}
			return d.report, d.err
		}
	}
}

func printHeader(w io.Writer, cfg control.Config, workers int) {
	fmt.Fprintf(w, "\n🚀 STARTING VOLLEY BURST\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target URL : %s\n", cfg.URL)
	fmt.Fprintf(w, "Method     : %s\n", strings.ToUpper(cfg.Method))
	fmt.Fprintf(w, "Workers    : %d\n", workers)
	if cfg.MaxInFlight > 0 {
		fmt.Fprintf(w, "In-flight  : %d\n", cfg.MaxInFlight)
	}
	fmt.Fprintf(w, "Timeout    : %s per request, %s overall\n", cfg.RequestTimeout, cfg.OverallTimeout)
	if cfg.ReadyTimeout > 0 {
		fmt.Fprintf(w, "Ready      : %s (degraded: %t)\n", cfg.ReadyTimeout, cfg.Degraded)
	}
	if cfg.DataFile != "" {
		fmt.Fprintf(w, "Data       : %s\n", cfg.DataFile)
	}
	fmt.Fprintf(w, "======================================================================\n\n")
}

func progressLine(s stats.Snapshot) string {
	if !s.Fired {
		pct := 0.0
		if s.Workers > 0 {
			pct = float64(s.Ready) / float64(s.Workers)
		}
		return fmt.Sprintf("%s READY %d/%d", progressBar(pct, 20), s.Ready, s.Workers)
	}

	pct := 0.0
	if s.Workers > 0 {
		pct = float64(s.Done) / float64(s.Workers)
	}
	return fmt.Sprintf("%s %3.0f%% | FIRED | Done: %d/%d | OK: %d | Err: %d | P50: %s | P99: %s",
		progressBar(pct, 20), pct*100,
		s.Done, s.Workers,
		s.Success, s.Fail,
		s.P50.Round(time.Millisecond), s.P99.Round(time.Millisecond),
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
