package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"volley/internal/control"
	"volley/internal/runner"
	"volley/internal/tui/styles"
)

const rule = "======================================================================"

func fmtMs(d time.Duration) string {
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}

// Render writes the console summary of a finished run.
func Render(w io.Writer, r *control.Report) {
	s := r.Summary

	fmt.Fprintf(w, "\n📊 BURST RESULTS\n%s\n", rule)
	fmt.Fprintf(w, "Run ID         : %s\n", r.ID)
	fmt.Fprintf(w, "Target         : %s %s\n", r.Config.Method, r.Config.URL)

	if res := r.Result; res != nil {
		fmt.Fprintf(w, "Workers        : %d (ready %d)\n", len(res.Outcomes)+res.Shortfall(), res.Ready)
		fmt.Fprintf(w, "Fired At       : %s\n", res.FiredAt.Format(time.RFC3339Nano))
		fmt.Fprintf(w, "Launch Spread  : %s\n", fmtMs(res.LaunchSpread))
	}

	fmt.Fprintf(w, "Requests       : %d\n", s.Total)
	fmt.Fprintf(w, "Success        : %d (%s)\n", s.Success,
		styles.RatioStyle(s.SuccessPct()).Render(fmt.Sprintf("%.2f%%", s.SuccessPct())))
	fmt.Fprintf(w, "Failures       : %d\n", s.Failed)

	fmt.Fprintf(w, "\n⏱️  RESPONSE TIMES [All Outcomes]\n")
	fmt.Fprintf(w, "   Mean : %s\n", fmtMs(s.Mean))
	fmt.Fprintf(w, "   P%-3s : %s\n", trimFloat(s.PercentileRank), fmtMs(s.Percentile))
	fmt.Fprintf(w, "   Max  : %s\n", fmtMs(s.Max))

	if res := r.Result; res != nil && (res.TimedOut || res.ReadyTimedOut || res.Interrupted || res.Shortfall() > 0) {
		fmt.Fprintf(w, "\n%s\n", styles.Warn.Render("⚠️  INCOMPLETE BURST"))
		if res.ReadyTimedOut {
			fmt.Fprintf(w, "   Ready phase timed out; fired with %d workers\n", res.Ready)
		}
		if res.TimedOut {
			fmt.Fprintf(w, "   Overall timeout reached before every worker finished\n")
		}
		if res.Interrupted {
			fmt.Fprintf(w, "   Interrupted before every worker finished\n")
		}
		fmt.Fprintf(w, "   Never started : %d\n", res.NotStarted)
		fmt.Fprintf(w, "   Unfinished    : %d\n", res.Unfinished)
	}

	if s.Failed > 0 {
		fmt.Fprintf(w, "\n%s\n", styles.Error.Render("❌ FAILURE SUMMARY"))
		kinds := make([]string, 0, len(s.FailuresByKind))
		for k := range s.FailuresByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "   %d x %s\n", s.FailuresByKind[runner.OutcomeKind(k)], k)
		}
		fmt.Fprintf(w, "Sample errors:\n")
		for _, o := range s.FailureSample {
			fmt.Fprintf(w, " - %s -> %s code:%d\n", o.Label, failureText(o), o.StatusCode)
		}
	}
	fmt.Fprintf(w, "%s\n", rule)
}

func failureText(o runner.Outcome) string {
	if o.Error != "" {
		return o.Error
	}
	return string(o.Kind)
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
