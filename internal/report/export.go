package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"volley/internal/control"
	"volley/internal/runner"
)

// CSVHeader is the per-outcome record layout.
var CSVHeader = []string{
	"firedAt", "label", "statusCode", "success", "durationMs",
	"snippet", "error", "kind", "queueWaitMs",
}

// WriteCSV writes one record per outcome, stamped with the fire instant.
func WriteCSV(w io.Writer, firedAt time.Time, outcomes []runner.Outcome) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	fired := firedAt.UTC().Format(time.RFC3339Nano)
	for _, o := range outcomes {
		record := []string{
			fired,
			o.Label,
			strconv.Itoa(o.StatusCode),
			strconv.FormatBool(o.Success),
			strconv.FormatInt(o.Duration.Milliseconds(), 10),
			o.Snippet,
			o.Error,
			string(o.Kind),
			strconv.FormatInt(o.QueueWait.Milliseconds(), 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Summary is the JSON document written next to the CSV.
type Summary struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	FiredAt   time.Time `json:"fired_at"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Workers   int       `json:"workers"`

	Total          int     `json:"total"`
	Success        int     `json:"success"`
	SuccessPct     float64 `json:"success_pct"`
	MeanMs         float64 `json:"mean_ms"`
	PercentileRank float64 `json:"percentile_rank"`
	PercentileMs   float64 `json:"percentile_ms"`
	MaxMs          float64 `json:"max_ms"`

	LaunchSpreadMs float64 `json:"launch_spread_ms"`
	Ready          int     `json:"ready"`
	NotStarted     int     `json:"not_started"`
	Unfinished     int     `json:"unfinished"`
	TimedOut       bool    `json:"timed_out"`
	ReadyTimedOut  bool    `json:"ready_timed_out,omitempty"`
	Interrupted    bool    `json:"interrupted,omitempty"`

	FailuresByKind map[runner.OutcomeKind]int `json:"failures_by_kind,omitempty"`
	FailureSample  []runner.Outcome           `json:"failure_sample,omitempty"`
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// NewSummary flattens a report for JSON export.
func NewSummary(r *control.Report) Summary {
	s := r.Summary
	out := Summary{
		ID:             r.ID,
		StartedAt:      r.StartedAt,
		URL:            r.Config.URL,
		Method:         r.Config.Method,
		Total:          s.Total,
		Success:        s.Success,
		SuccessPct:     s.SuccessPct(),
		MeanMs:         toMs(s.Mean),
		PercentileRank: s.PercentileRank,
		PercentileMs:   toMs(s.Percentile),
		MaxMs:          toMs(s.Max),
		FailuresByKind: s.FailuresByKind,
		FailureSample:  s.FailureSample,
	}
	if res := r.Result; res != nil {
		out.FiredAt = res.FiredAt
		out.Workers = len(res.Outcomes) + res.Shortfall()
		out.LaunchSpreadMs = toMs(res.LaunchSpread)
		out.Ready = res.Ready
		out.NotStarted = res.NotStarted
		out.Unfinished = res.Unfinished
		out.TimedOut = res.TimedOut
		out.ReadyTimedOut = res.ReadyTimedOut
		out.Interrupted = res.Interrupted
	}
	return out
}

func WriteJSON(w io.Writer, r *control.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewSummary(r))
}

// FileSink writes <Prefix>.csv and <Prefix>_summary.json.
type FileSink struct {
	Prefix string
}

func (f FileSink) Save(ctx context.Context, r *control.Report) error {
	if f.Prefix == "" || r.Result == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFile(f.Prefix+".csv", func(w io.Writer) error {
		return WriteCSV(w, r.Result.FiredAt, r.Result.Outcomes)
	}); err != nil {
		return err
	}
	return writeFile(f.Prefix+"_summary.json", func(w io.Writer) error {
		return WriteJSON(w, r)
	})
}

func writeFile(name string, fn func(w io.Writer) error) error {
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := fn(file); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return file.Close()
}

var _ control.Sink = FileSink{}
