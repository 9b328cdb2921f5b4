package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"volley/internal/control"
	"volley/internal/runner"
	"volley/internal/stats"
)

func sampleReport() *control.Report {
	fired := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	outcomes := []runner.Outcome{
		{Index: 0, Label: "a@x.io", Kind: runner.KindSuccess, Success: true, StatusCode: 200, Duration: 50 * time.Millisecond},
		{Index: 1, Label: "b@x.io", Kind: runner.KindBadResponse, StatusCode: 401, Duration: 60 * time.Millisecond, Snippet: "denied", Error: "unexpected status 401"},
		{Index: 2, Label: "c@x.io", Kind: runner.KindTransportError, StatusCode: runner.SentinelStatus, Error: "connection refused", QueueWait: 5 * time.Millisecond},
	}
	cfg := control.DefaultConfig()
	cfg.URL = "http://localhost:8080/login"
	cfg.Method = "POST"

	return &control.Report{
		ID:        "run-1",
		StartedAt: fired.Add(-time.Second),
		Config:    cfg,
		Result: &runner.Result{
			Outcomes:     outcomes,
			FiredAt:      fired,
			Ready:        4,
			Unfinished:   1,
			LaunchSpread: 2 * time.Millisecond,
			TimedOut:     true,
		},
		Summary: stats.Summarize(outcomes, stats.DefaultOptions()),
	}
}

func TestWriteCSV(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, r.Result.FiredAt, r.Result.Outcomes); err != nil {
		t.Fatalf("Failed to write csv: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read csv back: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("Expected header plus 3 rows, got: %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(CSVHeader, ",") {
		t.Errorf("Unexpected header: %v", records[0])
	}

	row := records[2]
	if row[0] != "2026-01-02T03:04:05Z" || row[1] != "b@x.io" || row[2] != "401" || row[3] != "false" || row[4] != "60" {
		t.Errorf("Unexpected row: %v", row)
	}
	if records[3][2] != "-1" || records[3][7] != "transport_error" || records[3][8] != "5" {
		t.Errorf("Expected transport failure with sentinel status, got: %v", records[3])
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("Failed to write json: %v", err)
	}

	var s Summary
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if s.Total != 3 || s.Success != 1 {
		t.Errorf("Expected 1 of 3, got: %d of %d", s.Success, s.Total)
	}
	if s.Workers != 4 || s.Unfinished != 1 || !s.TimedOut {
		t.Errorf("Expected the shortfall to be exported, got: %+v", s)
	}
	if s.MaxMs != 60 {
		t.Errorf("Expected max 60ms, got: %v", s.MaxMs)
	}
	if len(s.FailureSample) != 2 || s.FailureSample[0].Label != "b@x.io" {
		t.Errorf("Expected failures in encounter order, got: %+v", s.FailureSample)
	}
}

func TestFileSink_Save(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "burst")
	if err := (FileSink{Prefix: prefix}).Save(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	for _, name := range []string{prefix + ".csv", prefix + "_summary.json"} {
		if info, err := os.Stat(name); err != nil || info.Size() == 0 {
			t.Errorf("Expected %s to be written, got: %v", name, err)
		}
	}
}

func TestFileSink_NoPrefix(t *testing.T) {
	if err := (FileSink{}).Save(context.Background(), sampleReport()); err != nil {
		t.Errorf("Expected no-op, got: %v", err)
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, sampleReport())
	out := buf.String()

	for _, want := range []string{
		"run-1",
		"POST http://localhost:8080/login",
		"Requests       : 3",
		"P95",
		"INCOMPLETE BURST",
		"Unfinished    : 1",
		"b@x.io -> unexpected status 401 code:401",
		"c@x.io -> connection refused code:-1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFileSink_SavesInterruptedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := control.DefaultConfig()
	cfg.URL = "http://localhost:8080/fast"
	cfg.Workers = 2
	cfg.RequestTimeout = time.Second
	cfg.OverallTimeout = 5 * time.Second

	// Requests stay in flight until the test ends, so only the cancel can end the burst.
	hold := make(chan struct{})
	defer close(hold)

	c := control.NewController(cfg)
	c.Executor = runner.ExecutorFunc(func(execCtx context.Context, req runner.RequestDescriptor, timeout time.Duration) runner.Outcome {
		time.Sleep(30 * time.Millisecond)
		cancel()
		<-hold
		return runner.Outcome{Kind: runner.KindTransportError, StatusCode: runner.SentinelStatus}
	})
	prefix := filepath.Join(t.TempDir(), "interrupted")
	c.Sinks = []control.Sink{FileSink{Prefix: prefix}}

	r, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !r.Result.Interrupted {
		t.Error("Expected interrupted=true")
	}
	if _, err := os.Stat(prefix + ".csv"); err != nil {
		t.Errorf("Expected the partial run to be written, got: %v", err)
	}
}
