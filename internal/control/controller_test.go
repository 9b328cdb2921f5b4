package control

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"volley/internal/dummy"
	"volley/internal/runner"
	"volley/internal/stats"
)

func writeUsers(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write users file: %v", err)
	}
	return path
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.RequestTimeout = 2 * time.Second
	cfg.OverallTimeout = 5 * time.Second
	return cfg
}

type memorySink struct {
	reports []*Report
	err     error
}

func (s *memorySink) Save(ctx context.Context, r *Report) error {
	s.reports = append(s.reports, r)
	return s.err
}

func TestConfig_Validate(t *testing.T) {
	base := testConfig("http://localhost:8080/fast")

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"missing url", func(c *Config) { c.URL = "" }, false},
		{"relative url", func(c *Config) { c.URL = "/login" }, false},
		{"templated url", func(c *Config) { c.URL = "{{field \"host\"}}/login" }, true},
		{"zero workers without data", func(c *Config) { c.Workers = 0 }, false},
		{"zero workers with data", func(c *Config) { c.Workers = 0; c.DataFile = "users.csv" }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, false},
		{"overall below request", func(c *Config) { c.OverallTimeout = time.Second }, false},
		{"degraded without ready timeout", func(c *Config) { c.Degraded = true }, false},
		{"degraded with ready timeout", func(c *Config) { c.Degraded = true; c.ReadyTimeout = time.Second }, true},
		{"percentile too high", func(c *Config) { c.Percentile = 101 }, false},
		{"negative in-flight", func(c *Config) { c.MaxInFlight = -2 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Expected valid config, got: %v", err)
			}
			if !tt.ok && !errors.Is(err, runner.ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got: %v", err)
			}
		})
	}
}

func TestController_PrepareBindsRows(t *testing.T) {
	cfg := testConfig("http://localhost:8080/login?u={{index}}")
	cfg.Method = "post"
	cfg.Workers = 0
	cfg.DataFile = writeUsers(t, "email,password\nana@example.com,one\nbob@example.com,two\n")
	cfg.Body = `{"email":"{{json (field "email")}}","password":"{{json (field "password")}}"}`
	cfg.Headers = map[string]string{"Tenant-Id": "tenant-123", "X-User": "{{label}}"}

	tasks, err := NewController(cfg).Prepare()
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected one task per row, got: %d", len(tasks))
	}

	task := tasks[1]
	if task.Label != "bob@example.com" {
		t.Errorf("Expected label from first column, got: %s", task.Label)
	}
	if task.Request.Method != "POST" {
		t.Errorf("Expected upper-cased method, got: %s", task.Request.Method)
	}
	if task.Request.URL != "http://localhost:8080/login?u=1" {
		t.Errorf("Unexpected url: %s", task.Request.URL)
	}
	if string(task.Request.Body) != `{"email":"bob@example.com","password":"two"}` {
		t.Errorf("Unexpected body: %s", task.Request.Body)
	}
	if task.Request.Headers["X-User"] != "bob@example.com" || task.Request.Headers["Tenant-Id"] != "tenant-123" {
		t.Errorf("Unexpected headers: %v", task.Request.Headers)
	}
}

func TestController_PrepareCapsWorkersToRows(t *testing.T) {
	cfg := testConfig("http://localhost:8080/fast")
	cfg.DataFile = writeUsers(t, "email,password\na,1\nb,2\nc,3\n")

	cfg.Workers = 2
	tasks, err := NewController(cfg).Prepare()
	if err != nil || len(tasks) != 2 {
		t.Errorf("Expected 2 tasks, got: %d (%v)", len(tasks), err)
	}

	cfg.Workers = 50
	tasks, err = NewController(cfg).Prepare()
	if err != nil || len(tasks) != 3 {
		t.Errorf("Expected tasks capped to 3 rows, got: %d (%v)", len(tasks), err)
	}
}

func TestController_ConfigErrorSpawnsNothing(t *testing.T) {
	var calls atomic.Int64
	cfg := testConfig("http://localhost:8080/fast")
	cfg.Workers = 0

	c := NewController(cfg)
	c.Executor = runner.ExecutorFunc(func(ctx context.Context, req runner.RequestDescriptor, timeout time.Duration) runner.Outcome {
		calls.Add(1)
		return runner.Outcome{}
	})
	sink := &memorySink{}
	c.Sinks = []Sink{sink}

	report, err := c.Run(context.Background())
	if !errors.Is(err, runner.ErrNoTasks) {
		t.Errorf("Expected ErrNoTasks, got: %v", err)
	}
	if report != nil || calls.Load() != 0 || len(sink.reports) != 0 {
		t.Error("Expected no report, no request and no sink call")
	}
}

func TestController_PrepareTemplateError(t *testing.T) {
	cfg := testConfig("http://localhost:8080/fast")
	cfg.Body = "{{ .Nope "
	if _, err := NewController(cfg).Prepare(); !errors.Is(err, runner.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got: %v", err)
	}
}

func TestController_PrepareRejectsRenderedScheme(t *testing.T) {
	cfg := testConfig(`{{randomChoice "ftp://example.com/file"}}`)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected templated url to pass Validate, got: %v", err)
	}
	if _, err := NewController(cfg).Prepare(); !errors.Is(err, runner.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for a rendered ftp url, got: %v", err)
	}
}

func TestController_LoginBurst(t *testing.T) {
	server := httptest.NewServer(dummy.Handler())
	defer server.Close()

	cfg := testConfig(server.URL + "/login")
	cfg.Method = "POST"
	cfg.Workers = 0
	cfg.DataFile = writeUsers(t, "email,password\na@x.io,p1\nb@x.io,p2\nc@x.io,bad\nd@x.io,p4\n")
	cfg.Headers = map[string]string{"Content-Type": "application/json"}
	cfg.Body = `{"email":"{{json (field "email")}}","password":"{{json (field "password")}}"}`
	cfg.Expect = "token"

	live := stats.NewLive(4)
	sink := &memorySink{}
	c := NewController(cfg)
	c.Observer = live
	c.Sinks = []Sink{sink}

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	s := report.Summary
	if s.Total != 4 || s.Success != 3 {
		t.Errorf("Expected 3 of 4 logins to succeed, got: %d of %d", s.Success, s.Total)
	}
	if s.SuccessRatio != 0.75 {
		t.Errorf("Expected 75%% success, got: %.2f", s.SuccessPct())
	}
	if len(s.FailureSample) != 1 || s.FailureSample[0].Label != "c@x.io" || s.FailureSample[0].StatusCode != 401 {
		t.Errorf("Expected the rejected login in the sample, got: %+v", s.FailureSample)
	}
	if report.Result.TimedOut {
		t.Error("Expected timedOut=false")
	}
	if len(sink.reports) != 1 || sink.reports[0] != report {
		t.Error("Expected the report to reach the sink")
	}
	if snap := live.Snapshot(); snap.Done != 4 || !snap.Fired {
		t.Errorf("Expected observer to see the whole burst, got: %+v", snap)
	}
	if report.ID == "" {
		t.Error("Expected a run id")
	}
}

func TestController_PerRequestTimeoutIsAnOutcome(t *testing.T) {
	server := httptest.NewServer(dummy.Handler())
	defer server.Close()

	cfg := testConfig(server.URL + "/slow")
	cfg.Workers = 3
	cfg.RequestTimeout = 50 * time.Millisecond
	cfg.OverallTimeout = 2 * time.Second

	report, err := NewController(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Result.TimedOut {
		t.Error("Expected per-request timeouts not to time out the run")
	}
	if report.Summary.Total != 3 || report.Summary.Success != 0 {
		t.Errorf("Expected 3 failed outcomes, got: %d total / %d success", report.Summary.Total, report.Summary.Success)
	}
	if report.Summary.FailuresByKind[runner.KindTimeout] != 3 {
		t.Errorf("Expected 3 timeouts, got: %v", report.Summary.FailuresByKind)
	}
}

func TestController_SinkErrorKeepsReport(t *testing.T) {
	server := httptest.NewServer(dummy.Handler())
	defer server.Close()

	cfg := testConfig(server.URL + "/fast")
	cfg.Workers = 2

	c := NewController(cfg)
	broken := &memorySink{err: errors.New("disk full")}
	good := &memorySink{}
	c.Sinks = []Sink{broken, good}

	report, err := c.Run(context.Background())
	if err == nil {
		t.Error("Expected the sink error to be returned")
	}
	if report == nil || report.Summary.Total != 2 {
		t.Fatal("Expected a complete report despite the sink error")
	}
	if len(good.reports) != 1 {
		t.Error("Expected later sinks to still receive the report")
	}
}
