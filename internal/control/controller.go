// Package control wires a Config into a synchronized burst and hands the
// result to the aggregator and to any configured sinks.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"volley/internal/dataset"
	"volley/internal/runner"
	"volley/internal/stats"
)

// Report is everything produced by one run.
type Report struct {
	ID        string           `json:"id"`
	StartedAt time.Time        `json:"started_at"`
	Config    Config           `json:"config"`
	Result    *runner.Result   `json:"result"`
	Summary   stats.RunSummary `json:"summary"`
}

// Sink receives finished reports, e.g. for persistence.
type Sink interface {
	Save(ctx context.Context, r *Report) error
}

type Controller struct {
	Config Config

	// Executor overrides the HTTP executor built from Config.
	Executor runner.Executor
	Observer runner.Observer
	Sinks    []Sink
	Logger   *slog.Logger

	templates *runner.TemplateEngine
}

func NewController(cfg Config) *Controller {
	return &Controller{
		Config:    cfg,
		templates: runner.NewTemplateEngine(),
	}
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Run prepares tasks and dispatches them.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	tasks, err := c.Prepare()
	if err != nil {
		return nil, err
	}
	return c.Dispatch(ctx, tasks)
}

// Prepare validates the config and renders one WorkerTask per worker. No
// worker exists yet, so any error here is a configuration error.
func (c *Controller) Prepare() ([]runner.WorkerTask, error) {
	cfg := c.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.templates == nil {
		c.templates = runner.NewTemplateEngine()
	}

	n := cfg.Workers
	var table *dataset.Table
	if cfg.DataFile != "" {
		t, err := dataset.Load(cfg.DataFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", runner.ErrInvalidConfig, err)
		}
		if len(t.Rows) == 0 {
			return nil, fmt.Errorf("%w: %w: %s has no usable rows", runner.ErrInvalidConfig, runner.ErrNoTasks, cfg.DataFile)
		}
		if n == 0 || n > len(t.Rows) {
			n = len(t.Rows)
		}
		table = t
	}

	urlTmpl, err := c.templates.Parse("url", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: url template: %v", runner.ErrInvalidConfig, err)
	}
	bodyTmpl, err := c.templates.Parse("body", cfg.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: body template: %v", runner.ErrInvalidConfig, err)
	}
	headerTmpls := make(map[string]*template.Template, len(cfg.Headers))
	for k, v := range cfg.Headers {
		t, err := c.templates.Parse("header "+k, v)
		if err != nil {
			return nil, fmt.Errorf("%w: header %s template: %v", runner.ErrInvalidConfig, k, err)
		}
		headerTmpls[k] = t
	}

	tasks := make([]runner.WorkerTask, n)
	for i := 0; i < n; i++ {
		data := runner.TemplateData{
			Index: i,
			Label: fmt.Sprintf("worker-%d", i),
			UUID:  uuid.NewString(),
			Row:   dataset.Row{},
		}
		if table != nil {
			data.Row = table.Rows[i]
			if l := table.Label(i); l != "" {
				data.Label = l
			}
		}

		target, err := c.templates.Execute(urlTmpl, data)
		if err != nil {
			return nil, fmt.Errorf("%w: render url for %s: %v", runner.ErrInvalidConfig, data.Label, err)
		}
		if u, err := url.Parse(target); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: rendered url %q for %s must be an absolute http(s) URL", runner.ErrInvalidConfig, target, data.Label)
		}
		body, err := c.templates.Execute(bodyTmpl, data)
		if err != nil {
			return nil, fmt.Errorf("%w: render body for %s: %v", runner.ErrInvalidConfig, data.Label, err)
		}
		headers := make(map[string]string, len(headerTmpls))
		for k, t := range headerTmpls {
			v, err := c.templates.Execute(t, data)
			if err != nil {
				return nil, fmt.Errorf("%w: render header %s for %s: %v", runner.ErrInvalidConfig, k, data.Label, err)
			}
			headers[k] = v
		}

		method := strings.ToUpper(cfg.Method)
		if method == "" {
			method = "GET"
		}
		tasks[i] = runner.WorkerTask{
			Index: i,
			Label: data.Label,
			Request: runner.RequestDescriptor{
				Method:  method,
				URL:     target,
				Headers: headers,
				Body:    []byte(body),
			},
		}
	}
	return tasks, nil
}

// Dispatch fires tasks as one burst, summarizes the outcomes and hands the
// report to every sink. A report is returned whenever the burst fired, even
// if some sinks failed; their errors are joined into err.
func (c *Controller) Dispatch(ctx context.Context, tasks []runner.WorkerTask) (*Report, error) {
	cfg := c.Config
	report := &Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Config:    cfg,
	}
	log := c.logger().With("run_id", report.ID)

	exec := c.Executor
	if exec == nil {
		check := runner.DefaultPredicate
		if cfg.Expect != "" {
			p, err := runner.JMESPathPredicate(cfg.Expect)
			if err != nil {
				return nil, err
			}
			check = p
		}
		exec = runner.NewHTTPExecutor(runner.NewHTTPClient(len(tasks), cfg.Insecure), check)
	}

	coord := &runner.Coordinator{
		Executor:     exec,
		MaxInFlight:  int64(cfg.MaxInFlight),
		ReadyTimeout: cfg.ReadyTimeout,
		Degraded:     cfg.Degraded,
		Observer:     c.Observer,
		Logger:       log,
	}

	log.Info("run_started", "url", cfg.URL, "method", cfg.Method, "workers", len(tasks))
	res, err := coord.Run(ctx, tasks, cfg.RequestTimeout, cfg.OverallTimeout)
	if err != nil {
		log.Error("run_failed", "error", err)
		return nil, err
	}
	report.Result = res
	report.Summary = stats.Summarize(res.Outcomes, stats.Options{
		Percentile: cfg.Percentile,
		SampleSize: cfg.SampleSize,
	})

	log.Info("run_summarized",
		"total", report.Summary.Total,
		"success", report.Summary.Success,
		"mean", report.Summary.Mean,
		"percentile", report.Summary.Percentile,
		"max", report.Summary.Max,
		"timed_out", res.TimedOut,
	)

	// An interrupted burst still hands its partial outcomes to the sinks.
	sinkCtx := ctx
	if res.Interrupted {
		sinkCtx = context.WithoutCancel(ctx)
	}
	var sinkErrs []error
	for _, s := range c.Sinks {
		if err := s.Save(sinkCtx, report); err != nil {
			log.Error("sink_failed", "error", err)
			sinkErrs = append(sinkErrs, fmt.Errorf("save report: %w", err))
		}
	}
	return report, errors.Join(sinkErrs...)
}
