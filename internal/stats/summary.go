package stats

import (
	"math"
	"sort"
	"time"

	"volley/internal/runner"
)

const (
	DefaultPercentile = 95
	DefaultSampleSize = 10
)

// Options controls Summarize. Zero fields fall back to the defaults.
type Options struct {
	Percentile float64 // (0, 100]
	SampleSize int
}

func DefaultOptions() Options {
	return Options{Percentile: DefaultPercentile, SampleSize: DefaultSampleSize}
}

// RunSummary is a read-only view over a completed Outcome collection.
type RunSummary struct {
	Total        int     `json:"total"`
	Success      int     `json:"success"`
	Failed       int     `json:"failed"`
	SuccessRatio float64 `json:"success_ratio"` // 0..1

	Mean           time.Duration `json:"mean"`
	Percentile     time.Duration `json:"percentile"`
	PercentileRank float64       `json:"percentile_rank"`
	Max            time.Duration `json:"max"`

	// FailuresByKind counts failures per classification.
	FailuresByKind map[runner.OutcomeKind]int `json:"failures_by_kind,omitempty"`
	// FailureSample holds the first failures in encounter order.
	FailureSample []runner.Outcome `json:"failure_sample,omitempty"`
}

// SuccessPct returns the success ratio as a percentage.
func (s RunSummary) SuccessPct() float64 {
	return s.SuccessRatio * 100
}

// Summarize reduces outcomes to a RunSummary. It is total: an empty input
// yields a zero summary. Durations of failed outcomes count toward the mean.
func Summarize(outcomes []runner.Outcome, opts Options) RunSummary {
	if opts.Percentile <= 0 || opts.Percentile > 100 {
		opts.Percentile = DefaultPercentile
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}

	s := RunSummary{
		Total:          len(outcomes),
		PercentileRank: opts.Percentile,
	}
	if s.Total == 0 {
		return s
	}

	latencies := make([]time.Duration, 0, len(outcomes))
	var sum time.Duration
	for _, o := range outcomes {
		latencies = append(latencies, o.Duration)
		sum += o.Duration
		if o.Duration > s.Max {
			s.Max = o.Duration
		}

		if o.Success {
			s.Success++
			continue
		}
		s.Failed++
		if s.FailuresByKind == nil {
			s.FailuresByKind = make(map[runner.OutcomeKind]int)
		}
		s.FailuresByKind[o.Kind]++
		if len(s.FailureSample) < opts.SampleSize {
			s.FailureSample = append(s.FailureSample, o)
		}
	}

	s.SuccessRatio = float64(s.Success) / float64(s.Total)
	s.Mean = sum / time.Duration(s.Total)
	s.Percentile = NearestRank(latencies, opts.Percentile)
	return s
}

// NearestRank returns the p-th percentile of values by the nearest-rank
// method: sort ascending, take index ceil(p/100*n)-1 clamped to [0, n-1].
// values is not modified.
func NearestRank(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
