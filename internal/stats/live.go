package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"volley/internal/runner"
)

// Live tracks a burst while it runs. It implements runner.Observer.
type Live struct {
	Workers int

	ready   atomic.Int64
	done    atomic.Int64
	success atomic.Int64
	fail    atomic.Int64
	bytes   atomic.Int64

	mu      sync.Mutex
	firedAt time.Time

	Latency *SafeHistogram
}

// Snapshot is a point-in-time copy for progress displays.
type Snapshot struct {
	Workers int
	Ready   int64
	Fired   bool
	FiredAt time.Time
	Done    int64
	Success int64
	Fail    int64
	Bytes   int64

	Mean time.Duration
	P50  time.Duration
	P99  time.Duration
	Max  time.Duration
}

func NewLive(workers int) *Live {
	return &Live{
		Workers: workers,
		Latency: NewSafeHistogram(),
	}
}

func (l *Live) WorkerReady(int) {
	l.ready.Add(1)
}

func (l *Live) Fired(at time.Time) {
	l.mu.Lock()
	l.firedAt = at
	l.mu.Unlock()
}

func (l *Live) OutcomeRecorded(o runner.Outcome) {
	l.done.Add(1)
	if o.Success {
		l.success.Add(1)
	} else {
		l.fail.Add(1)
	}
	l.bytes.Add(o.Bytes)
	l.Latency.Record(o.Duration)
}

func (l *Live) Snapshot() Snapshot {
	l.mu.Lock()
	firedAt := l.firedAt
	l.mu.Unlock()

	s := Snapshot{
		Workers: l.Workers,
		Ready:   l.ready.Load(),
		Fired:   !firedAt.IsZero(),
		FiredAt: firedAt,
		Done:    l.done.Load(),
		Success: l.success.Load(),
		Fail:    l.fail.Load(),
		Bytes:   l.bytes.Load(),
	}
	if s.Done > 0 {
		s.Mean = l.Latency.Mean()
		s.P50 = l.Latency.Quantile(50)
		s.P99 = l.Latency.Quantile(99)
		s.Max = l.Latency.Max()
	}
	return s
}

// ErrorRate returns the failure percentage of recorded outcomes.
func (s Snapshot) ErrorRate() float64 {
	if s.Done == 0 {
		return 0
	}
	return float64(s.Fail) / float64(s.Done) * 100
}
