package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Observer is notified as a burst progresses. Calls arrive from worker
// goroutines and must not block.
type Observer interface {
	WorkerReady(index int)
	Fired(at time.Time)
	OutcomeRecorded(o Outcome)
}

type nopObserver struct{}

func (nopObserver) WorkerReady(int)         {}
func (nopObserver) Fired(time.Time)         {}
func (nopObserver) OutcomeRecorded(Outcome) {}

// Coordinator launches one worker per task and holds every worker at the
// ready barrier until the whole cohort has arrived, then releases them
// together through the fire gate.
type Coordinator struct {
	Executor Executor

	// MaxInFlight caps concurrent requests after release. Zero means no cap.
	MaxInFlight int64
	// ReadyTimeout bounds the ready phase. Zero waits indefinitely.
	ReadyTimeout time.Duration
	// Degraded fires with the arrived cohort when ReadyTimeout expires.
	Degraded bool

	Observer Observer
	Logger   *slog.Logger

	// spawn starts a worker. Tests replace it to hold workers back.
	spawn func(fn func())
}

const (
	slotSpawned int32 = iota
	slotReady
	slotReleased
)

// burst is the shared state of one run.
type burst struct {
	ready *Latch
	fire  *Gate
	done  *Latch
	store *Store
	sem   *semaphore.Weighted
	slots []atomic.Int32

	// mu orders arrivals against the fire release so nobody joins late.
	mu     sync.Mutex
	fired  bool
	cohort int

	perRequest time.Duration
}

// arrive registers slot i at the ready barrier. It returns false when the
// gate already opened without this worker.
func (b *burst) arrive(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fired {
		return false
	}
	b.slots[i].Store(slotReady)
	b.ready.CountDown()
	return true
}

// release opens the fire gate once and returns the size of the cohort.
// Workers left out of the cohort are settled on the done barrier here since
// they will never run.
func (b *burst) release() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fired = true
	for i := range b.slots {
		if b.slots[i].Load() == slotSpawned {
			b.done.CountDown()
		} else {
			b.cohort++
		}
	}
	b.fire.Open()
	return b.cohort
}

func (c *Coordinator) validate(tasks []WorkerTask, perRequest, overall time.Duration) error {
	if len(tasks) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoTasks)
	}
	if c.Executor == nil {
		return fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}
	if perRequest <= 0 {
		return fmt.Errorf("%w: request timeout must be greater than 0", ErrInvalidConfig)
	}
	if overall < perRequest {
		return fmt.Errorf("%w: overall timeout (%s) must be at least the request timeout (%s)", ErrInvalidConfig, overall, perRequest)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("%w: max in-flight cannot be negative", ErrInvalidConfig)
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("%w: ready timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Run dispatches tasks as one synchronized burst. Configuration problems and
// a non-degraded ready timeout are returned as errors before anything fires.
// Once fired, Run always returns a Result, with TimedOut set when the done
// barrier did not complete within overall.
func (c *Coordinator) Run(ctx context.Context, tasks []WorkerTask, perRequest, overall time.Duration) (*Result, error) {
	if err := c.validate(tasks, perRequest, overall); err != nil {
		return nil, err
	}

	log := c.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	obs := c.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	n := len(tasks)
	b := &burst{
		ready:      NewLatch(n),
		fire:       NewGate(),
		done:       NewLatch(n),
		store:      NewStore(n),
		slots:      make([]atomic.Int32, n),
		perRequest: perRequest,
	}
	if c.MaxInFlight > 0 && c.MaxInFlight < int64(n) {
		b.sem = semaphore.NewWeighted(c.MaxInFlight)
	}

	workerCtx, abandon := context.WithCancel(ctx)
	defer abandon()

	spawn := c.spawn
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}

	log.Info("burst_spawning", "workers", n, "max_in_flight", c.MaxInFlight)
	for i := range tasks {
		t, slot := tasks[i], i
		spawn(func() { c.work(workerCtx, b, obs, t, slot) })
	}

	res := &Result{}

	var readyTimeout <-chan time.Time
	if c.ReadyTimeout > 0 {
		t := time.NewTimer(c.ReadyTimeout)
		defer t.Stop()
		readyTimeout = t.C
	}

	select {
	case <-b.ready.Done():
	case <-readyTimeout:
		arrived := n - b.ready.Count()
		res.ReadyTimedOut = true
		log.Warn("ready_timeout", "arrived", arrived, "workers", n, "timeout", c.ReadyTimeout, "degraded", c.Degraded)
		if !c.Degraded {
			return nil, fmt.Errorf("%w: %d of %d workers ready after %s", ErrReadyTimeout, arrived, n, c.ReadyTimeout)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("burst cancelled before fire: %w", ctx.Err())
	}

	res.FiredAt = time.Now()
	res.Ready = b.release()
	obs.Fired(res.FiredAt)
	log.Info("burst_fired", "cohort", res.Ready, "workers", n)

	overallTimer := time.NewTimer(overall)
	defer overallTimer.Stop()

	select {
	case <-b.done.Done():
	case <-overallTimer.C:
		res.TimedOut = true
	case <-ctx.Done():
		res.Interrupted = true
	}

	// Seal before cancelling so a request woken by the cancel records nothing.
	res.Outcomes = b.store.Seal()
	abandon()

	for i := range b.slots {
		if b.store.Filled(i) {
			continue
		}
		if b.slots[i].Load() == slotReleased {
			res.Unfinished++
		} else {
			res.NotStarted++
		}
	}

	for _, o := range res.Outcomes {
		if o.StartedAt.IsZero() {
			continue
		}
		if d := o.StartedAt.Sub(res.FiredAt); d > res.LaunchSpread {
			res.LaunchSpread = d
		}
	}

	attrs := []any{
		"outcomes", len(res.Outcomes),
		"workers", n,
		"launch_spread", res.LaunchSpread,
	}
	switch {
	case res.TimedOut:
		log.Warn("burst_timed_out", append(attrs, "not_started", res.NotStarted, "unfinished", res.Unfinished, "timeout", overall)...)
	case res.Interrupted:
		log.Warn("burst_interrupted", append(attrs, "not_started", res.NotStarted, "unfinished", res.Unfinished)...)
	default:
		log.Info("burst_completed", attrs...)
	}

	return res, nil
}

func (c *Coordinator) work(ctx context.Context, b *burst, obs Observer, t WorkerTask, slot int) {
	if !b.arrive(slot) {
		return
	}
	defer b.done.CountDown()
	obs.WorkerReady(t.Index)

	// Wait for the full cohort. In degraded mode the gate may open first.
	select {
	case <-b.ready.Done():
	case <-b.fire.C():
	case <-ctx.Done():
		return
	}
	select {
	case <-b.fire.C():
	case <-ctx.Done():
		return
	}

	released := time.Now()

	var queueWait time.Duration
	if b.sem != nil {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer b.sem.Release(1)
		queueWait = time.Since(released)
	}

	// Still queued for a slot counts as never started.
	b.slots[slot].Store(slotReleased)
	o := c.execute(ctx, t, b.perRequest)
	o.Index = t.Index
	o.Label = t.Label
	o.QueueWait = queueWait

	if b.store.Record(slot, o) {
		obs.OutcomeRecorded(o)
	}
}

// execute shields the worker from an Executor that panics.
func (c *Coordinator) execute(ctx context.Context, t WorkerTask, timeout time.Duration) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = Outcome{
				Kind:       KindTransportError,
				StatusCode: SentinelStatus,
				Error:      fmt.Sprintf("executor panic: %v", r),
			}
		}
	}()
	return c.Executor.Execute(ctx, t.Request, timeout)
}
