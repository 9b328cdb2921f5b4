package runner

import (
	"context"
	"sync"
	"sync/atomic"
)

// Latch is a countdown barrier. Done is closed once the count reaches zero.
type Latch struct {
	remaining atomic.Int64
	done      chan struct{}
	once      sync.Once
}

func NewLatch(n int) *Latch {
	l := &Latch{done: make(chan struct{})}
	l.remaining.Store(int64(n))
	if n <= 0 {
		l.once.Do(func() { close(l.done) })
	}
	return l
}

// CountDown records one arrival. Extra arrivals past zero are ignored.
func (l *Latch) CountDown() {
	if l.remaining.Add(-1) == 0 {
		l.once.Do(func() { close(l.done) })
	}
}

// Count returns the arrivals still outstanding.
func (l *Latch) Count() int {
	n := l.remaining.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch opens or ctx ends.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gate is a one-shot release signal with a single writer.
type Gate struct {
	ch   chan struct{}
	once sync.Once
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every waiter. It reports whether this call did the release.
func (g *Gate) Open() bool {
	opened := false
	g.once.Do(func() {
		close(g.ch)
		opened = true
	})
	return opened
}

func (g *Gate) C() <-chan struct{} {
	return g.ch
}
