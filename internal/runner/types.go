package runner

import (
	"time"
)

// SentinelStatus marks an Outcome for which no HTTP response was obtained.
const SentinelStatus = -1

// RequestDescriptor is a fully rendered request. Nothing in it is templated.
type RequestDescriptor struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// WorkerTask is the unit of work bound to one worker at spawn time.
type WorkerTask struct {
	Index   int
	Label   string
	Request RequestDescriptor
}

// OutcomeKind classifies how a request attempt ended.
type OutcomeKind string

const (
	KindSuccess        OutcomeKind = "success"
	KindBadResponse    OutcomeKind = "bad_response"
	KindTransportError OutcomeKind = "transport_error"
	KindTimeout        OutcomeKind = "timeout"
)

// Outcome is the terminal record of one worker's request attempt.
type Outcome struct {
	Index      int           `json:"index"`
	Label      string        `json:"label"`
	Kind       OutcomeKind   `json:"kind"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	QueueWait  time.Duration `json:"queue_wait"` // Fire release to in-flight slot
	Bytes      int64         `json:"bytes"`
	Snippet    string        `json:"snippet,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Result is what the coordinator hands back after a burst.
type Result struct {
	Outcomes []Outcome
	FiredAt  time.Time

	// Ready counts workers that arrived at the ready barrier.
	Ready int
	// NotStarted counts tasks never released into a request.
	NotStarted int
	// Unfinished counts tasks released but not recorded before the overall timeout.
	Unfinished int

	// LaunchSpread is the latest StartedAt minus FiredAt among recorded outcomes.
	LaunchSpread time.Duration

	TimedOut      bool
	ReadyTimedOut bool
	Interrupted   bool
}

// Shortfall is the number of tasks without an Outcome.
func (r *Result) Shortfall() int {
	return r.NotStarted + r.Unfinished
}
