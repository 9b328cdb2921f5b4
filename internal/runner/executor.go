package runner

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultSnippetLen  = 300
	DefaultMaxBodySize = 1 << 20
)

// Executor performs exactly one call for a descriptor and never fails past
// its boundary: every failure mode comes back as an Outcome.
type Executor interface {
	Execute(ctx context.Context, req RequestDescriptor, timeout time.Duration) Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req RequestDescriptor, timeout time.Duration) Outcome

func (f ExecutorFunc) Execute(ctx context.Context, req RequestDescriptor, timeout time.Duration) Outcome {
	return f(ctx, req, timeout)
}

// NewHTTPClient builds a client sized for a burst of conns simultaneous
// requests. HTTP/2 is left off so every worker gets its own connection.
func NewHTTPClient(conns int, insecure bool) *http.Client {
	if conns < 1 {
		conns = 1
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = conns
	t.MaxConnsPerHost = conns
	t.MaxIdleConnsPerHost = conns
	t.ForceAttemptHTTP2 = false
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure}

	// Per-request timeouts come from the context, not the client.
	return &http.Client{Transport: t}
}

// HTTPExecutor runs descriptors over net/http.
type HTTPExecutor struct {
	Client     *http.Client
	Check      Predicate
	SnippetLen int
	MaxBody    int64
}

func NewHTTPExecutor(client *http.Client, check Predicate) *HTTPExecutor {
	if client == nil {
		client = NewHTTPClient(1, false)
	}
	if check == nil {
		check = DefaultPredicate
	}
	return &HTTPExecutor{
		Client:     client,
		Check:      check,
		SnippetLen: DefaultSnippetLen,
		MaxBody:    DefaultMaxBodySize,
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req RequestDescriptor, timeout time.Duration) (out Outcome) {
	out = Outcome{StatusCode: SentinelStatus, Kind: KindTransportError}

	var start time.Time
	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Kind = KindTransportError
			out.Error = fmt.Sprintf("panic: %v", r)
			if !start.IsZero() {
				out.Duration = time.Since(start)
			}
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		out.Error = err.Error()
		return out
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start = time.Now()
	out.StartedAt = start
	resp, err := e.Client.Do(httpReq)
	if err != nil {
		out.Duration = time.Since(start)
		out.Kind = classifyErr(ctx, err)
		out.Error = err.Error()
		return out
	}

	limit := e.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, limit))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	out.Duration = time.Since(start)

	out.StatusCode = resp.StatusCode
	out.Bytes = int64(len(body))
	out.Snippet = snippet(body, e.SnippetLen)

	if readErr != nil {
		out.StatusCode = SentinelStatus
		out.Kind = classifyErr(ctx, readErr)
		out.Error = fmt.Sprintf("reading body after status %d: %v", resp.StatusCode, readErr)
		return out
	}

	check := e.Check
	if check == nil {
		check = DefaultPredicate
	}
	ok, reason := check(resp.StatusCode, body)
	out.Success = ok
	if ok {
		out.Kind = KindSuccess
	} else {
		out.Kind = KindBadResponse
		out.Error = reason
	}
	return out
}

func classifyErr(ctx context.Context, err error) OutcomeKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransportError
}

func snippet(body []byte, n int) string {
	if n <= 0 {
		n = DefaultSnippetLen
	}
	if len(body) > n {
		body = body[:n]
	}
	s := strings.ToValidUTF8(string(body), "")
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
