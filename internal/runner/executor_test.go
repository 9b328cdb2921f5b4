package runner

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPExecutor_Success(t *testing.T) {
	var gotHeader, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Tenant-Id")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("line one\r\nline two"))
	}))
	defer server.Close()

	e := NewHTTPExecutor(server.Client(), nil)
	o := e.Execute(context.Background(), RequestDescriptor{
		Method:  http.MethodPost,
		URL:     server.URL,
		Headers: map[string]string{"Tenant-Id": "tenant-123"},
		Body:    []byte(`{"email":"a@b.c"}`),
	}, time.Second)

	if !o.Success || o.Kind != KindSuccess {
		t.Fatalf("Expected success, got: %+v", o)
	}
	if o.StatusCode != 200 {
		t.Errorf("Expected status 200, got: %d", o.StatusCode)
	}
	if o.Snippet != "line one  line two" {
		t.Errorf("Expected CR/LF stripped snippet, got: %q", o.Snippet)
	}
	if gotHeader != "tenant-123" {
		t.Errorf("Expected Tenant-Id header to be forwarded, got: %q", gotHeader)
	}
	if gotBody != `{"email":"a@b.c"}` {
		t.Errorf("Expected body to be forwarded, got: %q", gotBody)
	}
	if o.Duration <= 0 || o.StartedAt.IsZero() {
		t.Errorf("Expected timing to be recorded, got: %v at %v", o.Duration, o.StartedAt)
	}
}

func TestHTTPExecutor_BadResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	e := NewHTTPExecutor(server.Client(), nil)

	o := e.Execute(context.Background(), RequestDescriptor{URL: server.URL + "/fail"}, time.Second)
	if o.Success || o.Kind != KindBadResponse {
		t.Errorf("Expected bad_response, got: %+v", o)
	}
	if o.StatusCode != 500 {
		t.Errorf("Expected status 500, got: %d", o.StatusCode)
	}

	o = e.Execute(context.Background(), RequestDescriptor{URL: server.URL + "/empty"}, time.Second)
	if o.Success || o.Kind != KindBadResponse {
		t.Errorf("Expected empty body to be a bad_response, got: %+v", o)
	}
	if o.Error != "empty response body" {
		t.Errorf("Expected empty body reason, got: %q", o.Error)
	}
}

func TestHTTPExecutor_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	e := NewHTTPExecutor(nil, nil)
	o := e.Execute(context.Background(), RequestDescriptor{URL: url}, time.Second)

	if o.Success {
		t.Fatal("Expected failure against a closed server")
	}
	if o.StatusCode != SentinelStatus {
		t.Errorf("Expected sentinel status, got: %d", o.StatusCode)
	}
	if o.Kind != KindTransportError {
		t.Errorf("Expected transport_error, got: %s", o.Kind)
	}
	if o.Error == "" {
		t.Error("Expected an error description")
	}
}

func TestHTTPExecutor_TruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("short"))
	}))
	defer server.Close()

	e := NewHTTPExecutor(nil, nil)
	o := e.Execute(context.Background(), RequestDescriptor{URL: server.URL}, time.Second)

	if o.Success {
		t.Fatal("Expected failure on a truncated body")
	}
	if o.StatusCode != SentinelStatus {
		t.Errorf("Expected sentinel status, got: %d", o.StatusCode)
	}
	if o.Kind != KindTransportError {
		t.Errorf("Expected transport_error, got: %s", o.Kind)
	}
	if !strings.Contains(o.Error, "status 200") {
		t.Errorf("Expected the received status in the error, got: %s", o.Error)
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	e := NewHTTPExecutor(server.Client(), nil)
	start := time.Now()
	o := e.Execute(context.Background(), RequestDescriptor{URL: server.URL}, 50*time.Millisecond)

	if o.Kind != KindTimeout {
		t.Errorf("Expected timeout, got: %s (%s)", o.Kind, o.Error)
	}
	if o.StatusCode != SentinelStatus {
		t.Errorf("Expected sentinel status, got: %d", o.StatusCode)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Expected the request timeout to cut the call short, took: %v", time.Since(start))
	}
}

func TestHTTPExecutor_InvalidURL(t *testing.T) {
	e := NewHTTPExecutor(nil, nil)
	o := e.Execute(context.Background(), RequestDescriptor{URL: "://nope"}, time.Second)
	if o.Success || o.StatusCode != SentinelStatus || o.Error == "" {
		t.Errorf("Expected an invalid URL to resolve to a failed outcome, got: %+v", o)
	}
}

func TestSnippet_Truncates(t *testing.T) {
	body := []byte(strings.Repeat("a", 500))
	if got := snippet(body, 300); len(got) != 300 {
		t.Errorf("Expected 300 chars, got: %d", len(got))
	}
}
