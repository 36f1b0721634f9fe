package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/molding-monitor/internal/gpio"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	errs  []error
	calls []uint8
}

func (f *fakeSubmitter) Submit(ctx context.Context, b uint8, at time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, b)
	if len(f.errs) == 0 {
		return []string{"press-1"}, nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return nil, err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestStepSuccess(t *testing.T) {
	sub := &fakeSubmitter{}
	a := New(gpio.NewFakeReader(0x03), sub, Config{Interval: time.Second}, quietLogger())

	if wait := a.Step(context.Background()); wait != time.Second {
		t.Errorf("wait: got %v, want 1s", wait)
	}
	if len(sub.calls) != 1 || sub.calls[0] != 0x03 {
		t.Errorf("calls: got %v", sub.calls)
	}
	if s := a.Stats(); s.Sent != 1 || s.Failed != 0 {
		t.Errorf("stats: got %+v", s)
	}
}

func TestStepBacksOffAfterRetryAttempts(t *testing.T) {
	boom := errors.New("connection refused")
	sub := &fakeSubmitter{errs: []error{boom, boom, boom, boom}}
	a := New(gpio.NewFakeReader(0x01), sub, Config{Interval: time.Second, RetryAttempts: 3, RetryDelay: 5 * time.Second}, quietLogger())

	want := []time.Duration{time.Second, time.Second, 5 * time.Second, time.Second, time.Second}
	for i, w := range want {
		if got := a.Step(context.Background()); got != w {
			t.Errorf("step %d: wait %v, want %v", i, got, w)
		}
	}
	if s := a.Stats(); s.Failed != 4 || s.Sent != 1 || s.Backoffs != 1 {
		t.Errorf("stats: got %+v", s)
	}
}

func TestStepSuccessResetsFailures(t *testing.T) {
	boom := errors.New("timeout")
	sub := &fakeSubmitter{errs: []error{boom, boom, nil, boom, boom}}
	a := New(gpio.NewFakeReader(0x01), sub, Config{Interval: time.Second, RetryAttempts: 3, RetryDelay: time.Minute}, quietLogger())

	for i := 0; i < 5; i++ {
		if got := a.Step(context.Background()); got != time.Second {
			t.Errorf("step %d: unexpected backoff %v", i, got)
		}
	}
}

func TestStepReadError(t *testing.T) {
	r := gpio.NewFakeReader(0x01)
	r.ReadError = errors.New("bus fault")
	sub := &fakeSubmitter{}
	a := New(r, sub, Config{}, quietLogger())

	a.Step(context.Background())
	if len(sub.calls) != 0 {
		t.Error("expected no submission after a read error")
	}
	if a.Stats().Failed != 1 {
		t.Errorf("stats: got %+v", a.Stats())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sub := &fakeSubmitter{}
	a := New(gpio.NewFakeReader(0x01), sub, Config{Interval: time.Millisecond}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.Stats().Sent < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if a.Stats().Sent < 3 {
		t.Errorf("expected at least 3 sends, got %d", a.Stats().Sent)
	}
}

func TestClientSubmit(t *testing.T) {
	var got pinDataPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/signals/pin-data" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"processedMachines":["press-1","press-2"]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/api/signals/pin-data", WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC)
	machines, err := c.Submit(context.Background(), 0x0A, at)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(machines) != 2 || machines[1] != "press-2" {
		t.Errorf("machines: got %v", machines)
	}
	if got.PinData != "0a" || got.Timestamp != "2026-03-02T08:10:00Z" {
		t.Errorf("payload: got %+v", got)
	}
}

func TestClientSubmitPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"processedMachines":["press-1"],"error":"press-1: credit unit: disk I/O error"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	machines, err := c.Submit(context.Background(), 0x03, time.Now())
	var partial *PartialError
	if !errors.As(err, &partial) || partial.Message != "press-1: credit unit: disk I/O error" {
		t.Fatalf("expected PartialError, got %v", err)
	}
	if len(machines) != 1 || machines[0] != "press-1" {
		t.Errorf("machines: got %v", machines)
	}
}

func TestStepPartialFailureIsNotRetried(t *testing.T) {
	var logs strings.Builder
	sub := &fakeSubmitter{errs: []error{&PartialError{Message: "press-1: boom"}}}
	a := New(gpio.NewFakeReader(0x03), sub, Config{Interval: time.Second, RetryAttempts: 1, RetryDelay: time.Minute}, log.New(&logs, "", 0))

	if wait := a.Step(context.Background()); wait != time.Second {
		t.Errorf("wait: got %v, want 1s", wait)
	}
	if s := a.Stats(); s.Sent != 1 || s.Failed != 0 || s.Backoffs != 0 {
		t.Errorf("stats: got %+v", s)
	}
	if !strings.Contains(logs.String(), "press-1: boom") {
		t.Errorf("expected the server error to be logged, got %q", logs.String())
	}
}

func TestClientSubmitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid snapshot"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.Submit(context.Background(), 0x01, time.Now())
	if err == nil || err.Error() != "agent client: status 400: invalid snapshot" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewClientEmptyURL(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("expected error for empty url")
	}
}
