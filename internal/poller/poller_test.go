package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luki/airdash/internal/client"
	"github.com/luki/airdash/internal/reading"
)

type result struct {
	raw reading.Raw
	err error
}

// scriptFetcher hands out whatever the test pushes on results, one per call.
type scriptFetcher struct {
	calls   chan struct{}
	results chan result
}

func newScriptFetcher() *scriptFetcher {
	return &scriptFetcher{
		calls:   make(chan struct{}, 16),
		results: make(chan result),
	}
}

func (f *scriptFetcher) Fetch(ctx context.Context) (reading.Raw, error) {
	f.calls <- struct{}{}
	select {
	case r := <-f.results:
		return r.raw, r.err
	case <-ctx.Done():
		return reading.Raw{}, ctx.Err()
	}
}

var fixedNow = time.Date(2026, 2, 21, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func subscribe(p *Poller) chan State {
	ch := make(chan State, 64)
	p.Subscribe(func(s State) { ch <- s })
	return ch
}

func waitFor(t *testing.T, ch chan State, what string, pred func(State) bool) State {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func waitCall(t *testing.T, f *scriptFetcher) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
	}
}

func startRun(t *testing.T, p *Poller) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run returned %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func TestRunFetchesImmediately(t *testing.T) {
	f := newScriptFetcher()
	p := New(f, WithInterval(time.Hour), WithClock(fixedClock))
	states := subscribe(p)
	stop := startRun(t, p)
	defer stop()

	waitCall(t, f)
	if s := p.Snapshot(); !s.Loading {
		t.Error("Loading should be true while the first fetch is in flight")
	}
	f.results <- result{raw: reading.Raw{AQI: "Good", Temp: "21.3"}}

	s := waitFor(t, states, "first reading", func(s State) bool { return s.HasReading })
	if s.Loading {
		t.Error("Loading should be false after the fetch completes")
	}
	if s.Reading.AQIValue != 25 || s.Reading.Temp != 21.3 {
		t.Errorf("reading = %+v", s.Reading)
	}
	if !s.UpdatedAt.Equal(fixedNow) {
		t.Errorf("UpdatedAt = %v, want %v", s.UpdatedAt, fixedNow)
	}
}

func TestFailureKeepsLastReading(t *testing.T) {
	f := newScriptFetcher()
	p := New(f, WithInterval(time.Hour), WithClock(fixedClock))
	states := subscribe(p)
	stop := startRun(t, p)
	defer stop()

	waitCall(t, f)
	f.results <- result{raw: reading.Raw{AQI: 42.0}}
	waitFor(t, states, "first reading", func(s State) bool { return s.HasReading })

	p.Refresh()
	waitCall(t, f)
	f.results <- result{err: &client.StatusError{Code: 500, Text: "Internal Server Error"}}

	s := waitFor(t, states, "error", func(s State) bool { return s.Err != nil })
	if !strings.Contains(s.Err.Error(), "500") {
		t.Errorf("error %q should mention 500", s.Err)
	}
	if !s.HasReading || s.Reading.AQIValue != 42 {
		t.Errorf("last reading not kept: %+v", s.Reading)
	}
	if s.Failures != 1 || s.Attempts != 2 {
		t.Errorf("attempts/failures = %d/%d, want 2/1", s.Attempts, s.Failures)
	}

	p.Refresh()
	waitCall(t, f)
	f.results <- result{raw: reading.Raw{AQI: 60.0}}
	s = waitFor(t, states, "recovery", func(s State) bool { return s.Reading.AQIValue == 60 })
	if s.Err != nil {
		t.Errorf("error should clear on success, got %v", s.Err)
	}
}

func TestTeardownDiscardsLateResult(t *testing.T) {
	// A transport that ignores cancellation and still returns data.
	started := make(chan struct{})
	stubborn := fetcherFunc(func(ctx context.Context) (reading.Raw, error) {
		close(started)
		<-ctx.Done()
		return reading.Raw{AQI: "Good"}, nil
	})

	p := New(stubborn, WithInterval(time.Hour))
	var updates atomic.Int32
	p.Subscribe(func(State) { updates.Add(1) })

	stop := startRun(t, p)
	<-started
	before := updates.Load()
	stop()

	if got := updates.Load(); got != before {
		t.Errorf("state changed %d times after teardown", got-before)
	}
	if s := p.Snapshot(); s.HasReading {
		t.Errorf("late result applied: %+v", s.Reading)
	}
}

type fetcherFunc func(ctx context.Context) (reading.Raw, error)

func (f fetcherFunc) Fetch(ctx context.Context) (reading.Raw, error) { return f(ctx) }

func newActive() *Poller {
	p := New(nil, WithClock(fixedClock))
	p.active = true
	return p
}

func TestOutOfOrderCompletion(t *testing.T) {
	p := newActive()

	slow := p.begin()
	fast := p.begin()

	p.complete(fast, reading.Raw{AQI: "Moderate"}, nil)
	p.complete(slow, reading.Raw{AQI: "Good"}, nil)

	s := p.Snapshot()
	if s.Reading.AQIValue != 75 {
		t.Errorf("stale result overwrote newer one: AQI %v, want 75", s.Reading.AQIValue)
	}
	if s.Seq != fast {
		t.Errorf("Seq = %d, want %d", s.Seq, fast)
	}
	if s.Loading {
		t.Error("Loading should be false once both fetches finished")
	}
}

func TestStaleFailureIgnored(t *testing.T) {
	p := newActive()

	slow := p.begin()
	fast := p.begin()

	p.complete(fast, reading.Raw{AQI: 10.0}, nil)
	p.complete(slow, reading.Raw{}, errors.New("HTTP error: status 502 Bad Gateway"))

	s := p.Snapshot()
	if s.Err != nil {
		t.Errorf("stale failure surfaced: %v", s.Err)
	}
	if s.Failures != 0 {
		t.Errorf("Failures = %d, want 0", s.Failures)
	}
}

func TestCancellationNotAnError(t *testing.T) {
	p := newActive()

	seq := p.begin()
	p.complete(seq, reading.Raw{}, fmt.Errorf("request http://esp32.local/data: %w", context.Canceled))

	s := p.Snapshot()
	if s.Err != nil {
		t.Errorf("cancellation surfaced as error: %v", s.Err)
	}
	if s.Loading {
		t.Error("Loading should be cleared after a cancelled fetch")
	}
	if s.HasReading {
		t.Error("cancelled fetch produced a reading")
	}
}

func TestLoadingWithOverlap(t *testing.T) {
	p := newActive()

	a := p.begin()
	b := p.begin()
	p.complete(a, reading.Raw{}, nil)
	if !p.Snapshot().Loading {
		t.Error("Loading should stay true while a fetch is still in flight")
	}
	p.complete(b, reading.Raw{}, nil)
	if p.Snapshot().Loading {
		t.Error("Loading should be false with nothing in flight")
	}
}

func TestRunAgainstHTTPServer(t *testing.T) {
	var fail atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"device_id":"ESP32_01","AQI":"Unhealthy","PM25":"55.4"}`))
	}))
	defer ts.Close()

	c, err := client.New(client.Config{BaseURL: ts.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	p := New(c, WithInterval(time.Hour))
	states := subscribe(p)
	stop := startRun(t, p)
	defer stop()

	s := waitFor(t, states, "first reading", func(s State) bool { return s.HasReading })
	if s.Reading.AQIValue != 175 || s.Reading.PM25 != 55.4 {
		t.Errorf("reading = %+v", s.Reading)
	}

	fail.Store(true)
	p.Refresh()
	s = waitFor(t, states, "HTTP failure", func(s State) bool { return s.Err != nil })
	if !strings.Contains(s.Err.Error(), "500") {
		t.Errorf("error %q should mention 500", s.Err)
	}
	if s.Reading.AQIValue != 175 {
		t.Errorf("reading replaced on failure: %+v", s.Reading)
	}
}
