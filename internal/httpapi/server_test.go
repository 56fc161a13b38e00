package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/luki/airdash/internal/metrics"
	"github.com/luki/airdash/internal/poller"
	"github.com/luki/airdash/internal/reading"
)

type staticSource poller.State

func (s staticSource) Snapshot() poller.State { return poller.State(s) }

func newTestServer(t *testing.T, s poller.State) *httptest.Server {
	t.Helper()
	src := staticSource(s)
	h := NewRouter(src, Options{
		Endpoint:    "http://esp32.local/data",
		Interval:    10 * time.Second,
		CORSOrigins: []string{"http://localhost:5173"},
		Gatherer:    metrics.NewRegistry(src),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func sampleState() poller.State {
	r := reading.Normalize(reading.Raw{
		DeviceID:  "ESP32_01",
		Timestamp: "2026-02-21T14:00:00Z",
		AQI:       "Moderate",
		PM25:      "12.5",
		Temp:      21.3,
	}, time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC))
	return poller.State{Reading: r, HasReading: true, UpdatedAt: time.Now(), Seq: 1, Attempts: 1}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, poller.State{})
	resp, body := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestReadingBeforeFirstFetch(t *testing.T) {
	tests := []struct {
		name    string
		state   poller.State
		wantMsg string
	}{
		{"waiting", poller.State{Loading: true}, "no reading yet"},
		{"failed", poller.State{Err: errors.New("HTTP error: status 500 Internal Server Error")}, "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.state)
			resp, body := get(t, srv.URL+"/api/reading")
			if resp.StatusCode != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", resp.StatusCode)
			}
			var apiErr APIError
			if err := json.Unmarshal([]byte(body), &apiErr); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if apiErr.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("status_code = %d", apiErr.StatusCode)
			}
			if !strings.Contains(apiErr.Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestReadingJSON(t *testing.T) {
	srv := newTestServer(t, sampleState())
	resp, body := get(t, srv.URL+"/api/reading")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got readingResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reading.AQIValue != 75 || got.Reading.AQIText != "Moderate" {
		t.Errorf("aqi = %v %q", got.Reading.AQIValue, got.Reading.AQIText)
	}
	if got.Category != "Moderate" || got.Color != "#ffff00" {
		t.Errorf("band = %q %q", got.Category, got.Color)
	}
	if got.Reading.PM25 != 12.5 {
		t.Errorf("pm25 = %v", got.Reading.PM25)
	}
}

func TestPage(t *testing.T) {
	srv := newTestServer(t, sampleState())
	resp, body := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	for _, want := range []string{`content="10"`, "ESP32_01", ">75<", "Particulates", "12.5 µg/m³", "21.3 °C"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestPageWaiting(t *testing.T) {
	srv := newTestServer(t, poller.State{Loading: true})
	_, body := get(t, srv.URL+"/")
	if !strings.Contains(body, "Loading sensor data") {
		t.Errorf("expected loading placeholder")
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, sampleState())
	resp, body := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "airdash_aqi 75") {
		t.Errorf("metrics missing airdash_aqi")
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, sampleState())

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/reading", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Access-Control-Allow-Origin %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, sampleState())
	resp, err := http.Post(srv.URL+"/api/reading", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
