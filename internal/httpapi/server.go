// Package httpapi serves the current reading over HTTP: a health check,
// Prometheus metrics, a JSON snapshot and a self-refreshing HTML page.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/luki/airdash/internal/aqi"
	"github.com/luki/airdash/internal/poller"
	"github.com/luki/airdash/internal/reading"
)

const shutdownTimeout = 10 * time.Second

// Source provides the state to serve.
type Source interface {
	Snapshot() poller.State
}

type Options struct {
	Addr        string
	Endpoint    string
	Interval    time.Duration
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

type handlers struct {
	src      Source
	endpoint string
	interval time.Duration
	logger   *slog.Logger
}

// readingResponse is the body of GET /api/reading.
type readingResponse struct {
	Reading   reading.Reading `json:"reading"`
	Category  string          `json:"category"`
	Color     string          `json:"color"`
	UpdatedAt time.Time       `json:"updated_at"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
}

// NewRouter registers every route on a gorilla/mux router and wraps it with
// CORS and request logging.
func NewRouter(src Source, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handlers{src: src, endpoint: opts.Endpoint, interval: opts.Interval, logger: opts.Logger}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.HandleFunc("/api/reading", h.reading).Methods(http.MethodGet)
	router.HandleFunc("/", h.page).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
	})
	return requestLogger(opts.Logger, c.Handler(router))
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) reading(w http.ResponseWriter, r *http.Request) {
	s := h.src.Snapshot()
	if !s.HasReading {
		msg := "no reading yet"
		if s.Err != nil {
			msg = s.Err.Error()
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}

	band := aqi.Classify(s.Reading.AQIValue)
	resp := readingResponse{
		Reading:   s.Reading,
		Category:  band.Category,
		Color:     band.Hex,
		UpdatedAt: s.UpdatedAt,
		Loading:   s.Loading,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) page(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := renderPage(&buf, newPageData(h.src.Snapshot(), h.endpoint, h.interval)); err != nil {
		h.logger.Error("render dashboard page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// Server runs the router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(src Source, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(src, opts),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: opts.Logger,
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("http shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
