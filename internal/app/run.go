// Package app wires the fetch client, poller and every surface that reads
// from it, and runs them until the context is cancelled or the dashboard
// quits.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/luki/airdash/internal/client"
	"github.com/luki/airdash/internal/config"
	"github.com/luki/airdash/internal/dashboard"
	"github.com/luki/airdash/internal/httpapi"
	"github.com/luki/airdash/internal/metrics"
	"github.com/luki/airdash/internal/poller"
	"github.com/luki/airdash/internal/relay"
)

type Options struct {
	// Headless skips the terminal dashboard; the process runs until it
	// receives a signal.
	Headless bool
}

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"endpoint", cfg.Endpoint,
		"deviceID", cfg.DeviceID,
		"pollInterval", cfg.PollInterval,
		"requestTimeout", cfg.RequestTimeout,
		"httpAddr", cfg.HTTPAddr,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"headless", opts.Headless,
	)

	cl, err := client.New(client.Config{
		BaseURL:  cfg.Endpoint,
		DeviceID: cfg.DeviceID,
		Timeout:  cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	p := poller.New(cl,
		poller.WithInterval(cfg.PollInterval),
		poller.WithLogger(logger),
	)

	// the dashboard quitting tears everything else down
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(p, httpapi.Options{
			Addr:        cfg.HTTPAddr,
			Endpoint:    cl.Endpoint(),
			Interval:    p.Interval(),
			CORSOrigins: cfg.CORSOrigins,
			Gatherer:    metrics.NewRegistry(p),
			Logger:      logger,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}

	if cfg.MQTTBroker != "" {
		mc := relay.NewClient(relay.ClientConfig{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
		}, logger)
		rl := relay.New(mc, cfg.MQTTTopicPrefix, logger)
		p.Subscribe(rl.Observe)
		g.Go(func() error {
			defer mc.Disconnect()
			relay.Connect(gctx, mc, logger)
			return rl.Run(gctx)
		})
	}

	if opts.Headless {
		p.Subscribe(readingLogger(logger))
	} else {
		m := dashboard.New(p.Snapshot(), p, cl.Endpoint(), p.Interval())
		prog := dashboard.Program(m, p, tea.WithAltScreen(), tea.WithContext(gctx))
		g.Go(func() error {
			defer cancel()
			if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		err := p.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// readingLogger logs each newly applied reading or failure once.
func readingLogger(logger *slog.Logger) func(poller.State) {
	var (
		mu   sync.Mutex
		last uint64
	)
	return func(s poller.State) {
		mu.Lock()
		if s.Seq <= last {
			mu.Unlock()
			return
		}
		last = s.Seq
		mu.Unlock()

		if s.Err != nil {
			logger.Warn("poll failed", "seq", s.Seq, "error", s.Err)
			return
		}
		r := s.Reading
		logger.Info("reading",
			"device_id", r.DeviceID,
			"aqi", r.AQIValue,
			"aqi_text", r.AQIText,
			"pm25", r.PM25,
			"temp", r.Temp,
			"humidity", r.Humidity,
		)
	}
}
