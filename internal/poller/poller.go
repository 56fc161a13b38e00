// Package poller owns the current reading. It fetches on start and on a
// fixed interval, applies results in request order and discards anything
// that completes after teardown.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/luki/airdash/internal/reading"
)

const DefaultInterval = 10 * time.Second

// Fetcher retrieves one raw reading. It must honour ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context) (reading.Raw, error)
}

// State is a snapshot of the poller's shared state.
type State struct {
	Reading    reading.Reading
	HasReading bool
	Loading    bool
	Err        error
	UpdatedAt  time.Time // when Reading was applied
	Seq        uint64    // sequence number of the last applied fetch
	Attempts   uint64
	Failures   uint64

	// Version grows with every change; subscribers may see snapshots out
	// of order and use it to drop older ones.
	Version uint64
}

type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	refresh  chan struct{}

	mu       sync.Mutex
	state    State
	issued   uint64
	inflight int
	active   bool
	subs     []func(State)
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

func New(f Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  f,
		interval: DefaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
		refresh:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Subscribe registers fn to be called with a snapshot after every state
// change. Callbacks run on the goroutine that made the change, outside the
// state lock, so they should return quickly.
func (p *Poller) Subscribe(fn func(State)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Interval is the time between poll ticks.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Refresh requests an immediate fetch. At most one request is queued; one
// queued before Run is dropped since Run fetches immediately anyway.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Run fetches immediately and then on every tick until ctx is cancelled.
// On return every fetch it started has finished and none of them can
// touch the state any more.
func (p *Poller) Run(ctx context.Context) error {
	// Fetches are cancelled only after the poller is marked inactive, so a
	// result racing with teardown can never be applied.
	fetchCtx, cancelFetches := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup

	p.mu.Lock()
	p.active = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active = false
		p.inflight = 0
		p.mu.Unlock()
		cancelFetches()
		wg.Wait()
	}()

	launch := func() {
		seq := p.begin()
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, err := p.fetcher.Fetch(fetchCtx)
			p.complete(seq, raw, err)
		}()
	}

	// drain a refresh queued before Run so it does not double the first fetch
	select {
	case <-p.refresh:
	default:
	}

	launch()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			launch()
		case <-p.refresh:
			launch()
		}
	}
}

// begin allocates the next sequence number and marks a fetch in flight.
func (p *Poller) begin() uint64 {
	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.inflight++
	p.state.Loading = true
	p.state.Attempts++
	p.state.Version++
	snap, subs := p.state, p.subs
	p.mu.Unlock()

	p.logger.Debug("fetch started", "seq", seq)
	notify(subs, snap)
	return seq
}

// complete is the only place a fetch result reaches the state.
func (p *Poller) complete(seq uint64, raw reading.Raw, err error) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		p.logger.Debug("result after teardown discarded", "seq", seq)
		return
	}

	p.inflight--
	p.state.Loading = p.inflight > 0

	switch {
	case errors.Is(err, context.Canceled):
		p.logger.Debug("fetch cancelled", "seq", seq)
	case seq <= p.state.Seq:
		p.logger.Debug("stale result discarded", "seq", seq, "applied", p.state.Seq)
	case err != nil:
		p.state.Seq = seq
		p.state.Err = err
		p.state.Failures++
		p.logger.Warn("fetch failed", "seq", seq, "error", err)
	default:
		now := p.now()
		p.state.Seq = seq
		p.state.Err = nil
		p.state.Reading = reading.Normalize(raw, now)
		p.state.HasReading = true
		p.state.UpdatedAt = now
		p.logger.Debug("reading applied", "seq", seq, "aqi", p.state.Reading.AQIValue)
	}

	p.state.Version++
	snap, subs := p.state, p.subs
	p.mu.Unlock()

	notify(subs, snap)
}

func notify(subs []func(State), s State) {
	for _, fn := range subs {
		fn(s)
	}
}
