// Package relay republishes every newly applied reading to an MQTT broker
// so other consumers on the network can follow the sensor.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luki/airdash/internal/aqi"
	"github.com/luki/airdash/internal/poller"
	"github.com/luki/airdash/internal/reading"
)

const (
	queueSize      = 8
	connectTimeout = 5 * time.Second
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Message is the JSON payload of a relayed reading.
type Message struct {
	reading.Reading
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
}

// Topic returns "<prefix>/<deviceID>/reading".
func Topic(prefix, deviceID string) string {
	if prefix == "" {
		return fmt.Sprintf("%s/reading", deviceID)
	}
	return fmt.Sprintf("%s/%s/reading", prefix, deviceID)
}

func NewMessage(r reading.Reading, now time.Time) Message {
	return Message{
		Reading:     r,
		Category:    aqi.Classify(r.AQIValue).Category,
		PublishedAt: now.UTC(),
	}
}

// Relay queues applied readings from poller snapshots and publishes them
// from its own goroutine.
type Relay struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
	queue  chan reading.Reading

	mu      sync.Mutex
	lastSeq uint64
}

func New(pub Publisher, prefix string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		pub:    pub,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
		queue:  make(chan reading.Reading, queueSize),
	}
}

// Observe is a poller subscriber. It queues the reading when s carries a
// newly applied success and never blocks; a full queue drops the reading.
func (r *Relay) Observe(s poller.State) {
	r.mu.Lock()
	if !s.HasReading || s.Err != nil || s.Seq <= r.lastSeq {
		r.mu.Unlock()
		return
	}
	r.lastSeq = s.Seq
	r.mu.Unlock()

	select {
	case r.queue <- s.Reading:
	default:
		r.logger.Warn("relay queue full, reading dropped", "seq", s.Seq)
	}
}

// Run publishes queued readings until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rd := <-r.queue:
			if err := r.publish(rd); err != nil {
				r.logger.Warn("relay publish failed", "error", err)
			}
		}
	}
}

func (r *Relay) publish(rd reading.Reading) error {
	payload, err := json.Marshal(NewMessage(rd, r.now()))
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	topic := Topic(r.prefix, rd.DeviceID)
	if err := r.pub.Publish(topic, payload); err != nil {
		return err
	}
	r.logger.Debug("reading relayed", "topic", topic, "aqi", rd.AQIValue)
	return nil
}

// Connect starts c and waits briefly for the broker. A broker that is down
// is logged and retried in the background.
func Connect(ctx context.Context, c *Client, logger *slog.Logger) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.Connect(connectCtx); err != nil {
		logger.Warn("mqtt connection failed (continuing without relay until it reconnects)", "error", err)
	}
}
