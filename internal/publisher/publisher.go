package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/broker"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/metrics"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

const DefaultTimeout = 2 * time.Second

// ErrPublish matches every *PublishError.
var ErrPublish = errors.New("alert publish failed")

// PublishError reports a transport failure for one event.
type PublishError struct {
	EventID string
	MotorID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish alert %s for motor %s: %v", e.EventID, e.MotorID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *PublishError) Is(target error) bool { return target == ErrPublish }

// Publisher sends alert events on the fanout transport. A nil transport
// means the broker was unreachable at start; events are then logged and
// dropped.
type Publisher struct {
	transport broker.Transport
	timeout   time.Duration

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a publisher. timeout <= 0 selects DefaultTimeout.
func New(t broker.Transport, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Publisher{transport: t, timeout: timeout}
}

// Available reports whether a transport is connected.
func (p *Publisher) Available() bool {
	return p.transport != nil
}

// Publish serializes event to one message and sends it. It makes a single
// attempt bounded by the publisher timeout.
func (p *Publisher) Publish(ctx context.Context, event models.AlertEvent) error {
	log := logger.WithMotor("publisher", event.MotorID)

	if p.transport == nil {
		p.dropped.Add(1)
		metrics.PublishTotal.WithLabelValues("dropped").Inc()
		log.Warn().
			Str("event_id", event.ID).
			Str("alert_type", string(event.AlertType)).
			Float64("value", event.Value).
			Time("occurred_at", event.OccurredAt).
			Msg("broker unavailable, alert dropped")
		return nil
	}

	data, err := event.Encode()
	if err != nil {
		p.failed.Add(1)
		metrics.PublishTotal.WithLabelValues("failed").Inc()
		return &PublishError{EventID: event.ID, MotorID: event.MotorID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err = p.transport.Publish(ctx, event.MotorID, data)
	metrics.PublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.failed.Add(1)
		metrics.PublishTotal.WithLabelValues("failed").Inc()
		return &PublishError{EventID: event.ID, MotorID: event.MotorID, Err: err}
	}

	p.published.Add(1)
	metrics.PublishTotal.WithLabelValues("success").Inc()
	metrics.PublishBytes.Add(float64(len(data)))
	log.Debug().
		Str("event_id", event.ID).
		Str("alert_type", string(event.AlertType)).
		Msg("alert published")
	return nil
}

// Stats returns publisher statistics
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// Stats holds publisher counters
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}
