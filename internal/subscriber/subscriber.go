package subscriber

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"

	"github.com/dymasius12/factory-motor-monitoring/internal/broker"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/metrics"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// AlertSink consumes decoded alert events. Implementations must not block
// for long; they run on the subscription goroutine.
type AlertSink interface {
	OnAlert(e models.AlertEvent)
}

// SinkFunc adapts a function to AlertSink.
type SinkFunc func(e models.AlertEvent)

func (f SinkFunc) OnAlert(e models.AlertEvent) { f(e) }

// Subscriber reads the fanout channel, decodes each message and hands valid
// events to every sink in registration order. Undecodable messages are
// logged and dropped.
type Subscriber struct {
	transport broker.Transport
	group     string
	sinks     []AlertSink

	processed atomic.Uint64
	invalid   atomic.Uint64
	panics    atomic.Uint64
}

// New creates a subscriber for group.
func New(t broker.Transport, group string, sinks ...AlertSink) *Subscriber {
	return &Subscriber{transport: t, group: group, sinks: sinks}
}

// Run subscribes and blocks until ctx is cancelled or the subscription
// fails.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.transport == nil {
		return errors.New("subscriber: no transport")
	}

	log := logger.WithComponent("subscriber")
	log.Info().
		Str("transport", s.transport.Name()).
		Str("group", s.group).
		Int("sinks", len(s.sinks)).
		Msg("alert subscriber started")
	defer log.Info().Msg("alert subscriber stopped")

	return s.transport.Subscribe(ctx, s.group, s.Handle)
}

// Handle processes one raw message.
func (s *Subscriber) Handle(_ context.Context, payload []byte) {
	log := logger.WithComponent("subscriber")

	event, err := models.DecodeAlertEvent(payload)
	if err != nil {
		s.invalid.Add(1)
		metrics.SubscriberMessages.WithLabelValues("invalid").Inc()
		log.Warn().
			Err(err).
			Int("payload_size", len(payload)).
			Msg("dropping invalid alert message")
		return
	}

	for _, sink := range s.sinks {
		s.dispatch(sink, event)
	}

	s.processed.Add(1)
	metrics.SubscriberMessages.WithLabelValues("processed").Inc()
}

// dispatch isolates sinks from each other's panics.
func (s *Subscriber) dispatch(sink AlertSink, e models.AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			metrics.PanicsRecovered.WithLabelValues("subscriber").Inc()
			log := logger.WithMotor("subscriber", e.MotorID)
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("event_id", e.ID).
				Msg("alert sink panic recovered")
		}
	}()
	sink.OnAlert(e)
}

// Stats returns subscriber statistics
func (s *Subscriber) Stats() Stats {
	return Stats{
		Processed: s.processed.Load(),
		Invalid:   s.invalid.Load(),
		Panics:    s.panics.Load(),
	}
}

// Stats holds subscriber counters
type Stats struct {
	Processed uint64 `json:"processed"`
	Invalid   uint64 `json:"invalid"`
	Panics    uint64 `json:"panics"`
}
