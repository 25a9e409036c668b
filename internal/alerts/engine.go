package alerts

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/metrics"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// Engine evaluates readings against the active thresholds and stamps each
// resulting alert with an ID and the evaluation time.
type Engine struct {
	thresholds atomic.Pointer[Thresholds]
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the evaluation clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides event ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(t Thresholds, opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.thresholds.Store(&t)
	return e
}

// Thresholds returns the limits currently in force.
func (e *Engine) Thresholds() Thresholds {
	return *e.thresholds.Load()
}

// SetThresholds swaps the limits. Evaluations already in flight keep the
// old values.
func (e *Engine) SetThresholds(t Thresholds) {
	old := e.thresholds.Swap(&t)
	log := logger.WithComponent("alert_engine")
	log.Info().
		Float64("vibration", t.Vibration).
		Float64("temperature", t.Temperature).
		Float64("old_vibration", old.Vibration).
		Float64("old_temperature", old.Temperature).
		Msg("thresholds updated")
}

// Evaluate returns the alerts for r with IDs assigned.
func (e *Engine) Evaluate(r models.SensorReading) []models.AlertEvent {
	events := e.thresholds.Load().Evaluate(r, e.now())
	for i := range events {
		events[i].ID = e.newID()
		metrics.AlertsTriggered.WithLabelValues(string(events[i].AlertType)).Inc()
	}
	return events
}
