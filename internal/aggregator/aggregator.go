package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/metrics"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// Status is the derived health of a motor.
type Status string

const (
	StatusNormal   Status = "NORMAL"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// Health thresholds: alerts inside the horizon.
const (
	criticalAlerts = 3
	warningAlerts  = 1
)

// Defaults
const (
	DefaultHorizon            = time.Hour
	DefaultMaxPerMotor        = 10
	DefaultFeedSize           = 10
	DefaultDailyRetentionDays = 7

	seenIDCapacity = 4096
)

// DailyCount is the number of alerts a motor raised on one UTC date.
type DailyCount struct {
	MotorID string `json:"motorId"`
	Date    string `json:"date"`
	Count   int    `json:"count"`
}

type dailyKey struct {
	motorID string
	date    string
}

// Aggregator derives per-motor health, a recent-alert feed and daily counts
// from the alert stream. Reads never mutate; entries past the horizon are
// excluded at query time and physically evicted on the next append.
type Aggregator struct {
	mu sync.RWMutex

	windows map[string][]models.AlertEvent // ascending OccurredAt
	feed    []models.AlertEvent            // newest first
	daily   map[dailyKey]int

	// Recently seen event IDs, for redelivered messages.
	seen    map[string]struct{}
	seenLog []string
	seenPos int

	horizon       time.Duration
	maxPerMotor   int
	feedSize      int
	retentionDays int
	now           func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the clock used for eviction and daily pruning.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithHorizon sets how long an alert counts toward health.
func WithHorizon(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.horizon = d
		}
	}
}

// WithMaxPerMotor bounds each motor window.
func WithMaxPerMotor(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxPerMotor = n
		}
	}
}

// WithFeedSize bounds the recent-alert feed.
func WithFeedSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.feedSize = n
		}
	}
}

// WithDailyRetention sets how many past days of tallies are kept.
func WithDailyRetention(days int) Option {
	return func(a *Aggregator) {
		if days > 0 {
			a.retentionDays = days
		}
	}
}

// New creates an empty aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		windows:       make(map[string][]models.AlertEvent),
		daily:         make(map[dailyKey]int),
		seen:          make(map[string]struct{}, seenIDCapacity),
		seenLog:       make([]string, seenIDCapacity),
		horizon:       DefaultHorizon,
		maxPerMotor:   DefaultMaxPerMotor,
		feedSize:      DefaultFeedSize,
		retentionDays: DefaultDailyRetentionDays,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnAlert records one event. Duplicate IDs are ignored.
func (a *Aggregator) OnAlert(e models.AlertEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e.ID != "" {
		if _, dup := a.seen[e.ID]; dup {
			metrics.AggregatorDuplicates.Inc()
			log := logger.WithMotor("aggregator", e.MotorID)
			log.Debug().
				Str("event_id", e.ID).
				Msg("duplicate alert ignored")
			return
		}
		a.remember(e.ID)
	}

	now := a.now()

	a.windows[e.MotorID] = a.appendWindow(a.windows[e.MotorID], e, now)
	metrics.AggregatorMotors.Set(float64(len(a.windows)))

	a.feed = append([]models.AlertEvent{e}, a.feed...)
	if len(a.feed) > a.feedSize {
		a.feed = a.feed[:a.feedSize]
	}

	cutoff := a.dailyCutoff(now)
	date := models.DateKey(e.OccurredAt)
	if date >= cutoff {
		a.daily[dailyKey{motorID: e.MotorID, date: date}]++
	}
	for k := range a.daily {
		if k.date < cutoff {
			delete(a.daily, k)
		}
	}
}

// appendWindow inserts e in OccurredAt order, evicts entries at or before
// now-horizon and keeps the newest maxPerMotor.
func (a *Aggregator) appendWindow(w []models.AlertEvent, e models.AlertEvent, now time.Time) []models.AlertEvent {
	i := sort.Search(len(w), func(i int) bool { return w[i].OccurredAt.After(e.OccurredAt) })
	w = append(w, models.AlertEvent{})
	copy(w[i+1:], w[i:])
	w[i] = e

	edge := now.Add(-a.horizon)
	drop := sort.Search(len(w), func(i int) bool { return w[i].OccurredAt.After(edge) })
	if over := len(w) - drop - a.maxPerMotor; over > 0 {
		drop += over
	}
	if drop > 0 {
		w = append([]models.AlertEvent(nil), w[drop:]...)
	}
	return w
}

func (a *Aggregator) remember(id string) {
	if old := a.seenLog[a.seenPos]; old != "" {
		delete(a.seen, old)
	}
	a.seenLog[a.seenPos] = id
	a.seen[id] = struct{}{}
	a.seenPos = (a.seenPos + 1) % len(a.seenLog)
}

// dailyCutoff is the oldest date still tallied.
func (a *Aggregator) dailyCutoff(now time.Time) string {
	return models.DateKey(now.UTC().AddDate(0, 0, -a.retentionDays))
}

// HealthStatus derives a motor's status from the alerts in its window that
// occurred after now-horizon. Unknown motors are NORMAL.
func (a *Aggregator) HealthStatus(motorID string, now time.Time) Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status(a.windows[motorID], now)
}

func (a *Aggregator) status(w []models.AlertEvent, now time.Time) Status {
	edge := now.Add(-a.horizon)
	n := 0
	for _, e := range w {
		if e.OccurredAt.After(edge) {
			n++
		}
	}
	switch {
	case n >= criticalAlerts:
		return StatusCritical
	case n >= warningAlerts:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// Health returns the status of every motor that has raised an alert.
func (a *Aggregator) Health(now time.Time) map[string]Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]Status, len(a.windows))
	for id, w := range a.windows {
		out[id] = a.status(w, now)
	}
	return out
}

// Window returns a copy of a motor's retained alerts, oldest first.
func (a *Aggregator) Window(motorID string) []models.AlertEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.AlertEvent(nil), a.windows[motorID]...)
}

// ActiveAlerts returns the most recently received alerts, newest first.
func (a *Aggregator) ActiveAlerts() []models.AlertEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append(make([]models.AlertEvent, 0, len(a.feed)), a.feed...)
}

// DailySummary returns the retained tallies ordered by date descending then
// motor ascending.
func (a *Aggregator) DailySummary() []DailyCount {
	a.mu.RLock()
	out := make([]DailyCount, 0, len(a.daily))
	for k, n := range a.daily {
		out = append(out, DailyCount{MotorID: k.motorID, Date: k.date, Count: n})
	}
	a.mu.RUnlock()

	SortDailyCounts(out)
	return out
}

// ChartSeries returns one row per date, newest first.
func (a *Aggregator) ChartSeries() []ChartRow {
	return BuildChartSeries(a.DailySummary())
}

// Snapshot is a consistent view for newly connected dashboards.
type Snapshot struct {
	ActiveAlerts []models.AlertEvent `json:"activeAlerts"`
	Health       map[string]Status   `json:"health"`
}

// Snapshot returns the feed and health under one read lock.
func (a *Aggregator) Snapshot(now time.Time) Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	health := make(map[string]Status, len(a.windows))
	for id, w := range a.windows {
		health[id] = a.status(w, now)
	}
	return Snapshot{
		ActiveAlerts: append(make([]models.AlertEvent, 0, len(a.feed)), a.feed...),
		Health:       health,
	}
}

// Now returns the aggregator clock's current time.
func (a *Aggregator) Now() time.Time {
	return a.now()
}

// Stats returns aggregator sizes
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{
		Motors:       len(a.windows),
		FeedSize:     len(a.feed),
		DailyTallies: len(a.daily),
	}
}

// Stats holds aggregator sizes
type Stats struct {
	Motors       int `json:"motors"`
	FeedSize     int `json:"feed_size"`
	DailyTallies int `json:"daily_tallies"`
}
