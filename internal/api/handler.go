package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dymasius12/factory-motor-monitoring/internal/aggregator"
	"github.com/dymasius12/factory-motor-monitoring/internal/handlers"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// Sources reported by the daily endpoints.
const (
	SourceAggregator = "aggregator"
	SourceHistory    = "history"
)

const maxDays = 366

// HistoryReader answers daily-count queries over archived alerts.
type HistoryReader interface {
	DailyCounts(ctx context.Context, start, end time.Time) ([]aggregator.DailyCount, error)
}

// Config wires the dashboard read API.
type Config struct {
	Aggregator *aggregator.Aggregator
	// History is optional. When nil, or when a query fails, daily counts
	// come from the aggregator's in-memory tallies.
	History       HistoryReader
	QueryTimeout  time.Duration
	RetentionDays int
}

// Handler serves the dashboard read API.
type Handler struct {
	agg           *aggregator.Aggregator
	history       HistoryReader
	queryTimeout  time.Duration
	retentionDays int
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = aggregator.DefaultDailyRetentionDays
	}
	return &Handler{
		agg:           cfg.Aggregator,
		history:       cfg.History,
		queryTimeout:  cfg.QueryTimeout,
		retentionDays: cfg.RetentionDays,
	}
}

// Routes registers the read endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/alerts/active", h.activeAlerts)
	r.Get("/api/alerts/daily", h.dailyCounts)
	r.Get("/api/alerts/chart", h.chart)
	r.Get("/api/motors/health", h.motorsHealth)
	r.Get("/api/motors/{motorID}/health", h.motorHealth)
}

// ActiveAlertsResponse is the body of GET /api/alerts/active.
type ActiveAlertsResponse struct {
	Alerts []models.AlertEvent `json:"alerts"`
	Count  int                 `json:"count"`
}

// MotorHealth is one motor's derived status.
type MotorHealth struct {
	MotorID string              `json:"motorId"`
	Status  aggregator.Status   `json:"status"`
	Alerts  []models.AlertEvent `json:"alerts,omitempty"`
}

// MotorsHealthResponse is the body of GET /api/motors/health.
type MotorsHealthResponse struct {
	Motors    []MotorHealth `json:"motors"`
	Timestamp string        `json:"timestamp"`
}

// DailyResponse is the body of GET /api/alerts/daily.
type DailyResponse struct {
	Source string                  `json:"source"`
	Days   int                     `json:"days"`
	Counts []aggregator.DailyCount `json:"counts"`
}

// ChartResponse is the body of GET /api/alerts/chart.
type ChartResponse struct {
	Source string                `json:"source"`
	Days   int                   `json:"days"`
	Rows   []aggregator.ChartRow `json:"rows"`
}

func (h *Handler) activeAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := h.agg.ActiveAlerts()
	handlers.WriteJSON(w, http.StatusOK, ActiveAlertsResponse{Alerts: alerts, Count: len(alerts)})
}

func (h *Handler) motorsHealth(w http.ResponseWriter, _ *http.Request) {
	now := h.agg.Now()
	health := h.agg.Health(now)

	motors := make([]MotorHealth, 0, len(health))
	for id, st := range health {
		motors = append(motors, MotorHealth{MotorID: id, Status: st})
	}
	sort.Slice(motors, func(i, j int) bool { return motors[i].MotorID < motors[j].MotorID })

	handlers.WriteJSON(w, http.StatusOK, MotorsHealthResponse{
		Motors:    motors,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	})
}

// motorHealth answers for any motor id; motors without alerts are NORMAL.
func (h *Handler) motorHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "motorID")
	if id == "" {
		handlers.WriteError(w, http.StatusBadRequest, "motorId is required")
		return
	}

	handlers.WriteJSON(w, http.StatusOK, MotorHealth{
		MotorID: id,
		Status:  h.agg.HealthStatus(id, h.agg.Now()),
		Alerts:  h.agg.Window(id),
	})
}

func (h *Handler) dailyCounts(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseDays(w, r)
	if !ok {
		return
	}
	counts, source := h.loadDaily(r.Context(), days)
	handlers.WriteJSON(w, http.StatusOK, DailyResponse{Source: source, Days: days, Counts: counts})
}

func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseDays(w, r)
	if !ok {
		return
	}
	counts, source := h.loadDaily(r.Context(), days)
	handlers.WriteJSON(w, http.StatusOK, ChartResponse{
		Source: source,
		Days:   days,
		Rows:   aggregator.BuildChartSeries(counts),
	})
}

// parseDays reads the optional ?days= parameter. It writes a 400 and
// reports false when the value is invalid.
func (h *Handler) parseDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return h.retentionDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 || days > maxDays {
		handlers.WriteError(w, http.StatusBadRequest, "days must be an integer between 1 and 366")
		return 0, false
	}
	return days, true
}

// loadDaily returns counts for the last days dates, today included.
func (h *Handler) loadDaily(ctx context.Context, days int) ([]aggregator.DailyCount, string) {
	now := h.agg.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(days - 1))

	if h.history != nil {
		qctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()

		counts, err := h.history.DailyCounts(qctx, start, today.AddDate(0, 0, 1))
		if err == nil {
			if counts == nil {
				counts = []aggregator.DailyCount{}
			}
			return counts, SourceHistory
		}
		log := logger.WithComponent("api")
		log.Warn().
			Err(err).
			Int("days", days).
			Msg("history query failed, serving in-memory counts")
	}

	from := models.DateKey(start)
	all := h.agg.DailySummary()
	counts := make([]aggregator.DailyCount, 0, len(all))
	for _, c := range all {
		if c.Date >= from {
			counts = append(counts, c)
		}
	}
	return counts, SourceAggregator
}
