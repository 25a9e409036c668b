package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"sync/atomic"

	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/metrics"
	"github.com/dymasius12/factory-motor-monitoring/internal/middleware"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

const (
	MsgSuccess       = "Sensor data processed"
	MsgInvalidJSON   = "invalid JSON body"
	MsgBodyTooLarge  = "request body too large"
	MsgInternalError = "Internal server error"

	defaultMaxBodySize = 1 << 20
)

// Evaluator turns a validated reading into alert events.
type Evaluator interface {
	Evaluate(r models.SensorReading) []models.AlertEvent
}

// AlertPublisher sends one alert event to the fanout channel.
type AlertPublisher interface {
	Publish(ctx context.Context, event models.AlertEvent) error
}

// IngestHandler handles sensor readings posted over HTTP. Each reading is
// validated, evaluated and its alerts published in order.
type IngestHandler struct {
	evaluator   Evaluator
	publisher   AlertPublisher
	maxBodySize int64

	// Counters
	accepted      atomic.Uint64
	rejected      atomic.Uint64
	alerts        atomic.Uint64
	publishFailed atomic.Uint64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Evaluator   Evaluator
	Publisher   AlertPublisher
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &IngestHandler{
		evaluator:   cfg.Evaluator,
		publisher:   cfg.Publisher,
		maxBodySize: maxBodySize,
	}
}

// IngestResponse is the success body.
type IngestResponse struct {
	Status          string                `json:"status"`
	Message         string                `json:"message"`
	AlertsTriggered int                   `json:"alertsTriggered"`
	Alerts          []models.AlertSummary `json:"alerts"`
}

// IngestResult is the outcome of one accepted reading.
type IngestResult struct {
	Reading models.SensorReading
	Alerts  []models.AlertEvent
	// PublishFailures counts alerts the transport rejected.
	PublishFailures int
}

// Response converts the result into the HTTP success body.
func (r IngestResult) Response() IngestResponse {
	summaries := make([]models.AlertSummary, 0, len(r.Alerts))
	for _, a := range r.Alerts {
		summaries = append(summaries, a.Summary())
	}
	return IngestResponse{
		Status:          "success",
		Message:         MsgSuccess,
		AlertsTriggered: len(r.Alerts),
		Alerts:          summaries,
	}
}

// Ingest validates raw, evaluates it and publishes each alert, awaiting each
// publish before the next. Publish failures are logged and counted but do
// not fail the reading. The only error returned is a *models.ValidationError.
func (h *IngestHandler) Ingest(ctx context.Context, raw models.RawReading) (IngestResult, error) {
	reading, err := raw.Validate()
	if err != nil {
		h.rejected.Add(1)
		metrics.ReadingsTotal.WithLabelValues("rejected").Inc()
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationErrors.WithLabelValues(string(verr.Kind)).Inc()
		}
		return IngestResult{}, err
	}

	h.accepted.Add(1)
	metrics.ReadingsTotal.WithLabelValues("accepted").Inc()

	log := logger.WithMotor("ingest", reading.MotorID)
	result := IngestResult{Reading: reading, Alerts: h.evaluator.Evaluate(reading)}

	for _, alert := range result.Alerts {
		h.alerts.Add(1)
		if err := h.publisher.Publish(ctx, alert); err != nil {
			result.PublishFailures++
			h.publishFailed.Add(1)
			log.Error().
				Err(err).
				Str("event_id", alert.ID).
				Str("alert_type", string(alert.AlertType)).
				Msg("failed to publish alert")
			continue
		}
	}

	if len(result.Alerts) > 0 {
		log.Info().
			Int("alerts", len(result.Alerts)).
			Float64("vibration", reading.Vibration).
			Float64("temperature", reading.Temperature).
			Msg("reading triggered alerts")
	}

	return result, nil
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			WriteError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
			return
		}
		WriteError(w, http.StatusBadRequest, MsgInvalidJSON)
		return
	}

	raw, err := decodeReading(body)
	if err != nil {
		h.rejected.Add(1)
		metrics.ReadingsTotal.WithLabelValues("rejected").Inc()
		metrics.ValidationErrors.WithLabelValues("invalid_json").Inc()
		WriteError(w, http.StatusBadRequest, MsgInvalidJSON)
		return
	}

	result, err := h.Ingest(r.Context(), raw)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			log := logger.WithComponent("ingest")
			log.Debug().
				Str("request_id", middleware.GetRequestID(r.Context())).
				Str("kind", string(verr.Kind)).
				Msg(verr.Message)
			WriteError(w, http.StatusBadRequest, verr.Message)
			return
		}
		log := logger.WithComponent("ingest")
		log.Error().Err(err).Msg("ingest failed")
		WriteError(w, http.StatusInternalServerError, MsgInternalError)
		return
	}

	WriteJSON(w, http.StatusOK, result.Response())
}

// decodeReading parses a single reading object. An empty body decodes as an
// object with every field missing.
func decodeReading(body []byte) (models.RawReading, error) {
	var raw models.RawReading
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.RawReading{}, err
	}
	return raw, nil
}

// Stats returns ingest counters
func (h *IngestHandler) Stats() IngestStats {
	return IngestStats{
		Accepted:      h.accepted.Load(),
		Rejected:      h.rejected.Load(),
		Alerts:        h.alerts.Load(),
		PublishFailed: h.publishFailed.Load(),
	}
}

// IngestStats holds ingest counters
type IngestStats struct {
	Accepted      uint64 `json:"accepted"`
	Rejected      uint64 `json:"rejected"`
	Alerts        uint64 `json:"alerts"`
	PublishFailed uint64 `json:"publish_failed"`
}
