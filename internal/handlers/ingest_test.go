package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/alerts"
	"github.com/dymasius12/factory-motor-monitoring/internal/handlers"
	"github.com/dymasius12/factory-motor-monitoring/internal/middleware"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
	"github.com/dymasius12/factory-motor-monitoring/internal/publisher"
)

// mockPublisher records published alerts and can be told to fail.
type mockPublisher struct {
	mu     sync.Mutex
	events []models.AlertEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e models.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockPublisher) published() []models.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AlertEvent(nil), m.events...)
}

func newHandler(pub handlers.AlertPublisher) *handlers.IngestHandler {
	return handlers.NewIngestHandler(handlers.IngestConfig{
		Evaluator: alerts.NewEngine(alerts.DefaultThresholds()),
		Publisher: pub,
	})
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sensor", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func reading(vib, temp string) string {
	return `{"motorId":"motor-001","timestamp":"2024-03-01T10:00:00Z","vibration":` + vib + `,"temperature":` + temp + `}`
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) handlers.IngestResponse {
	t.Helper()
	var resp handlers.IngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestIngestHandler_Readings(t *testing.T) {
	tests := []struct {
		name      string
		vib, temp string
		want      []models.AlertType
	}{
		{"high vibration", "3.2", "75", []models.AlertType{models.AlertHighVibration}},
		{"high temperature", "2.0", "85.1", []models.AlertType{models.AlertHighTemperature}},
		{"both", "3.5", "90", []models.AlertType{models.AlertHighVibration, models.AlertHighTemperature}},
		{"normal", "2.0", "75", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{}
			w := post(t, newHandler(pub), reading(tt.vib, tt.temp))

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			resp := decodeResponse(t, w)
			if resp.Status != "success" || resp.Message != handlers.MsgSuccess {
				t.Errorf("unexpected response: %+v", resp)
			}
			if resp.AlertsTriggered != len(tt.want) || len(resp.Alerts) != len(tt.want) {
				t.Fatalf("alertsTriggered = %d, alerts = %d, want %d", resp.AlertsTriggered, len(resp.Alerts), len(tt.want))
			}

			published := pub.published()
			if len(published) != len(tt.want) {
				t.Fatalf("published %d alerts, want %d", len(published), len(tt.want))
			}
			for i, at := range tt.want {
				if resp.Alerts[i].AlertType != at || published[i].AlertType != at {
					t.Errorf("alert[%d] = %s / published %s, want %s", i, resp.Alerts[i].AlertType, published[i].AlertType, at)
				}
			}
		})
	}
}

func TestIngestHandler_EmptyAlertsIsArray(t *testing.T) {
	w := post(t, newHandler(&mockPublisher{}), reading("2.0", "75"))
	if !strings.Contains(w.Body.String(), `"alerts":[]`) {
		t.Errorf("body %s should contain an empty alerts array", w.Body.String())
	}
}

func TestIngestHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing temperature", `{"motorId":"m1","timestamp":"2024-03-01T10:00:00Z","vibration":3.2}`, models.MsgMissingFields},
		{"empty body", ``, models.MsgMissingFields},
		{"zero vibration", reading("0", "75"), models.MsgVibrationRange},
		{"cold temperature", reading("2.0", "-60"), models.MsgTemperatureRange},
		{"bad timestamp", `{"motorId":"m1","timestamp":"not-a-date","vibration":3.2,"temperature":75}`, models.MsgInvalidTimestamp},
		{"malformed json", `{"motorId":`, handlers.MsgInvalidJSON},
		{"string vibration", `{"motorId":"m1","timestamp":"2024-03-01T10:00:00Z","vibration":"high","temperature":75}`, handlers.MsgInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{}
			w := post(t, newHandler(pub), tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			var body handlers.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse error body: %v", err)
			}
			if body.Error != tt.want {
				t.Errorf("error = %q, want %q", body.Error, tt.want)
			}
			if n := len(pub.published()); n != 0 {
				t.Errorf("published %d alerts for a rejected reading", n)
			}
		})
	}
}

func TestIngestHandler_PublishFailureStillSucceeds(t *testing.T) {
	pub := &mockPublisher{err: &publisher.PublishError{EventID: "x", Err: errors.New("broker down")}}
	h := newHandler(pub)
	w := post(t, h, reading("3.5", "90"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decodeResponse(t, w); resp.AlertsTriggered != 2 {
		t.Errorf("alertsTriggered = %d, want 2", resp.AlertsTriggered)
	}
	if len(pub.published()) != 2 {
		t.Errorf("second alert was not attempted after the first failed")
	}
	if s := h.Stats(); s.PublishFailed != 2 || s.Accepted != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestIngestHandler_BrokerUnavailable(t *testing.T) {
	w := post(t, newHandler(publisher.New(nil, time.Second)), reading("3.2", "75"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.AlertsTriggered != 1 || resp.Alerts[0].SensorType != models.SensorVibration || resp.Alerts[0].Value != 3.2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestIngestHandler_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/sensor", nil)
	w := httptest.NewRecorder()
	newHandler(&mockPublisher{}).ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestIngestHandler_BodyTooLarge(t *testing.T) {
	h := handlers.NewIngestHandler(handlers.IngestConfig{
		Evaluator:   alerts.NewEngine(alerts.DefaultThresholds()),
		Publisher:   &mockPublisher{},
		MaxBodySize: 16,
	})
	w := post(t, h, reading("3.2", "75"))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", w.Code)
	}
}

func TestIngestHandler_WrongContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sensor", strings.NewReader("motorId=m1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	newHandler(&mockPublisher{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected status 415, got %d", w.Code)
	}
}

type panicEvaluator struct{}

func (panicEvaluator) Evaluate(models.SensorReading) []models.AlertEvent { panic("evaluator bug") }

func TestIngestHandler_PanicIsGeneric500(t *testing.T) {
	h := handlers.NewIngestHandler(handlers.IngestConfig{
		Evaluator: panicEvaluator{},
		Publisher: &mockPublisher{},
	})
	w := post(t, middleware.Recovery(h), reading("3.2", "75"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	var body handlers.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != handlers.MsgInternalError {
		t.Errorf("error = %q, want %q", body.Error, handlers.MsgInternalError)
	}
}

func TestIngest_ReturnsValidationError(t *testing.T) {
	h := newHandler(&mockPublisher{})
	_, err := h.Ingest(context.Background(), models.RawReading{})
	if !errors.Is(err, models.ErrMissingField) {
		t.Errorf("Ingest error = %v, want ErrMissingField", err)
	}
}

func TestHealthHandler(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	h := handlers.NewHealthHandler(func() time.Time { return now })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body handlers.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body.Status != "healthy" || body.Timestamp != "2024-03-01T10:00:00Z" {
		t.Errorf("unexpected body: %+v", body)
	}
}
