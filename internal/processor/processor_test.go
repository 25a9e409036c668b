package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/aggregator"
	"github.com/dymasius12/factory-motor-monitoring/internal/api"
	"github.com/dymasius12/factory-motor-monitoring/internal/broker"
	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/handlers"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func postReading(t *testing.T, url string, body string) handlers.IngestResponse {
	t.Helper()
	resp, err := http.Post(url+"/api/sensor", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post reading: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out handlers.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}
	return out
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestProcessor_EndToEndMemory(t *testing.T) {
	p := New(testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	defer func() {
		cancel()
		p.Shutdown()
	}()

	mem, ok := p.transport.(*broker.Memory)
	if !ok {
		t.Fatalf("expected memory transport, got %T", p.transport)
	}
	eventually(t, func() bool { return mem.Subscribers() == 1 })

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	got := postReading(t, srv.URL, `{"motorId":"motor-001","timestamp":"`+now+`","vibration":3.0,"temperature":85}`)
	if got.AlertsTriggered != 2 {
		t.Fatalf("expected 2 alerts, got %d", got.AlertsTriggered)
	}

	var active api.ActiveAlertsResponse
	eventually(t, func() bool {
		getJSON(t, srv.URL+"/api/alerts/active", &active)
		return active.Count == 2
	})

	var health api.MotorHealth
	getJSON(t, srv.URL+"/api/motors/motor-001/health", &health)
	if health.Status != aggregator.StatusWarning {
		t.Errorf("expected WARNING, got %s", health.Status)
	}

	var stats Stats
	eventually(t, func() bool {
		getJSON(t, srv.URL+"/stats", &stats)
		return len(stats.Subscribers) == 1 && stats.Subscribers[0].Processed == 2
	})
	if stats.Transport != "memory" {
		t.Errorf("expected memory transport, got %s", stats.Transport)
	}
	if stats.Publisher.Published != 2 {
		t.Errorf("expected 2 published, got %d", stats.Publisher.Published)
	}
}

func TestProcessor_FanoutDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Driver = config.DriverNone

	p := New(cfg)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.transport != nil {
		t.Fatalf("expected no transport, got %s", p.transport.Name())
	}
	if len(p.subscribers) != 0 {
		t.Errorf("expected no subscribers, got %d", len(p.subscribers))
	}

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	got := postReading(t, srv.URL, `{"motorId":"motor-002","timestamp":"2024-01-15T10:30:00Z","vibration":3.1,"temperature":70}`)
	if got.AlertsTriggered != 1 {
		t.Errorf("expected 1 alert, got %d", got.AlertsTriggered)
	}
	if dropped := p.publisher.Stats().Dropped; dropped != 1 {
		t.Errorf("expected 1 dropped alert, got %d", dropped)
	}
}

func TestProcessor_BrokerUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		wantErr  bool
	}{
		{"degrades", false, false},
		{"required", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Broker.Driver = config.DriverRedis
			cfg.Broker.Redis.Addr = "127.0.0.1:1"
			cfg.Broker.Required = tt.required

			p := New(cfg)
			err := p.Init(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.publisher.Available() {
				t.Error("expected publisher to be unavailable")
			}
		})
	}
}

func TestProcessor_ApplyConfig(t *testing.T) {
	p := New(testConfig())
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	next := config.Default()
	next.LogLevel = "debug"
	next.Thresholds.Vibration = 4.0
	next.Thresholds.Temperature = 95
	p.applyConfig(next)
	defer p.applyConfig(config.Default())

	got := p.engine.Thresholds()
	if got.Vibration != 4.0 || got.Temperature != 95 {
		t.Errorf("thresholds not applied: %+v", got)
	}
}

func TestProcessor_RunGracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Driver = config.DriverNone
	p := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on graceful shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not shut down in time")
	}
}
