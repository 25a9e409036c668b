package alerts_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/alerts"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

var (
	readingTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	evalTime    = time.Date(2024, 3, 1, 10, 0, 2, 0, time.UTC)
)

func reading(vib, temp float64) models.SensorReading {
	return models.SensorReading{
		MotorID:     "motor-001",
		Timestamp:   readingTime,
		Vibration:   vib,
		Temperature: temp,
	}
}

func TestThresholdsEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		vib, temp float64
		want      []models.AlertType
		values    []float64
	}{
		{"high vibration only", 3.2, 75, []models.AlertType{models.AlertHighVibration}, []float64{3.2}},
		{"high temperature only", 2.0, 85.1, []models.AlertType{models.AlertHighTemperature}, []float64{85.1}},
		{"both, vibration first", 3.5, 90, []models.AlertType{models.AlertHighVibration, models.AlertHighTemperature}, []float64{3.5, 90}},
		{"normal", 2.0, 75, nil, nil},
		{"vibration at limit", 2.5, 75, nil, nil},
		{"temperature at limit", 2.0, 80, nil, nil},
	}

	th := alerts.DefaultThresholds()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := th.Evaluate(reading(tt.vib, tt.temp), evalTime)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d alerts, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.AlertType != tt.want[i] {
					t.Errorf("alert[%d] type = %s, want %s", i, e.AlertType, tt.want[i])
				}
				if e.Value != tt.values[i] {
					t.Errorf("alert[%d] value = %v, want %v", i, e.Value, tt.values[i])
				}
				if want, _ := models.AlertTypeFor(e.SensorType); want != e.AlertType {
					t.Errorf("alert[%d] pairs %s with %s", i, e.SensorType, e.AlertType)
				}
				if !e.OccurredAt.Equal(readingTime) {
					t.Errorf("alert[%d] OccurredAt = %v, want reading time", i, e.OccurredAt)
				}
				if !e.PublishedAt.Equal(evalTime) {
					t.Errorf("alert[%d] PublishedAt = %v, want evaluation time", i, e.PublishedAt)
				}
				if e.MotorID != "motor-001" {
					t.Errorf("alert[%d] MotorID = %q", i, e.MotorID)
				}
			}
		})
	}
}

func TestThresholdsEvaluateDeterministic(t *testing.T) {
	th := alerts.DefaultThresholds()
	r := reading(3.5, 90)
	first := th.Evaluate(r, evalTime)
	second := th.Evaluate(r, evalTime)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Evaluate not deterministic: %+v vs %+v", first, second)
	}
}

func TestEngineStampsIDs(t *testing.T) {
	n := 0
	e := alerts.NewEngine(alerts.DefaultThresholds(),
		alerts.WithClock(func() time.Time { return evalTime }),
		alerts.WithIDGenerator(func() string {
			n++
			return "evt-" + string(rune('0'+n))
		}),
	)

	got := e.Evaluate(reading(3.5, 90))
	if len(got) != 2 {
		t.Fatalf("got %d alerts, want 2", len(got))
	}
	if got[0].ID != "evt-1" || got[1].ID != "evt-2" {
		t.Errorf("ids = %q, %q", got[0].ID, got[1].ID)
	}
	if !got[0].PublishedAt.Equal(evalTime) {
		t.Errorf("PublishedAt = %v, want %v", got[0].PublishedAt, evalTime)
	}
}

func TestEngineDefaultIDsAreUnique(t *testing.T) {
	e := alerts.NewEngine(alerts.DefaultThresholds())
	got := e.Evaluate(reading(3.5, 90))
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", got[0].ID, got[1].ID)
	}
}

func TestEngineSetThresholds(t *testing.T) {
	e := alerts.NewEngine(alerts.DefaultThresholds())
	if got := e.Evaluate(reading(3.0, 75)); len(got) != 1 {
		t.Fatalf("got %d alerts before update, want 1", len(got))
	}

	e.SetThresholds(alerts.Thresholds{Vibration: 4.0, Temperature: 80})
	if got := e.Evaluate(reading(3.0, 75)); len(got) != 0 {
		t.Errorf("got %d alerts after raising limit, want 0", len(got))
	}
	if e.Thresholds().Vibration != 4.0 {
		t.Errorf("Thresholds().Vibration = %v, want 4.0", e.Thresholds().Vibration)
	}
}
