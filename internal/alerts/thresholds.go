package alerts

import (
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// Default limits
const (
	DefaultVibrationThreshold   = 2.5  // g
	DefaultTemperatureThreshold = 80.0 // °C
)

// Thresholds holds the alert limits. A reading trips a limit only when it is
// strictly greater than it.
type Thresholds struct {
	Vibration   float64 `json:"vibration"`
	Temperature float64 `json:"temperature"`
}

// DefaultThresholds returns the factory limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Vibration:   DefaultVibrationThreshold,
		Temperature: DefaultTemperatureThreshold,
	}
}

// Evaluate maps a reading to zero, one or two alert events, vibration first.
// The result depends only on its arguments. ID is left empty.
func (t Thresholds) Evaluate(r models.SensorReading, evaluatedAt time.Time) []models.AlertEvent {
	var out []models.AlertEvent

	if r.Vibration > t.Vibration {
		out = append(out, models.AlertEvent{
			MotorID:     r.MotorID,
			SensorType:  models.SensorVibration,
			Value:       r.Vibration,
			AlertType:   models.AlertHighVibration,
			OccurredAt:  r.Timestamp,
			PublishedAt: evaluatedAt.UTC(),
		})
	}

	if r.Temperature > t.Temperature {
		out = append(out, models.AlertEvent{
			MotorID:     r.MotorID,
			SensorType:  models.SensorTemperature,
			Value:       r.Temperature,
			AlertType:   models.AlertHighTemperature,
			OccurredAt:  r.Timestamp,
			PublishedAt: evaluatedAt.UTC(),
		})
	}

	return out
}
