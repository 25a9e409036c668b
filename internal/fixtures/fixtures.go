// Package fixtures generates deterministic sensor readings and alert events
// for tests and the sensor simulator.
package fixtures

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// Case is the kind of reading a fixture produces.
type Case string

const (
	CaseNormal      Case = "normal"
	CaseVibration   Case = "vibration"
	CaseTemperature Case = "temperature"
	CaseBoth        Case = "both"
	CaseInvalid     Case = "invalid"
)

// Cases lists every case in a stable order.
var Cases = []Case{CaseNormal, CaseVibration, CaseTemperature, CaseBoth, CaseInvalid}

// ExpectedAlerts is the number of alerts a case triggers under the default
// thresholds. Invalid readings trigger none.
func (c Case) ExpectedAlerts() int {
	switch c {
	case CaseVibration, CaseTemperature:
		return 1
	case CaseBoth:
		return 2
	default:
		return 0
	}
}

// Generator produces readings from a seeded source. It is not safe for
// concurrent use.
type Generator struct {
	rng    *rand.Rand
	motors []string
}

// NewGenerator creates a generator over motors MTR-01..MTR-nn.
func NewGenerator(seed int64, motors int) *Generator {
	if motors <= 0 {
		motors = 3
	}
	ids := make([]string, motors)
	for i := range ids {
		ids[i] = fmt.Sprintf("MTR-%02d", i+1)
	}
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		motors: ids,
	}
}

// Motors returns the motor IDs the generator draws from.
func (g *Generator) Motors() []string {
	return append([]string(nil), g.motors...)
}

// Reading returns a reading of case c for a random motor at time at.
func (g *Generator) Reading(c Case, at time.Time) models.RawReading {
	motor := g.motors[g.rng.Intn(len(g.motors))]
	ts := at.UTC().Format(time.RFC3339)

	var vib, temp float64
	switch c {
	case CaseVibration:
		vib, temp = g.highVibration(), g.normalTemperature()
	case CaseTemperature:
		vib, temp = g.normalVibration(), g.highTemperature()
	case CaseBoth:
		vib, temp = g.highVibration(), g.highTemperature()
	case CaseInvalid:
		return g.invalid(motor, ts)
	default:
		vib, temp = g.normalVibration(), g.normalTemperature()
	}
	return NewRawReading(motor, ts, vib, temp)
}

// Next returns a reading of a random case. Roughly two in three readings
// are normal.
func (g *Generator) Next(at time.Time) (Case, models.RawReading) {
	var c Case
	switch n := g.rng.Intn(12); {
	case n < 8:
		c = CaseNormal
	case n < 9:
		c = CaseVibration
	case n < 10:
		c = CaseTemperature
	case n < 11:
		c = CaseBoth
	default:
		c = CaseInvalid
	}
	return c, g.Reading(c, at)
}

// Alert returns a valid alert event for a random motor.
func (g *Generator) Alert(id string, at time.Time) models.AlertEvent {
	motor := g.motors[g.rng.Intn(len(g.motors))]
	e := models.AlertEvent{
		ID:          id,
		MotorID:     motor,
		SensorType:  models.SensorVibration,
		Value:       g.highVibration(),
		AlertType:   models.AlertHighVibration,
		OccurredAt:  at.UTC(),
		PublishedAt: at.UTC(),
	}
	if g.rng.Intn(2) == 1 {
		e.SensorType = models.SensorTemperature
		e.AlertType = models.AlertHighTemperature
		e.Value = g.highTemperature()
	}
	return e
}

// Values are rounded to two decimals so fixtures read like real payloads.
// Ranges stay clear of the default limits.

func (g *Generator) normalVibration() float64   { return round2(0.5 + g.rng.Float64()*1.9) }
func (g *Generator) highVibration() float64     { return round2(2.6 + g.rng.Float64()*1.4) }
func (g *Generator) normalTemperature() float64 { return round2(40 + g.rng.Float64()*39) }
func (g *Generator) highTemperature() float64   { return round2(80.5 + g.rng.Float64()*14.5) }

func (g *Generator) invalid(motor, ts string) models.RawReading {
	switch g.rng.Intn(4) {
	case 0:
		r := NewRawReading(motor, ts, 2.0, 70)
		r.Temperature = nil
		return r
	case 1:
		return NewRawReading(motor, ts, 0, 70)
	case 2:
		return NewRawReading(motor, ts, 2.0, -60)
	default:
		return NewRawReading(motor, "28/07/2025 10:15", 2.0, 70)
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// NewRawReading builds a reading with every field present.
func NewRawReading(motorID, timestamp string, vibration, temperature float64) models.RawReading {
	return models.RawReading{
		MotorID:     &motorID,
		Timestamp:   &timestamp,
		Vibration:   &vibration,
		Temperature: &temperature,
	}
}

// Sample is a named reading with its expected outcome.
type Sample struct {
	Name    string
	Case    Case
	Reading models.RawReading
}

// Samples returns the fixed smoke-test set: one reading per alert case and
// one per validation failure.
func Samples() []Sample {
	missing := NewRawReading("MTR-05", "2025-07-28T10:19:00Z", 2.0, 0)
	missing.Temperature = nil

	return []Sample{
		{"no alerts", CaseNormal, NewRawReading("MTR-01", "2025-07-28T10:15:00Z", 2.0, 75.0)},
		{"vibration alert", CaseVibration, NewRawReading("MTR-02", "2025-07-28T10:16:00Z", 3.2, 75.0)},
		{"temperature alert", CaseTemperature, NewRawReading("MTR-03", "2025-07-28T10:17:00Z", 2.0, 85.1)},
		{"both alerts", CaseBoth, NewRawReading("MTR-04", "2025-07-28T10:18:00Z", 3.5, 90.0)},
		{"missing temperature", CaseInvalid, missing},
		{"vibration not positive", CaseInvalid, NewRawReading("MTR-06", "2025-07-28T10:20:00Z", 0, 75.0)},
		{"temperature too low", CaseInvalid, NewRawReading("MTR-07", "2025-07-28T10:21:00Z", 2.0, -60.0)},
	}
}

// recordedLine is one line of a recorded sensor log.
type recordedLine struct {
	MotorID     *string  `json:"motor_id"`
	Timestamp   *string  `json:"timestamp"`
	Vibration   *float64 `json:"vibration_g"`
	Temperature *float64 `json:"temperature_c"`
}

// ReadJSONL parses a recorded sensor log with one JSON object per line
// (motor_id, timestamp, vibration_g, temperature_c). Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]models.RawReading, error) {
	var out []models.RawReading

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec recordedLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, models.RawReading{
			MotorID:     rec.MotorID,
			Timestamp:   rec.Timestamp,
			Vibration:   rec.Vibration,
			Temperature: rec.Temperature,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sensor log: %w", err)
	}
	return out, nil
}
