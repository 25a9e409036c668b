package models

import (
	"strings"
	"time"
)

// Validation messages returned to HTTP callers.
const (
	MsgMissingFields      = "all fields (motorId, timestamp, vibration, temperature) are required"
	MsgVibrationRange     = "vibration must be greater than 0"
	MsgTemperatureRange   = "temperature must be greater than -50"
	MsgInvalidTimestamp   = "invalid timestamp format"
	MinTemperatureCelsius = -50.0
)

// RawReading is the decode target for an incoming sensor payload. Pointer
// fields distinguish an absent value from a zero one.
type RawReading struct {
	MotorID     *string  `json:"motorId"`
	Timestamp   *string  `json:"timestamp"`
	Vibration   *float64 `json:"vibration"`
	Temperature *float64 `json:"temperature"`
}

// SensorReading is a validated reading from one motor.
type SensorReading struct {
	MotorID     string    `json:"motorId"`
	Timestamp   time.Time `json:"timestamp"`
	Vibration   float64   `json:"vibration"`   // g
	Temperature float64   `json:"temperature"` // °C
}

// Validate checks presence, ranges and timestamp format in that order and
// returns the first failure as a *ValidationError.
func (r RawReading) Validate() (SensorReading, error) {
	if r.MotorID == nil || strings.TrimSpace(*r.MotorID) == "" ||
		r.Timestamp == nil || strings.TrimSpace(*r.Timestamp) == "" ||
		r.Vibration == nil || r.Temperature == nil {
		return SensorReading{}, newValidationError(KindMissingField, MsgMissingFields)
	}

	// NaN fails both comparisons and is rejected here.
	if !(*r.Vibration > 0) {
		return SensorReading{}, newValidationError(KindInvalidRange, MsgVibrationRange)
	}
	if !(*r.Temperature > MinTemperatureCelsius) {
		return SensorReading{}, newValidationError(KindInvalidRange, MsgTemperatureRange)
	}

	ts, err := ParseTimestamp(*r.Timestamp)
	if err != nil {
		return SensorReading{}, newValidationError(KindInvalidFormat, MsgInvalidTimestamp)
	}

	return SensorReading{
		MotorID:     strings.TrimSpace(*r.MotorID),
		Timestamp:   ts,
		Vibration:   *r.Vibration,
		Temperature: *r.Temperature,
	}, nil
}

// Raw converts a reading back into its wire form. Used by load generators.
func (s SensorReading) Raw() RawReading {
	motorID := s.MotorID
	ts := s.Timestamp.UTC().Format(time.RFC3339Nano)
	vib := s.Vibration
	temp := s.Temperature
	return RawReading{
		MotorID:     &motorID,
		Timestamp:   &ts,
		Vibration:   &vib,
		Temperature: &temp,
	}
}
