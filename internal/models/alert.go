package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SensorType names the reading field that tripped a threshold.
type SensorType string

const (
	SensorVibration   SensorType = "vibration"
	SensorTemperature SensorType = "temperature"
)

// AlertType names the threshold that was exceeded.
type AlertType string

const (
	AlertHighVibration   AlertType = "high_vibration"
	AlertHighTemperature AlertType = "high_temperature"
)

// AlertTypeFor returns the alert type paired with a sensor type.
func AlertTypeFor(s SensorType) (AlertType, bool) {
	switch s {
	case SensorVibration:
		return AlertHighVibration, true
	case SensorTemperature:
		return AlertHighTemperature, true
	}
	return "", false
}

// IsValid checks if the alert type is known
func (a AlertType) IsValid() bool {
	return a == AlertHighVibration || a == AlertHighTemperature
}

// AlertEvent is one threshold violation. It is the only message carried on
// the fanout channel.
type AlertEvent struct {
	ID         string     `json:"id"`
	MotorID    string     `json:"motorId"`
	SensorType SensorType `json:"sensorType"`
	Value      float64    `json:"value"`
	AlertType  AlertType  `json:"alertType"`
	// OccurredAt is the reading timestamp.
	OccurredAt time.Time `json:"timestamp"`
	// PublishedAt is the evaluation instant.
	PublishedAt time.Time `json:"publishedAt"`
}

// AlertSummary is the per-alert entry of an ingest response.
type AlertSummary struct {
	SensorType SensorType `json:"sensorType"`
	AlertType  AlertType  `json:"alertType"`
	Value      float64    `json:"value"`
}

// Summary drops identity and time fields.
func (e AlertEvent) Summary() AlertSummary {
	return AlertSummary{SensorType: e.SensorType, AlertType: e.AlertType, Value: e.Value}
}

// Validate checks the required fields and the sensor/alert type pairing.
// The ID is optional.
func (e *AlertEvent) Validate() error {
	if strings.TrimSpace(e.MotorID) == "" {
		return ErrEmptyMotorID
	}
	want, ok := AlertTypeFor(e.SensorType)
	if !ok {
		return ErrUnknownSensorType
	}
	if !e.AlertType.IsValid() {
		return ErrUnknownAlertType
	}
	if e.AlertType != want {
		return ErrTypeMismatch
	}
	if e.OccurredAt.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// wireAlertEvent accepts any timestamp format ParseTimestamp understands.
type wireAlertEvent struct {
	ID          string     `json:"id"`
	MotorID     string     `json:"motorId"`
	SensorType  SensorType `json:"sensorType"`
	Value       *float64   `json:"value"`
	AlertType   AlertType  `json:"alertType"`
	Timestamp   string     `json:"timestamp"`
	PublishedAt string     `json:"publishedAt"`
}

// DecodeAlertEvent parses and validates one fanout message. A message
// without an id gets one derived from its content, so redeliveries of the
// same message share an ID.
func DecodeAlertEvent(data []byte) (AlertEvent, error) {
	var w wireAlertEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return AlertEvent{}, fmt.Errorf("decode alert event: %w", err)
	}
	if w.Value == nil {
		return AlertEvent{}, fmt.Errorf("decode alert event: %w: value", ErrMissingField)
	}

	occurred, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return AlertEvent{}, fmt.Errorf("decode alert event: %w", err)
	}

	var published time.Time
	if w.PublishedAt != "" {
		if published, err = ParseTimestamp(w.PublishedAt); err != nil {
			return AlertEvent{}, fmt.Errorf("decode alert event: publishedAt: %w", err)
		}
	}

	e := AlertEvent{
		ID:          strings.TrimSpace(w.ID),
		MotorID:     strings.TrimSpace(w.MotorID),
		SensorType:  w.SensorType,
		Value:       *w.Value,
		AlertType:   w.AlertType,
		OccurredAt:  occurred,
		PublishedAt: published,
	}
	if err := e.Validate(); err != nil {
		return AlertEvent{}, fmt.Errorf("decode alert event: %w", err)
	}
	if e.ID == "" {
		e.ID = ContentID(e)
	}
	return e, nil
}

// ContentID is a name-based UUID over the motor, alert type, timestamp and
// value of e.
func ContentID(e AlertEvent) string {
	name := fmt.Sprintf("%s|%s|%s|%g",
		e.MotorID, e.AlertType, e.OccurredAt.UTC().Format(time.RFC3339Nano), e.Value)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Encode serializes the event for the fanout channel.
func (e AlertEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode alert event: %w", err)
	}
	return data, nil
}
