package models_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

func ptr[T any](v T) *T { return &v }

func validRaw() models.RawReading {
	return models.RawReading{
		MotorID:     ptr("motor-001"),
		Timestamp:   ptr("2024-03-01T10:00:00Z"),
		Vibration:   ptr(2.0),
		Temperature: ptr(75.0),
	}
}

func TestRawReadingValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*models.RawReading)
		wantErr  error
		wantMsg  string
		wantKind models.ErrorKind
	}{
		{"valid reading", func(r *models.RawReading) {}, nil, "", ""},
		{"missing motorId", func(r *models.RawReading) { r.MotorID = nil }, models.ErrMissingField, models.MsgMissingFields, models.KindMissingField},
		{"blank motorId", func(r *models.RawReading) { r.MotorID = ptr("  ") }, models.ErrMissingField, models.MsgMissingFields, models.KindMissingField},
		{"missing timestamp", func(r *models.RawReading) { r.Timestamp = nil }, models.ErrMissingField, models.MsgMissingFields, models.KindMissingField},
		{"missing vibration", func(r *models.RawReading) { r.Vibration = nil }, models.ErrMissingField, models.MsgMissingFields, models.KindMissingField},
		{"missing temperature", func(r *models.RawReading) { r.Temperature = nil }, models.ErrMissingField, models.MsgMissingFields, models.KindMissingField},
		{"zero vibration", func(r *models.RawReading) { r.Vibration = ptr(0.0) }, models.ErrInvalidRange, models.MsgVibrationRange, models.KindInvalidRange},
		{"negative vibration", func(r *models.RawReading) { r.Vibration = ptr(-1.0) }, models.ErrInvalidRange, models.MsgVibrationRange, models.KindInvalidRange},
		{"NaN vibration", func(r *models.RawReading) { r.Vibration = ptr(math.NaN()) }, models.ErrInvalidRange, models.MsgVibrationRange, models.KindInvalidRange},
		{"temperature at floor", func(r *models.RawReading) { r.Temperature = ptr(-50.0) }, models.ErrInvalidRange, models.MsgTemperatureRange, models.KindInvalidRange},
		{"temperature below floor", func(r *models.RawReading) { r.Temperature = ptr(-60.0) }, models.ErrInvalidRange, models.MsgTemperatureRange, models.KindInvalidRange},
		{"bad timestamp", func(r *models.RawReading) { r.Timestamp = ptr("yesterday") }, models.ErrInvalidFormat, models.MsgInvalidTimestamp, models.KindInvalidFormat},
		{"range checked before format", func(r *models.RawReading) {
			r.Vibration = ptr(0.0)
			r.Timestamp = ptr("garbage")
		}, models.ErrInvalidRange, models.MsgVibrationRange, models.KindInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.modify(&raw)
			_, err := raw.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want errors.Is %v", err, tt.wantErr)
			}
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error %T is not *ValidationError", err)
			}
			if verr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", verr.Message, tt.wantMsg)
			}
			if verr.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", verr.Kind, tt.wantKind)
			}
		})
	}
}

func TestRawReadingNullIsMissing(t *testing.T) {
	body := `{"motorId":"motor-001","timestamp":"2024-03-01T10:00:00Z","vibration":null,"temperature":75}`
	var raw models.RawReading
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	_, err := raw.Validate()
	if !errors.Is(err, models.ErrMissingField) {
		t.Fatalf("Validate() error = %v, want %v", err, models.ErrMissingField)
	}
}

func TestRawReadingValidateNormalizes(t *testing.T) {
	raw := validRaw()
	raw.MotorID = ptr(" motor-007 ")
	raw.Timestamp = ptr("2024-03-01T12:00:00+02:00")

	r, err := raw.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.MotorID != "motor-007" {
		t.Errorf("MotorID = %q, want motor-007", r.MotorID)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) || r.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v in UTC", r.Timestamp, want)
	}
}

func TestZeroLikeValuesArePresent(t *testing.T) {
	raw := validRaw()
	raw.Temperature = ptr(0.0)
	if _, err := raw.Validate(); err != nil {
		t.Errorf("temperature 0 should be accepted, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), false},
		{"2024-03-01T10:00:00.123Z", time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC), false},
		{"2024-03-01T10:00:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), false},
		{"2024-03-01 10:00:00", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), false},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"not-a-date", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := models.ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
