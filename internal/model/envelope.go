package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	KindTemperature = "temperature"
	KindAlert       = "alert"
)

// Envelope wraps a posting to the reading sink so it can be buffered and
// replayed when the sink is unreachable.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	SiteID    string          `json:"site_id"`
	SensorKey string          `json:"sensor_key"`
	DeviceID  string          `json:"device_id"`
	Timestamp time.Time       `json:"timestamp"`
	Body      json.RawMessage `json:"body"`

	// Attempts counts failed replays; only the buffer sets it.
	Attempts int `json:"attempts,omitempty"`
}

func NewEnvelope(kind, siteID, sensorKey, deviceID string, body any) (*Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s body: %w", kind, err)
	}

	return &Envelope{
		ID:        uuid.New().String(),
		Kind:      kind,
		SiteID:    siteID,
		SensorKey: sensorKey,
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Body:      raw,
	}, nil
}

func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type TemperaturePost struct {
	Temperature float64 `json:"temperature"`
	DeviceID    string  `json:"device_id,omitempty"`
}

const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Alert is posted to the sink when a vibration fault is detected.
type Alert struct {
	SensorType      SensorType   `json:"sensor_type"`
	DeviceID        string       `json:"device_id"`
	Timestamp       time.Time    `json:"timestamp"`
	Magnitude       float64      `json:"magnitude"`
	FaultType       string       `json:"fault_type"`
	DetectionResult FaultVerdict `json:"detection_result"`
	Severity        string       `json:"severity"`
}

func NewVibrationAlert(r SensorReading, p VibrationPayload) *Alert {
	severity := SeverityMedium
	if p.Composite > 1.0 {
		severity = SeverityHigh
	}
	return &Alert{
		SensorType:      SensorVibration,
		DeviceID:        r.DeviceID,
		Timestamp:       r.Timestamp,
		Magnitude:       p.Composite,
		FaultType:       p.Verdict.FaultClass,
		DetectionResult: p.Verdict,
		Severity:        severity,
	}
}
