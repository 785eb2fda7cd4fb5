package model

import "time"

// SensorReading is one sampled observation. Payload holds one of the
// *Payload types below depending on Type.
type SensorReading struct {
	Type      SensorType   `json:"sensor_type"`
	DeviceID  string       `json:"device_id"`
	Timestamp time.Time    `json:"timestamp"`
	Status    SensorStatus `json:"status"`
	Payload   any          `json:"data"`
}

type TemperaturePayload struct {
	Celsius   float64 `json:"temperature"`
	Unit      string  `json:"unit"`
	Simulated bool    `json:"simulated,omitempty"`
	Anomaly   bool    `json:"anomaly,omitempty"`
}

type VibrationPayload struct {
	AxisValues    map[string]float64 `json:"axis_values"`
	Composite     float64            `json:"composite"`
	Unit          string             `json:"unit"`
	SamplingRate  float64            `json:"sampling_rate"`
	Peaks         []SpectralPeak     `json:"fft_peaks"`
	Verdict       FaultVerdict       `json:"fault_detection"`
	Simulated     bool               `json:"simulated,omitempty"`
	Anomaly       bool               `json:"anomaly,omitempty"`
	InjectedFault string             `json:"fault_type,omitempty"`
}

type CameraPayload struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FPS       int    `json:"fps"`
	Frame     uint64 `json:"frame"`
	Simulated bool   `json:"simulated,omitempty"`
}

type SpectralPeak struct {
	Frequency float64 `json:"frequency"`
	Amplitude float64 `json:"amplitude"`
	Axis      string  `json:"axis"`
}

// FaultVerdict is the scorer's decision for one vibration sample.
// FaultClass and Confidence are zero when Detected is false.
type FaultVerdict struct {
	Detected   bool               `json:"detected"`
	FaultClass string             `json:"fault_type,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	Scores     map[string]float64 `json:"all_scores"`
}
