package model

import "fmt"

type SensorType string

const (
	SensorCamera      SensorType = "camera"
	SensorVibration   SensorType = "vibration"
	SensorTemperature SensorType = "temperature"
	SensorAcoustic    SensorType = "acoustic"
	SensorSpeed       SensorType = "speed"
	SensorCurrent     SensorType = "current"
)

func ParseSensorType(s string) (SensorType, error) {
	switch t := SensorType(s); t {
	case SensorCamera, SensorVibration, SensorTemperature, SensorAcoustic, SensorSpeed, SensorCurrent:
		return t, nil
	default:
		return "", fmt.Errorf("unknown sensor type %q", s)
	}
}

// SensorStatus is the acquisition state of one sensor. Connecting and
// Disconnecting are the transitional states of the engine's state machine.
type SensorStatus int32

const (
	StatusOffline SensorStatus = iota
	StatusOnline
	StatusError
	StatusCalibrating
	StatusWarmingUp
	StatusConnecting
	StatusDisconnecting
)

var statusNames = [...]string{
	StatusOffline:       "offline",
	StatusOnline:        "online",
	StatusError:         "error",
	StatusCalibrating:   "calibrating",
	StatusWarmingUp:     "warming_up",
	StatusConnecting:    "connecting",
	StatusDisconnecting: "disconnecting",
}

func (s SensorStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int32(s))
	}
	return statusNames[s]
}

func (s SensorStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
