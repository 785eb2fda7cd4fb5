package adapters

import (
	"fmt"
	"log/slog"

	"github.com/speedwagon-io/idlerguard/internal/collector"
	"github.com/speedwagon-io/idlerguard/internal/fault"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

// New builds the device for typ.
func New(log *slog.Logger, typ model.SensorType, cfg model.SensorConfig, scorer *fault.Scorer, opts ...Option) (collector.Device, error) {
	switch typ {
	case model.SensorVibration:
		return NewVibration(log, cfg, scorer, opts...), nil
	case model.SensorTemperature:
		return NewTemperature(log, cfg, opts...), nil
	case model.SensorCamera:
		return NewCamera(log, cfg), nil
	default:
		return nil, fmt.Errorf("no device adapter for sensor type %q", typ)
	}
}
