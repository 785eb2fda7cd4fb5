package adapters

import (
	"context"
	"errors"
	"log/slog"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

var ErrCaptureUnsupported = errors.New("camera capture is not supported, run the camera in simulate mode")

// Camera only produces frame metadata. Image capture needs a vision stack
// this daemon does not carry.
type Camera struct {
	log    *slog.Logger
	cfg    model.SensorConfig
	width  int
	height int
	fps    int
	frame  uint64
}

func NewCamera(log *slog.Logger, cfg model.SensorConfig) *Camera {
	return &Camera{
		log:    log.With(slog.String("adapter", "camera")),
		cfg:    cfg,
		width:  cfg.Int("width", 640),
		height: cfg.Int("height", 480),
		fps:    cfg.Int("fps", 30),
	}
}

func (c *Camera) Type() model.SensorType {
	return model.SensorCamera
}

func (c *Camera) Connect(ctx context.Context) error {
	if !c.cfg.Simulate() {
		return ErrCaptureUnsupported
	}
	c.log.Info("using simulated camera data")
	return nil
}

func (c *Camera) Disconnect() error {
	return nil
}

func (c *Camera) Read(ctx context.Context) (any, error) {
	return nil, ErrCaptureUnsupported
}

func (c *Camera) Simulate(ctx context.Context) (any, error) {
	c.frame++
	return &model.CameraPayload{
		Width:     c.width,
		Height:    c.height,
		FPS:       c.fps,
		Frame:     c.frame,
		Simulated: true,
	}, nil
}
