package collector

import (
	"context"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

// Device is one physical sensor. Connect, Disconnect, Read and Simulate are
// only ever called from the owning engine's loop goroutine.
type Device interface {
	Type() model.SensorType
	Connect(ctx context.Context) error
	Disconnect() error
	// Read returns a payload, or nil with a nil error when the device had
	// nothing to report this tick.
	Read(ctx context.Context) (any, error)
	Simulate(ctx context.Context) (any, error)
}

// Observer receives acquisition events, typically to export metrics.
type Observer interface {
	ReadingCollected(sensor string)
	ReadingEvicted(sensor string)
	ReadFailed(sensor string)
	ReconnectAttempted(sensor string, ok bool)
	StatusChanged(sensor string, status model.SensorStatus)
}

type nopObserver struct{}

func (nopObserver) ReadingCollected(string)                  {}
func (nopObserver) ReadingEvicted(string)                    {}
func (nopObserver) ReadFailed(string)                        {}
func (nopObserver) ReconnectAttempted(string, bool)          {}
func (nopObserver) StatusChanged(string, model.SensorStatus) {}
