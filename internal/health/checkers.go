package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

// DefaultBufferLimit is the pending envelope count above which the buffer
// reports degraded.
const DefaultBufferLimit = 1000

type checkFunc struct {
	name string
	fn   func(ctx context.Context) (Status, string)
}

func (c checkFunc) Name() string { return c.name }

func (c checkFunc) Check(ctx context.Context) (Status, string) { return c.fn(ctx) }

// CheckerFunc adapts fn to a HealthChecker.
func CheckerFunc(name string, fn func(ctx context.Context) (Status, string)) HealthChecker {
	return checkFunc{name: name, fn: fn}
}

// NewSenderChecker is degraded while the reading sink does not answer.
// The daemon keeps buffering in that case, so it never reports unhealthy.
func NewSenderChecker(ping func(ctx context.Context) error) HealthChecker {
	return CheckerFunc("sender", func(ctx context.Context) (Status, string) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, err.Error()
		}
		return StatusHealthy, ""
	})
}

func NewBufferChecker(count func(ctx context.Context) (int64, error), limit int64) HealthChecker {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return CheckerFunc("buffer", func(ctx context.Context) (Status, string) {
		n, err := count(ctx)
		if err != nil {
			return StatusUnhealthy, err.Error()
		}
		if n > limit {
			return StatusDegraded, fmt.Sprintf("%d envelopes pending", n)
		}
		return StatusHealthy, ""
	})
}

// SensorSource is what the sensor checker needs from the sensor manager.
type SensorSource interface {
	Running() bool
	Statuses() map[string]model.SensorStatus
}

// SensorChecker is degraded while any sensor is in Error and unhealthy
// when the manager runs but no sensor is producing.
type SensorChecker struct {
	source SensorSource
}

func NewSensorChecker(source SensorSource) *SensorChecker {
	return &SensorChecker{source: source}
}

func (c *SensorChecker) Name() string {
	return "sensors"
}

func (c *SensorChecker) Check(ctx context.Context) (Status, string) {
	if !c.source.Running() {
		return StatusHealthy, "stopped"
	}

	statuses := c.source.Statuses()
	if len(statuses) == 0 {
		return StatusDegraded, "no sensors configured"
	}

	var failed []string
	live := 0
	for key, st := range statuses {
		switch st {
		case model.StatusError:
			failed = append(failed, key)
		case model.StatusOffline:
		default:
			live++
		}
	}
	sort.Strings(failed)

	switch {
	case live == 0:
		return StatusUnhealthy, "no sensor online"
	case len(failed) > 0:
		return StatusDegraded, "sensors in error: " + strings.Join(failed, ", ")
	default:
		return StatusHealthy, ""
	}
}
