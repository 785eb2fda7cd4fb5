package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

const (
	DefaultMaxErrors     = 5
	DefaultCooldown      = 2 * time.Second
	DefaultQueueCapacity = 100
)

type Options struct {
	// Name labels logs and metrics; defaults to the device type.
	Name          string
	MaxErrors     int
	Cooldown      time.Duration
	QueueCapacity int
	Observer      Observer
	Now           func() time.Time
}

func (o *Options) applyDefaults(dev Device) {
	if o.Name == "" {
		o.Name = string(dev.Type())
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = DefaultMaxErrors
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine runs the acquisition loop of a single sensor: connect, sample (or
// simulate) at the configured rate, enqueue, and reconnect after too many
// consecutive read failures.
//
// Status, error count and last reading time are written only by the loop
// goroutine and read atomically by everyone else.
type Engine struct {
	log      *slog.Logger
	cfg      model.SensorConfig
	device   Device
	opts     Options
	queue    *Queue
	interval time.Duration

	status     atomic.Int32
	errorCount atomic.Int32
	lastAt     atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func NewEngine(log *slog.Logger, cfg model.SensorConfig, device Device, opts Options) *Engine {
	opts.applyDefaults(device)

	e := &Engine{
		cfg:      cfg,
		device:   device,
		opts:     opts,
		queue:    NewQueue(opts.QueueCapacity),
		interval: time.Duration(float64(time.Second) / cfg.SamplingRate()),
	}
	e.log = log.With(
		slog.String("sensor", opts.Name),
		slog.String("device_id", cfg.DeviceID()),
	)
	e.status.Store(int32(model.StatusOffline))
	return e
}

func (e *Engine) Name() string               { return e.opts.Name }
func (e *Engine) Type() model.SensorType     { return e.device.Type() }
func (e *Engine) Config() model.SensorConfig { return e.cfg }

// Start launches the acquisition loop and returns without waiting for the
// first sample. It returns false if a loop is already running, including
// one still shutting down after a timed out Stop.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.log.Warn("sensor already running")
		return false
	}
	if e.done != nil {
		select {
		case <-e.done:
		default:
			e.log.Warn("previous acquisition loop still shutting down")
			return false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.running = true
	e.cancel = cancel
	e.done = done
	e.lastErr = nil
	e.errorCount.Store(0)
	e.setStatus(model.StatusConnecting)

	go e.run(ctx, done)

	e.log.Info("sensor started",
		slog.Bool("simulate", e.cfg.Simulate()),
		slog.Float64("sampling_rate", e.cfg.SamplingRate()),
	)
	return true
}

// Stop asks the loop to exit and waits up to timeout for it. Status is
// Offline afterwards even if the loop has not finished yet; the loop still
// disconnects the device itself once it observes the cancellation.
func (e *Engine) Stop(timeout time.Duration) bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	cancel, done := e.cancel, e.done
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		e.log.Warn("acquisition loop did not exit in time", slog.Duration("timeout", timeout))
	}

	e.setStatus(model.StatusOffline)
	e.log.Info("sensor stopped")
	return true
}

// GetReading pulls the oldest queued reading. With blocking false it never
// waits; otherwise it waits up to timeout.
func (e *Engine) GetReading(blocking bool, timeout time.Duration) (model.SensorReading, bool) {
	if !blocking {
		return e.queue.TryPop()
	}
	return e.queue.PopWait(timeout)
}

func (e *Engine) Status() model.SensorStatus {
	return model.SensorStatus(e.status.Load())
}

// LastReadingAt is the zero time until the first reading is enqueued.
func (e *Engine) LastReadingAt() time.Time {
	ns := e.lastAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (e *Engine) ErrorCount() int {
	return int(e.errorCount.Load())
}

func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := e.device.Connect(ctx); err != nil {
		e.connectFailed(ctx, done, err)
		return
	}

	connected := true
	e.setStatus(model.StatusOnline)

	defer func() {
		e.setStatus(model.StatusDisconnecting)
		if connected {
			e.disconnect()
		}
		e.setStatus(model.StatusOffline)
	}()

	for ctx.Err() == nil {
		e.sample(ctx)

		if e.ErrorCount() >= e.opts.MaxErrors {
			if connected = e.reconnect(ctx); !connected {
				return
			}
		}

		if !sleepCtx(ctx, e.interval) {
			return
		}
	}
}

func (e *Engine) connectFailed(ctx context.Context, done chan struct{}, err error) {
	cerr := &ConnectError{DeviceID: e.cfg.DeviceID(), Err: err}

	e.mu.Lock()
	if e.done == done && e.running {
		e.running = false
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
	e.lastErr = cerr
	e.mu.Unlock()

	if ctx.Err() != nil {
		e.setStatus(model.StatusOffline)
		return
	}

	e.log.Error("sensor connect failed", sl.Err(cerr))
	e.setStatus(model.StatusError)
}

func (e *Engine) sample(ctx context.Context) {
	var (
		payload any
		err     error
	)
	if e.cfg.Simulate() {
		payload, err = e.device.Simulate(ctx)
	} else {
		payload, err = e.device.Read(ctx)
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		n := e.errorCount.Add(1)
		rerr := &ReadError{DeviceID: e.cfg.DeviceID(), Count: int(n), Err: err}
		e.setLastErr(rerr)
		e.opts.Observer.ReadFailed(e.opts.Name)
		e.log.Warn("sensor read failed",
			slog.Int("error_count", int(n)),
			slog.Int("max_errors", e.opts.MaxErrors),
			sl.Err(err),
		)
		return
	}

	e.errorCount.Store(0)
	if payload == nil {
		return
	}

	now := e.opts.Now()
	reading := model.SensorReading{
		Type:      e.device.Type(),
		DeviceID:  e.cfg.DeviceID(),
		Timestamp: now,
		Status:    e.Status(),
		Payload:   payload,
	}
	e.lastAt.Store(now.UnixNano())

	if e.queue.Push(reading) {
		e.opts.Observer.ReadingEvicted(e.opts.Name)
		e.log.Debug("queue full, dropped oldest reading", slog.Int("capacity", e.queue.Cap()))
	}
	e.opts.Observer.ReadingCollected(e.opts.Name)
}

// reconnect disconnects once, then retries Connect after every cooldown
// until it succeeds or ctx is cancelled. It reports whether the device is
// connected on return.
func (e *Engine) reconnect(ctx context.Context) bool {
	e.setStatus(model.StatusError)
	e.log.Error("too many consecutive read errors, reconnecting",
		slog.Int("error_count", e.ErrorCount()),
		slog.Duration("cooldown", e.opts.Cooldown),
	)
	e.disconnect()

	for attempt := 1; ; attempt++ {
		if !sleepCtx(ctx, e.opts.Cooldown) {
			return false
		}

		e.setStatus(model.StatusConnecting)
		if err := e.device.Connect(ctx); err != nil {
			rerr := &ReconnectError{DeviceID: e.cfg.DeviceID(), Attempt: attempt, Err: err}
			e.setLastErr(rerr)
			e.opts.Observer.ReconnectAttempted(e.opts.Name, false)
			e.setStatus(model.StatusError)
			e.log.Error("sensor reconnect failed", slog.Int("attempt", attempt), sl.Err(err))
			continue
		}

		e.opts.Observer.ReconnectAttempted(e.opts.Name, true)
		e.errorCount.Store(0)
		e.setStatus(model.StatusOnline)
		e.log.Info("sensor reconnected", slog.Int("attempt", attempt))
		return true
	}
}

func (e *Engine) disconnect() {
	if err := e.device.Disconnect(); err != nil {
		e.log.Error("sensor disconnect failed", sl.Err(err))
	}
}

func (e *Engine) setStatus(s model.SensorStatus) {
	if old := model.SensorStatus(e.status.Swap(int32(s))); old != s {
		e.opts.Observer.StatusChanged(e.opts.Name, s)
		e.log.Debug("sensor status changed",
			slog.String("from", old.String()),
			slog.String("to", s.String()),
		)
	}
}

func (e *Engine) setLastErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
