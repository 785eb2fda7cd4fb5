// Package forwarder drains sensor engines and delivers what they produce to
// the inspection backend, buffering postings the backend could not accept.
package forwarder

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/speedwagon-io/idlerguard/internal/buffer"
	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/model"
	"github.com/speedwagon-io/idlerguard/internal/sender"
)

const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeBuffered = "buffered"
	OutcomeReplayed = "replayed"

	evaluationDanger = "danger"
)

// Source is one engine's output queue.
type Source interface {
	GetReading(blocking bool, timeout time.Duration) (model.SensorReading, bool)
}

type Recorder interface {
	FaultDetected(class string)
	Posted(kind, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) FaultDetected(string)  {}
func (nopRecorder) Posted(string, string) {}

type Options struct {
	SiteID        string
	PollTimeout   time.Duration
	BufferEnabled bool
	RetryInterval time.Duration
	MaxAge        time.Duration
	BatchSize     int
	Recorder      Recorder
}

type Forwarder struct {
	log     *slog.Logger
	opts    Options
	sources map[string]Source
	sender  sender.Sender
	buffer  buffer.Buffer
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

func New(
	log *slog.Logger,
	opts Options,
	sources map[string]Source,
	sender sender.Sender,
	buffer buffer.Buffer,
) *Forwarder {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if buffer == nil {
		opts.BufferEnabled = false
	}

	return &Forwarder{
		log:     log.With(slog.String("component", "forwarder")),
		opts:    opts,
		sources: sources,
		sender:  sender,
		buffer:  buffer,
		stopCh:  make(chan struct{}),
	}
}

// Start drains every source until ctx is cancelled or Stop is called. It
// blocks.
func (f *Forwarder) Start(ctx context.Context) {
	keys := make([]string, 0, len(f.sources))
	for key := range f.sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	f.log.Info("starting forwarder",
		slog.String("site_id", f.opts.SiteID),
		slog.Any("sensors", keys),
		slog.Bool("buffer", f.opts.BufferEnabled),
	)

	for _, key := range keys {
		f.wg.Add(1)
		go f.drain(ctx, key, f.sources[key])
	}

	f.wg.Add(1)
	go f.retryBufferedData(ctx)

	select {
	case <-ctx.Done():
		f.log.Info("context cancelled, stopping forwarder")
	case <-f.stopCh:
		f.log.Info("stop signal received, stopping forwarder")
	}
}

// Stop ends Start and waits for in-flight postings.
func (f *Forwarder) Stop() {
	f.stop.Do(func() { close(f.stopCh) })
	f.wg.Wait()
}

func (f *Forwarder) drain(ctx context.Context, key string, src Source) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
		}

		reading, ok := src.GetReading(true, f.opts.PollTimeout)
		if !ok {
			continue
		}
		f.handle(ctx, key, reading)
	}
}

func (f *Forwarder) handle(ctx context.Context, key string, r model.SensorReading) {
	switch p := r.Payload.(type) {
	case *model.TemperaturePayload:
		f.forwardTemperature(ctx, key, r, p)
	case *model.VibrationPayload:
		if !p.Verdict.Detected {
			return
		}
		f.opts.Recorder.FaultDetected(p.Verdict.FaultClass)
		f.forwardAlert(ctx, key, model.NewVibrationAlert(r, *p))
	default:
		f.log.Debug("reading not forwarded",
			slog.String("sensor", key),
			slog.String("type", string(r.Type)),
		)
	}
}

func (f *Forwarder) forwardTemperature(ctx context.Context, key string, r model.SensorReading, p *model.TemperaturePayload) {
	status, err := f.sender.PostTemperature(ctx, r.DeviceID, p.Celsius)
	if err != nil {
		f.log.Error("failed to send temperature",
			slog.String("sensor", key),
			slog.Float64("temperature", p.Celsius),
			sl.Err(err),
		)
		f.bufferPosting(ctx, model.KindTemperature, key, r.DeviceID,
			model.TemperaturePost{Temperature: p.Celsius, DeviceID: r.DeviceID})
		return
	}

	f.opts.Recorder.Posted(model.KindTemperature, OutcomeOK)
	if status == evaluationDanger {
		f.log.Warn("bearing temperature in danger zone",
			slog.String("sensor", key),
			slog.Float64("temperature", p.Celsius),
		)
		return
	}
	f.log.Debug("temperature sent",
		slog.String("sensor", key),
		slog.String("evaluation", status),
	)
}

func (f *Forwarder) forwardAlert(ctx context.Context, key string, alert *model.Alert) {
	f.log.Warn("vibration fault detected",
		slog.String("sensor", key),
		slog.String("fault_type", alert.FaultType),
		slog.Float64("confidence", alert.DetectionResult.Confidence),
		slog.String("severity", alert.Severity),
	)

	if err := f.sender.PostAlert(ctx, alert); err != nil {
		f.log.Error("failed to send alert", slog.String("sensor", key), sl.Err(err))
		f.bufferPosting(ctx, model.KindAlert, key, alert.DeviceID, alert)
		return
	}
	f.opts.Recorder.Posted(model.KindAlert, OutcomeOK)
}

func (f *Forwarder) bufferPosting(ctx context.Context, kind, key, deviceID string, body any) {
	if !f.opts.BufferEnabled {
		f.opts.Recorder.Posted(kind, OutcomeFailed)
		return
	}

	envelope, err := model.NewEnvelope(kind, f.opts.SiteID, key, deviceID, body)
	if err != nil {
		f.log.Error("failed to build envelope", slog.String("sensor", key), sl.Err(err))
		f.opts.Recorder.Posted(kind, OutcomeFailed)
		return
	}

	if err := f.buffer.Store(ctx, envelope); err != nil {
		f.log.Error("failed to buffer data",
			slog.String("sensor", key),
			sl.Err(err),
		)
		f.opts.Recorder.Posted(kind, OutcomeFailed)
		return
	}

	f.opts.Recorder.Posted(kind, OutcomeBuffered)
	f.log.Info("data buffered for later retry",
		slog.String("sensor", key),
		slog.String("id", envelope.ID),
	)
}

func (f *Forwarder) retryBufferedData(ctx context.Context) {
	defer f.wg.Done()

	if !f.opts.BufferEnabled {
		return
	}

	ticker := time.NewTicker(f.opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.processBufferedData(ctx)
		}
	}
}

// processBufferedData replays pending envelopes oldest first and stops at
// the first failure so ordering is kept.
func (f *Forwarder) processBufferedData(ctx context.Context) {
	pending, err := f.buffer.GetPending(ctx, f.opts.BatchSize)
	if err != nil {
		f.log.Error("failed to get pending data from buffer", sl.Err(err))
		return
	}

	if len(pending) > 0 {
		f.log.Info("processing buffered data", slog.Int("count", len(pending)))
	}

	var sentIDs []string
	for _, envelope := range pending {
		if err := f.sender.Send(ctx, envelope); err != nil {
			f.log.Debug("failed to send buffered data",
				slog.String("id", envelope.ID),
				slog.Int("attempts", envelope.Attempts+1),
				sl.Err(err),
			)
			if merr := f.buffer.MarkFailed(ctx, envelope.ID, err); merr != nil {
				f.log.Error("failed to record replay failure", sl.Err(merr))
			}
			break
		}
		f.opts.Recorder.Posted(envelope.Kind, OutcomeReplayed)
		sentIDs = append(sentIDs, envelope.ID)
	}

	if len(sentIDs) > 0 {
		if err := f.buffer.MarkSent(ctx, sentIDs); err != nil {
			f.log.Error("failed to mark buffered data as sent", sl.Err(err))
		} else {
			f.log.Info("buffered data sent successfully", slog.Int("count", len(sentIDs)))
		}
	}

	if err := f.buffer.Cleanup(ctx, f.opts.MaxAge); err != nil {
		f.log.Error("failed to cleanup old buffer data", sl.Err(err))
	}
}
