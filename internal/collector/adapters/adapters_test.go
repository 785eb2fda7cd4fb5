package adapters

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"go.bug.st/serial"

	"github.com/speedwagon-io/idlerguard/internal/fault"
	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

func TestVibrationConnectHandshake(t *testing.T) {
	is := is.New(t)

	port := newFakePort(map[string]string{"INIT": "OK", "RATE 500": "OK"})
	v := NewVibration(sl.Discard(), mustConfig(t, false, 500, map[string]any{"baud_rate": 115200}),
		fault.NewScorer(fault.DefaultCatalog()), WithOpener(port.opener(t)), WithRand(seeded()))

	is.NoErr(v.Connect(context.Background()))
	is.Equal(port.mode.BaudRate, 115200)
	is.Equal(port.mode.StopBits, serial.OneStopBit)
	is.Equal(port.written(), []string{"INIT", "RATE 500"})

	is.NoErr(v.Disconnect())
	is.Equal(port.written(), []string{"INIT", "RATE 500", "CLOSE"})
	is.True(port.closed)
	is.NoErr(v.Disconnect())
}

func TestVibrationConnectRejected(t *testing.T) {
	is := is.New(t)

	port := newFakePort(map[string]string{"INIT": "ERR 3"})
	v := NewVibration(sl.Discard(), mustConfig(t, false, 500, nil),
		fault.NewScorer(fault.DefaultCatalog()), WithOpener(port.opener(t)))

	err := v.Connect(context.Background())
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "ERR 3"))
	is.True(port.closed)
}

func TestVibrationRateRejectionOnlyWarns(t *testing.T) {
	is := is.New(t)

	port := newFakePort(map[string]string{"INIT": "OK", "RATE 500": "NAK"})
	v := NewVibration(sl.Discard(), mustConfig(t, false, 500, nil),
		fault.NewScorer(fault.DefaultCatalog()), WithOpener(port.opener(t)))

	is.NoErr(v.Connect(context.Background()))
}

func TestVibrationReadParsesAxes(t *testing.T) {
	is := is.New(t)

	port := newFakePort(map[string]string{"INIT": "OK", "RATE 500": "OK", "READ": "X:0.3,Y:0.4,Z:1.2"})
	v := NewVibration(sl.Discard(), mustConfig(t, false, 500, nil),
		fault.NewScorer(fault.DefaultCatalog()), WithOpener(port.opener(t)))
	is.NoErr(v.Connect(context.Background()))

	out, err := v.Read(context.Background())
	is.NoErr(err)
	p := out.(*model.VibrationPayload)
	is.Equal(p.AxisValues, map[string]float64{"X": 0.3, "Y": 0.4, "Z": 1.2})
	is.True(math.Abs(p.Composite-1.3) < 1e-9)
	is.Equal(p.Unit, "g")
	is.True(!p.Verdict.Detected)
	is.Equal(len(p.Verdict.Scores), 6)
}

func TestVibrationReadWithoutConnect(t *testing.T) {
	is := is.New(t)

	v := NewVibration(sl.Discard(), mustConfig(t, false, 500, nil), fault.NewScorer(fault.DefaultCatalog()))
	_, err := v.Read(context.Background())
	is.True(errors.Is(err, ErrNotConnected))
}

func TestVibrationReadTimeout(t *testing.T) {
	is := is.New(t)

	port := newFakePort(map[string]string{"INIT": "OK", "RATE 500": "OK"})
	v := NewVibration(sl.Discard(), mustConfig(t, false, 500, nil),
		fault.NewScorer(fault.DefaultCatalog()), WithOpener(port.opener(t)))
	is.NoErr(v.Connect(context.Background()))

	_, err := v.Read(context.Background())
	is.True(errors.Is(err, ErrReadTimeout))
}

func TestVibrationSimulateNormal(t *testing.T) {
	is := is.New(t)

	v := NewVibration(sl.Discard(), mustConfig(t, true, 100, map[string]any{"fault_probability": 0.0}),
		fault.NewScorer(fault.DefaultCatalog()), WithRand(seeded()))
	is.NoErr(v.Connect(context.Background()))

	for i := 0; i < 50; i++ {
		out, err := v.Simulate(context.Background())
		is.NoErr(err)
		p := out.(*model.VibrationPayload)
		is.True(p.Simulated)
		is.True(!p.Anomaly)
		is.Equal(len(p.AxisValues), 3)
		is.True(len(p.Peaks) <= 8)
		is.Equal(p.InjectedFault, "")
	}
}

func TestVibrationSimulateInjectedFaultIsDetected(t *testing.T) {
	is := is.New(t)

	v := NewVibration(sl.Discard(), mustConfig(t, true, 100, map[string]any{"fault_probability": 1.0, "axis": 1}),
		fault.NewScorer(fault.DefaultCatalog()), WithRand(seeded()))

	out, err := v.Simulate(context.Background())
	is.NoErr(err)
	p := out.(*model.VibrationPayload)
	is.True(p.Anomaly)
	is.True(p.InjectedFault != "")
	is.Equal(len(p.AxisValues), 1)
	// fault peaks are 0.1..0.3 g, each scoring at least 1.0
	is.True(p.Verdict.Scores[p.InjectedFault] >= 1.0)
	is.True(p.Verdict.Detected)
}

func TestProbePeaksFindsTone(t *testing.T) {
	is := is.New(t)

	const fs = 500.0
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = 1 + 0.5*math.Sin(2*math.Pi*103.6*float64(i)/fs)
	}

	peaks := probePeaks(samples, fs, probeFrequencies(fault.DefaultCatalog()), "composite")
	is.True(len(peaks) > 0)
	is.Equal(peaks[0].Frequency, 103.6)
	is.True(math.Abs(peaks[0].Amplitude-0.5) < 0.05)

	v := fault.NewScorer(fault.DefaultCatalog()).Score(peaks)
	is.True(v.Detected)
	is.Equal(v.FaultClass, "bearing_outer")
}

func TestProbePeaksSkipsShortWindowAndNyquist(t *testing.T) {
	is := is.New(t)

	is.Equal(len(probePeaks(make([]float64, 10), 500, []float64{30}, "c")), 0)

	peaks := probePeaks(make([]float64, 64), 100, []float64{30, 50, 85.4}, "c")
	is.Equal(len(peaks), 1)
	is.Equal(peaks[0].Frequency, 30.0)
}

func TestVibrationWindowOrder(t *testing.T) {
	is := is.New(t)

	v := NewVibration(sl.Discard(), mustConfig(t, true, 100, map[string]any{"window": 32}), fault.NewScorer(fault.DefaultCatalog()))
	for i := 0; i < 40; i++ {
		v.push(float64(i))
	}
	s := v.samples()
	is.Equal(len(s), 32)
	is.Equal(s[0], 8.0)
	is.Equal(s[31], 39.0)
}

func TestTemperatureRead(t *testing.T) {
	is := is.New(t)

	port := newFakePort(map[string]string{"READ": "T:41.5"})
	tp := NewTemperature(sl.Discard(), mustConfig(t, false, 1, nil), WithOpener(port.opener(t)))
	is.NoErr(tp.Connect(context.Background()))

	out, err := tp.Read(context.Background())
	is.NoErr(err)
	p := out.(*model.TemperaturePayload)
	is.Equal(p.Celsius, 41.5)
	is.Equal(p.Unit, "celsius")
	is.True(!p.Simulated)

	is.NoErr(tp.Disconnect())
	is.True(port.closed)
}

func TestParseTemperature(t *testing.T) {
	is := is.New(t)

	v, err := parseTemperature("T:35.2")
	is.NoErr(err)
	is.Equal(v, 35.2)

	v, err = parseTemperature(" 12 ")
	is.NoErr(err)
	is.Equal(v, 12.0)

	_, err = parseTemperature("T:hot")
	is.True(err != nil)
}

func TestTemperatureSimulateRange(t *testing.T) {
	is := is.New(t)

	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	tp := NewTemperature(sl.Discard(), mustConfig(t, true, 1, map[string]any{"anomaly_probability": 0.0}),
		WithRand(seeded()), WithClock(func() time.Time { return at }))

	for i := 0; i < 100; i++ {
		out, err := tp.Simulate(context.Background())
		is.NoErr(err)
		p := out.(*model.TemperaturePayload)
		// half past the hour: baseline 35 + 2.5 drift, +-0.5 noise
		is.True(p.Celsius >= 37.0 && p.Celsius <= 38.0)
		is.True(!p.Anomaly)
	}
}

func TestTemperatureSimulateAnomaly(t *testing.T) {
	is := is.New(t)

	tp := NewTemperature(sl.Discard(), mustConfig(t, true, 1, map[string]any{"anomaly_probability": 1.0}), WithRand(seeded()))
	out, err := tp.Simulate(context.Background())
	is.NoErr(err)
	p := out.(*model.TemperaturePayload)
	is.True(p.Anomaly)
	is.True(p.Celsius >= 49.5)
}

func TestCamera(t *testing.T) {
	is := is.New(t)

	hw := NewCamera(sl.Discard(), mustConfig(t, false, 30, nil))
	is.True(errors.Is(hw.Connect(context.Background()), ErrCaptureUnsupported))

	sim := NewCamera(sl.Discard(), mustConfig(t, true, 30, map[string]any{"width": 1280}))
	is.NoErr(sim.Connect(context.Background()))
	out, _ := sim.Simulate(context.Background())
	out2, _ := sim.Simulate(context.Background())
	is.Equal(out.(*model.CameraPayload).Width, 1280)
	is.Equal(out.(*model.CameraPayload).Height, 480)
	is.Equal(out2.(*model.CameraPayload).Frame, uint64(2))
}

func TestNewByType(t *testing.T) {
	is := is.New(t)

	scorer := fault.NewScorer(fault.DefaultCatalog())
	cfg := mustConfig(t, true, 10, nil)

	for _, typ := range []model.SensorType{model.SensorVibration, model.SensorTemperature, model.SensorCamera} {
		dev, err := New(sl.Discard(), typ, cfg, scorer)
		is.NoErr(err)
		is.Equal(dev.Type(), typ)
	}

	_, err := New(sl.Discard(), model.SensorAcoustic, cfg, scorer)
	is.True(err != nil)
}

// ---- helpers ----

func mustConfig(t *testing.T, simulate bool, rate float64, params map[string]any) model.SensorConfig {
	t.Helper()
	cfg, err := model.NewSensorConfig("/dev/ttyUSB0", simulate, rate, params)
	if err != nil {
		t.Fatalf("sensor config: %v", err)
	}
	return cfg
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

// fakePort answers each CRLF-terminated command with its scripted reply.
// Commands without a reply produce a read timeout.
type fakePort struct {
	mu      sync.Mutex
	replies map[string]string
	out     []byte
	in      strings.Builder
	mode    *serial.Mode
	closed  bool
}

func newFakePort(replies map[string]string) *fakePort {
	return &fakePort{replies: replies}
}

func (p *fakePort) opener(t *testing.T) Opener {
	return func(name string, mode *serial.Mode, _ time.Duration) (Port, error) {
		if name != "/dev/ttyUSB0" {
			t.Errorf("opened %q", name)
		}
		p.mode = mode
		return p, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Write(b)
	cmd := strings.TrimSpace(string(b))
	if reply, ok := p.replies[cmd]; ok {
		p.out = append(p.out, reply+"\r\n"...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.out)
	p.out = p.out[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Split(strings.TrimSuffix(p.in.String(), "\r\n"), "\r\n")
}
