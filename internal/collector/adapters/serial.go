package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

const (
	defaultBaudRate    = 9600
	defaultDataBits    = 8
	defaultStopBits    = 1
	defaultReadTimeout = time.Second
	maxLineLength      = 256
)

var (
	ErrNotConnected = errors.New("probe not connected")
	ErrReadTimeout  = errors.New("probe read timed out")
)

// Port is the part of a serial port the probes need. A read that times out
// returns 0, nil.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a named port. Tests replace it with an in-memory port.
type Opener func(name string, mode *serial.Mode, readTimeout time.Duration) (Port, error)

func OpenSerial(name string, mode *serial.Mode, readTimeout time.Duration) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}
	return p, nil
}

func serialMode(cfg model.SensorConfig) *serial.Mode {
	stop := serial.OneStopBit
	if cfg.Int("stop_bits", defaultStopBits) == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: cfg.Int("baud_rate", defaultBaudRate),
		DataBits: cfg.Int("data_bits", defaultDataBits),
		Parity:   serial.NoParity,
		StopBits: stop,
	}
}

// lineLink speaks the probes' CRLF-terminated ASCII command protocol.
type lineLink struct {
	port    Port
	pending []byte
}

func dial(open Opener, cfg model.SensorConfig) (*lineLink, error) {
	port, err := open(cfg.DeviceID(), serialMode(cfg), defaultReadTimeout)
	if err != nil {
		return nil, err
	}
	return &lineLink{port: port}, nil
}

// command writes cmd and returns the trimmed reply line.
func (l *lineLink) command(ctx context.Context, cmd string) (string, error) {
	if err := l.send(cmd); err != nil {
		return "", err
	}
	return l.readLine(ctx)
}

func (l *lineLink) send(cmd string) error {
	if _, err := io.WriteString(l.port, cmd+"\r\n"); err != nil {
		return fmt.Errorf("failed to write %q: %w", cmd, err)
	}
	return nil
}

func (l *lineLink) readLine(ctx context.Context) (string, error) {
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := string(l.pending[:i])
			l.pending = l.pending[i+1:]
			return strings.TrimSpace(line), nil
		}
		if len(l.pending) > maxLineLength {
			l.pending = nil
			return "", fmt.Errorf("reply exceeds %d bytes without newline", maxLineLength)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := l.port.Read(buf)
		l.pending = append(l.pending, buf[:n]...)
		if err != nil {
			return "", fmt.Errorf("failed to read reply: %w", err)
		}
		if n == 0 {
			return "", ErrReadTimeout
		}
	}
}

func (l *lineLink) close() error {
	return l.port.Close()
}
