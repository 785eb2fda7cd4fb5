package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/speedwagon-io/idlerguard/internal/config"
	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

const (
	temperaturePath = "/api/bearing-temperature"
	statusPath      = "/api/bearing-temperature/status"
	alertsPath      = "/api/alerts"
)

// Sender delivers readings to the inspection backend.
type Sender interface {
	// PostTemperature returns the backend's evaluation of the value
	// (normal, warning or danger).
	PostTemperature(ctx context.Context, deviceID string, celsius float64) (string, error)
	PostAlert(ctx context.Context, alert *model.Alert) error
	// Send replays a buffered envelope to the endpoint of its kind.
	Send(ctx context.Context, envelope *model.Envelope) error
	Health(ctx context.Context) error
}

// StatusError is a non-2xx reply. 4xx replies are not retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}

func (e *StatusError) permanent() bool {
	return e.Code >= 400 && e.Code < 500
}

type HTTPSender struct {
	log         *slog.Logger
	baseURL     string
	token       string
	client      *http.Client
	maxAttempts int
	backoff     *ExponentialBackoff
}

func NewHTTPSender(log *slog.Logger, cfg *config.SenderConfig) *HTTPSender {
	attempts := cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPSender{
		log:     log.With(slog.String("component", "sender")),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxAttempts: attempts,
		backoff:     NewExponentialBackoff(cfg.Retry.InitialDelay, cfg.Retry.MaxDelay),
	}
}

func (s *HTTPSender) PostTemperature(ctx context.Context, deviceID string, celsius float64) (string, error) {
	data, err := json.Marshal(model.TemperaturePost{Temperature: celsius, DeviceID: deviceID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal temperature: %w", err)
	}

	body, err := s.postWithRetry(ctx, temperaturePath, data)
	if err != nil {
		return "", err
	}
	return parseEvaluation(body)
}

func (s *HTTPSender) PostAlert(ctx context.Context, alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, err = s.postWithRetry(ctx, alertsPath, data)
	return err
}

func (s *HTTPSender) Send(ctx context.Context, envelope *model.Envelope) error {
	path, err := pathFor(envelope.Kind)
	if err != nil {
		return err
	}

	_, err = s.postWithRetry(ctx, path, envelope.Body)
	return err
}

func (s *HTTPSender) postWithRetry(ctx context.Context, path string, data []byte) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		body, err := s.doPost(ctx, path, data)
		if err == nil {
			return body, nil
		}

		lastErr = err
		s.log.Warn("send attempt failed",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.maxAttempts),
			sl.Err(err),
		)

		var se *StatusError
		if errors.As(err, &se) && se.permanent() {
			return nil, err
		}

		if attempt < s.maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoff.NextDelay(attempt - 1)):
			}
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", s.maxAttempts, lastErr)
}

func (s *HTTPSender) doPost(ctx context.Context, path string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
}

func (s *HTTPSender) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+statusPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

func (s *HTTPSender) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func pathFor(kind string) (string, error) {
	switch kind {
	case model.KindTemperature:
		return temperaturePath, nil
	case model.KindAlert:
		return alertsPath, nil
	default:
		return "", fmt.Errorf("unknown envelope kind %q", kind)
	}
}

type evaluation struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func parseEvaluation(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}

	var ev evaluation
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !ev.Success && ev.Message != "" {
		return "", fmt.Errorf("backend rejected temperature: %s", ev.Message)
	}
	return ev.Status, nil
}

// LogSender logs postings instead of sending them (dry run).
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) PostTemperature(ctx context.Context, deviceID string, celsius float64) (string, error) {
	s.log.Info("POST temperature",
		slog.String("device_id", deviceID),
		slog.Float64("temperature", celsius),
	)
	return "", nil
}

func (s *LogSender) PostAlert(ctx context.Context, alert *model.Alert) error {
	data, err := json.MarshalIndent(alert, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	s.log.Info("POST alert",
		slog.String("device_id", alert.DeviceID),
		slog.String("fault_type", alert.FaultType),
		slog.String("severity", alert.Severity),
		slog.String("payload", string(data)),
	)
	return nil
}

func (s *LogSender) Send(ctx context.Context, envelope *model.Envelope) error {
	s.log.Info("SEND",
		slog.String("id", envelope.ID),
		slog.String("kind", envelope.Kind),
		slog.String("sensor_key", envelope.SensorKey),
		slog.String("payload", string(envelope.Body)),
	)
	return nil
}

func (s *LogSender) Health(ctx context.Context) error {
	return nil
}
