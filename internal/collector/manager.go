package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

const DefaultStopTimeout = 5 * time.Second

// Manager owns a keyed set of engines and starts or stops them as a group.
type Manager struct {
	log         *slog.Logger
	stopTimeout time.Duration

	mu      sync.Mutex
	engines map[string]*Engine
	running bool
}

func NewManager(log *slog.Logger, stopTimeout time.Duration) *Manager {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Manager{
		log:         log.With(slog.String("component", "sensor_manager")),
		stopTimeout: stopTimeout,
		engines:     make(map[string]*Engine),
	}
}

// AddSensor registers e under key. An engine already registered under the
// same key is replaced, and stopped first if it was running. The new engine
// is not started automatically.
func (m *Manager) AddSensor(key string, e *Engine) {
	m.mu.Lock()
	old, exists := m.engines[key]
	m.engines[key] = e
	m.mu.Unlock()

	if !exists {
		m.log.Info("sensor added", slog.String("key", key), slog.String("type", string(e.Type())))
		return
	}

	m.log.Warn("sensor replaced", slog.String("key", key))
	if old != e && old.Running() {
		old.Stop(m.stopTimeout)
	}
}

// StartAll starts every registered engine. A second call while the manager
// is running only logs a warning. Engines that refuse to start do not
// prevent the others from starting; their keys are reported in the returned
// error.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.log.Warn("sensor manager already running")
		return nil
	}
	m.running = true
	keys := m.sortedKeys()
	engines := m.snapshot(keys)
	m.mu.Unlock()

	var errs []error
	for i, key := range keys {
		if !engines[i].Start() {
			m.log.Error("sensor failed to start", slog.String("key", key))
			errs = append(errs, fmt.Errorf("sensor %q: %w", key, ErrAlreadyRunning))
		}
	}

	m.log.Info("sensor manager started",
		slog.Int("sensors", len(keys)),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// StopAll stops every engine in parallel and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.running = false
	keys := m.sortedKeys()
	engines := m.snapshot(keys)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(key string, e *Engine) {
			defer wg.Done()
			if e.Stop(m.stopTimeout) {
				m.log.Debug("sensor stopped", slog.String("key", key))
			}
		}(key, engines[i])
	}
	wg.Wait()

	m.log.Info("sensor manager stopped", slog.Int("sensors", len(keys)))
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) Engine(key string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[key]
	return e, ok
}

func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedKeys()
}

func (m *Manager) Statuses() map[string]model.SensorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]model.SensorStatus, len(m.engines))
	for key, e := range m.engines {
		out[key] = e.Status()
	}
	return out
}

func (m *Manager) sortedKeys() []string {
	keys := make([]string, 0, len(m.engines))
	for key := range m.engines {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) snapshot(keys []string) []*Engine {
	out := make([]*Engine, len(keys))
	for i, key := range keys {
		out[i] = m.engines[key]
	}
	return out
}
