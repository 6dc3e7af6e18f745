// Package reconnect provides backoff accounting for long-lived stream
// connections. A Manager tracks consecutive failures, grows the delay
// between attempts exponentially, and suspends retries for a cooldown
// window when a connection keeps failing instead of hammering the
// remote endpoint.
package reconnect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"hermes/pkg/logger"
)

// Config tunes the retry schedule. Zero values get defaults.
type Config struct {
	MinBackoff  time.Duration // first retry delay
	MaxBackoff  time.Duration // backoff ceiling
	Multiplier  float64       // growth factor between attempts
	MaxFailures int           // consecutive failures before suspending
	Cooldown    time.Duration // suspension length once MaxFailures is hit
}

// Manager serializes reconnect attempts for a single connection.
type Manager struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	backoff  time.Duration
	failures int
	total    int

	lastMessage atomic.Int64
}

func NewManager(cfg Config) *Manager {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 10
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Manager{
		cfg:     cfg,
		log:     logger.Get().With("component", "reconnect"),
		backoff: cfg.MinBackoff,
	}
}

// Wait blocks for the current retry delay, or for the cooldown window
// when the failure cap has been reached. The first call after a success
// returns immediately. It returns early only when ctx is cancelled.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	delay := time.Duration(0)
	if m.failures > 0 {
		delay = m.backoff
	}
	if m.failures >= m.cfg.MaxFailures {
		delay = m.cfg.Cooldown
		// Half-open after the cooldown: allow a fresh run of attempts.
		m.failures = 0
		m.backoff = m.cfg.MinBackoff
		m.log.Warnw("Retry cap reached, suspending reconnect attempts",
			"cooldown", delay,
		)
	}
	m.mu.Unlock()

	if delay == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// RecordFailure notes a failed attempt and grows the next delay.
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	if m.failures == 1 {
		return
	}
	next := time.Duration(float64(m.backoff) * m.cfg.Multiplier)
	if next > m.cfg.MaxBackoff {
		next = m.cfg.MaxBackoff
	}
	m.backoff = next
}

// RecordSuccess resets the schedule after a connection is established.
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.log.Infow("Connection restored",
			"failed_attempts", m.failures,
		)
	}
	m.failures = 0
	m.backoff = m.cfg.MinBackoff
	m.total++
	m.lastMessage.Store(time.Now().UnixNano())
}

// RecordMessage marks traffic on the connection. Callers use it to
// distinguish a live but quiet connection from a dead one.
func (m *Manager) RecordMessage() {
	m.lastMessage.Store(time.Now().UnixNano())
}

// SinceLastMessage reports how long the connection has been silent.
// Before any traffic it reports zero.
func (m *Manager) SinceLastMessage() time.Duration {
	at := m.lastMessage.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}

// Failures returns the consecutive failure count.
func (m *Manager) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Connects returns how many times a connection was established.
func (m *Manager) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
