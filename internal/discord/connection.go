// Package discord bridges points subjects to a Discord review channel: it
// posts notifications, keeps them in sync with subject state and turns
// button clicks into state transitions.
package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// State is the lifecycle state of the gateway session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Gateway is the part of *discordgo.Session the connection manager drives.
type Gateway interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
}

// ConnectionConfig bounds reconnect and readiness polling.
type ConnectionConfig struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	PollAttempts int
}

// DefaultConnectionConfig returns the production reconnect policy.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxAttempts:  5,
		RetryDelay:   5 * time.Second,
		PollInterval: time.Second,
		PollAttempts: 10,
	}
}

// withDefaults fills zero fields from DefaultConnectionConfig.
func (c ConnectionConfig) withDefaults() ConnectionConfig {
	d := DefaultConnectionConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = d.PollAttempts
	}
	return c
}

// Status is a point-in-time view of the connection.
type Status struct {
	State   string `json:"state"`
	Attempt int    `json:"attempt"`
}

// ConnectionManager owns the gateway session lifecycle. Reconnects are
// bounded by MaxAttempts and driven by Run; after the limit the manager stays
// Failed until the process restarts.
type ConnectionManager struct {
	gw     Gateway
	cfg    ConnectionConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	attempt int
	closing bool

	retry   chan struct{}
	removes []func()
}

// NewConnectionManager wraps gw. Zero fields in cfg take their defaults.
// The gateway's own reconnect logic should be disabled (discordgo:
// ShouldReconnectOnError = false).
func NewConnectionManager(gw Gateway, cfg ConnectionConfig, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &ConnectionManager{
		gw:     gw,
		cfg:    cfg.withDefaults(),
		logger: logger,
		retry:  make(chan struct{}, 1),
	}
	m.removes = append(m.removes,
		gw.AddHandler(m.onReady),
		gw.AddHandler(m.onDisconnect),
	)
	return m
}

// Connect opens the session unless it is already open or being opened.
// It returns true only when the session is ready. A failed open schedules a
// reconnect.
func (m *ConnectionManager) Connect(ctx context.Context) bool {
	m.mu.Lock()
	switch {
	case m.state == StateReady:
		m.mu.Unlock()
		return true
	case m.state == StateConnecting, m.state == StateFailed, m.closing:
		m.mu.Unlock()
		return false
	}
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.state = StateConnecting
	attempt := m.attempt
	m.mu.Unlock()

	m.logger.Info("Connecting to Discord gateway", "attempt", attempt)
	err := m.gw.Open()

	m.mu.Lock()
	if err != nil && !errors.Is(err, discordgo.ErrWSAlreadyOpen) {
		m.state = StateDisconnected
		m.logger.Error("Discord login failed", "error", err, "attempt", attempt)
		m.scheduleRetryLocked()
		m.mu.Unlock()
		return false
	}
	if m.closing {
		// Close ran while Open was in flight and skipped the gateway.
		m.state = StateDisconnected
		m.mu.Unlock()
		if cerr := m.gw.Close(); cerr != nil {
			m.logger.Error("Failed to close Discord session opened during shutdown", "error", cerr)
		}
		return false
	}
	defer m.mu.Unlock()

	m.state = StateReady
	m.attempt = 0
	m.logger.Info("Discord session ready")
	return true
}

// IsReady reports whether the session can be used right now.
func (m *ConnectionManager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady
}

// EnsureConnected returns true once the session is ready. It connects when
// idle and polls while another caller is connecting.
func (m *ConnectionManager) EnsureConnected(ctx context.Context) bool {
	switch m.currentState() {
	case StateReady:
		return true
	case StateFailed:
		return false
	case StateDisconnected:
		if m.Connect(ctx) {
			return true
		}
		if m.currentState() != StateConnecting {
			return false
		}
	}

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for i := 0; i < m.cfg.PollAttempts; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		switch m.currentState() {
		case StateReady:
			return true
		case StateFailed, StateDisconnected:
			return false
		}
	}

	m.logger.Warn("Timed out waiting for Discord session",
		"poll_attempts", m.cfg.PollAttempts, "poll_interval", m.cfg.PollInterval)
	return false
}

// Run performs scheduled reconnects until ctx is cancelled.
func (m *ConnectionManager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.retry:
		}

		timer := time.NewTimer(m.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		m.Connect(ctx)
	}
}

// Close marks shutdown and closes the session if it is open.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	wasReady := m.state == StateReady
	m.state = StateDisconnected
	m.mu.Unlock()

	for _, remove := range m.removes {
		remove()
	}
	if !wasReady {
		return nil
	}
	m.logger.Info("Closing Discord session")
	return m.gw.Close()
}

// Status returns the current state and reconnect attempt.
func (m *ConnectionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state.String(), Attempt: m.attempt}
}

func (m *ConnectionManager) currentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// scheduleRetryLocked must be called with mu held.
func (m *ConnectionManager) scheduleRetryLocked() {
	if m.closing {
		return
	}
	if m.attempt >= m.cfg.MaxAttempts {
		m.state = StateFailed
		m.logger.Error("Discord reconnect attempts exhausted, restart required",
			"max_attempts", m.cfg.MaxAttempts)
		return
	}
	m.attempt++
	select {
	case m.retry <- struct{}{}:
	default:
	}
	m.logger.Warn("Discord reconnect scheduled", "attempt", m.attempt, "delay", m.cfg.RetryDelay)
}

func (m *ConnectionManager) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	user := ""
	if r.User != nil {
		user = r.User.Username
	}
	m.logger.Info("Discord gateway ready", "bot_user", user, "session_id", r.SessionID)
}

func (m *ConnectionManager) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing || m.state != StateReady {
		return
	}
	m.state = StateDisconnected
	m.logger.Warn("Discord session dropped")
	m.scheduleRetryLocked()
}
