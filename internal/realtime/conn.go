// Package realtime maintains the persistent push connection to the
// CRM notification endpoint: at most one live channel per user, a
// periodic heartbeat, and automatic reconnection with capped
// exponential backoff up to an attempt ceiling.
package realtime

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lingodesk/bellhop/internal/domain"
)

// State describes the connection lifecycle.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackoff      State = "backoff"
	StateExhausted    State = "exhausted"
)

// EventHandler receives each decoded notification, in frame order.
type EventHandler func(n *domain.Notification)

// StateHandler observes state transitions. Handlers are invoked
// synchronously from the manager's internal lock: they must return
// quickly and must not call back into the Manager.
type StateHandler func(state State, attempt int)

// Config tunes the connection manager.
type Config struct {
	// Endpoint is the push URL root; the user id is appended as the
	// final path segment.
	Endpoint          string
	Token             string
	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	MaxAttempts       int
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Manager owns the push channel for one authenticated user at a time.
type Manager struct {
	cfg     Config
	dialer  websocket.Dialer
	onEvent EventHandler

	// writeMu serializes writes to the current connection; gorilla
	// permits only one concurrent writer.
	writeMu sync.Mutex

	mu            sync.Mutex
	state         State
	userID        string
	attempt       int
	gen           int
	conn          *websocket.Conn
	done          chan struct{}
	reconnect     *time.Timer
	stateHandlers []StateHandler
}

// NewManager creates a connection manager that forwards decoded
// notifications to onEvent. The manager starts disconnected.
func NewManager(cfg Config, onEvent EventHandler) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:     cfg,
		dialer:  websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		onEvent: onEvent,
		state:   StateDisconnected,
	}
}

// OnStateChange registers a state observer.
func (m *Manager) OnStateChange(h StateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateHandlers = append(m.stateHandlers, h)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the current reconnect attempt count.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Connect opens the push channel for userID. If the channel for the
// same user is already open or opening, this is a no-op. A channel
// for a different user is closed first. Calling Connect resets the
// attempt counter, so it also restarts a backed-off or exhausted
// manager.
func (m *Manager) Connect(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID == userID {
		switch m.state {
		case StateConnected, StateConnecting:
			return
		}
	}

	m.teardownLocked()
	m.userID = userID
	m.attempt = 0
	m.dialLocked()
}

// Disconnect tears the channel down intentionally: pending reconnects
// are cancelled, the heartbeat stops, and the user id is cleared. The
// teardown is complete when Disconnect returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
	m.userID = ""
	m.setStateLocked(StateDisconnected)
}

// teardownLocked invalidates the current generation so in-flight
// goroutines and timers become no-ops, then closes the connection.
func (m *Manager) teardownLocked() {
	m.gen++

	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.conn != nil {
		m.writeMu.Lock()
		_ = m.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		m.writeMu.Unlock()
		m.conn.Close()
		m.conn = nil
		setConnectionUp(false)
	}
}

func (m *Manager) dialLocked() {
	m.gen++
	gen := m.gen
	url := strings.TrimRight(m.cfg.Endpoint, "/") + "/" + m.userID
	m.setStateLocked(StateConnecting)
	go m.dial(gen, url)
}

func (m *Manager) dial(gen int, url string) {
	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	conn, resp, err := m.dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// Superseded by Disconnect or a newer Connect.
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		slog.Warn("push channel dial failed", "url", url, "error", err)
		m.scheduleRetryLocked()
		return
	}

	m.conn = conn
	m.attempt = 0
	done := make(chan struct{})
	m.done = done
	m.setStateLocked(StateConnected)
	setConnectionUp(true)
	slog.Info("push channel connected", "user_id", m.userID)

	go m.readLoop(gen, conn)
	go m.heartbeat(conn, done)
}

// scheduleRetryLocked applies the reconnect policy after an
// unexpected failure: delay min(initial * 2^attempt, max) before
// attempt n, fail-stop once the ceiling is reached.
func (m *Manager) scheduleRetryLocked() {
	if m.attempt >= m.cfg.MaxAttempts {
		slog.Warn("push channel reconnect attempts exhausted",
			"attempts", m.attempt,
			"user_id", m.userID,
		)
		m.setStateLocked(StateExhausted)
		return
	}

	m.attempt++
	delay := m.backoffDelay(m.attempt)
	m.setStateLocked(StateBackoff)
	recordReconnectScheduled()

	slog.Info("push channel reconnect scheduled",
		"attempt", m.attempt,
		"max_attempts", m.cfg.MaxAttempts,
		"delay", delay,
	)

	gen := m.gen
	m.reconnect = time.AfterFunc(delay, func() { m.redial(gen) })
}

func (m *Manager) redial(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateBackoff {
		return
	}
	m.dialLocked()
}

// backoffDelay returns min(initial * 2^attempt, max).
func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.cfg.InitialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.MaxBackoff {
			return m.cfg.MaxBackoff
		}
	}
	return delay
}

func (m *Manager) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(gen, err)
			return
		}

		n, heartbeat, decodeErr := DecodeFrame(raw)
		if decodeErr != nil {
			slog.Warn("dropping malformed frame", "error", decodeErr)
			recordFrame("malformed")
			continue
		}
		if heartbeat {
			recordFrame("heartbeat")
			continue
		}

		recordFrame("notification")
		m.onEvent(n)
	}
}

func (m *Manager) handleClosed(gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// Intentional teardown already handled cleanup.
		return
	}

	slog.Warn("push channel closed unexpectedly", "error", err)

	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	setConnectionUp(false)

	m.scheduleRetryLocked()
}

func (m *Manager) heartbeat(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(pingFrame))
			m.writeMu.Unlock()
			if err != nil {
				// The read loop observes the failure and reconnects.
				return
			}
		}
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	for _, h := range m.stateHandlers {
		h(s, m.attempt)
	}
}
