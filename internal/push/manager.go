package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cabsync/cabsync/internal/events"
	"github.com/cabsync/cabsync/internal/observability"
)

// State describes the push channel connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Bus topics published by the Manager. Frame messages are additionally
// published under MessageTopic(frame.Type) when the frame carries a type tag.
const (
	TopicConnected    events.Topic = "push.connected"
	TopicDisconnected events.Topic = "push.disconnected"
	TopicMessage      events.Topic = "push.message"
	TopicError        events.Topic = "push.error"
	TopicGiveUp       events.Topic = "push.giveup"
)

// MessageTopic returns the type-specific topic for a frame type, letting
// subscribers listen narrowly instead of filtering TopicMessage themselves.
func MessageTopic(frameType string) events.Topic {
	return events.Topic("push.message." + frameType)
}

// Frame is one inbound push message: the optional type tag plus the raw JSON
// document for subscribers to decode as they see fit.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// Disconnected is the TopicDisconnected payload.
type Disconnected struct {
	Err error
}

// GiveUp is the TopicGiveUp payload, emitted once when the reconnect bound
// is exhausted. The manager stays down until Connect is called again.
type GiveUp struct {
	Attempts int
	LastErr  error
}

// ErrNotConnected is returned by Send when the channel is not connected.
// Payloads are never queued; the caller decides whether to retry.
var ErrNotConnected = errors.New("push channel not connected")

// ErrMalformedPayload wraps inbound frames that are not valid JSON. They are
// reported on TopicError and dropped; they never take the connection down.
var ErrMalformedPayload = errors.New("malformed push payload")

// Config tunes the Manager.
type Config struct {
	// URL is the websocket endpoint, ws:// or wss://.
	URL string
	// MaxAttempts bounds consecutive failed dials before giving up.
	MaxAttempts int
	// RetryDelay is the pause before each reconnect attempt.
	RetryDelay time.Duration
	// Exponential doubles the delay per consecutive failure, capped at
	// MaxRetryDelay, instead of the fixed-delay baseline.
	Exponential bool
	// MaxRetryDelay caps the exponential delay. Zero uses a default.
	MaxRetryDelay time.Duration
	// Header values (typically Authorization) sent with the dial request.
	Header map[string][]string
}

const (
	defaultMaxAttempts   = 5
	defaultRetryDelay    = 3 * time.Second
	defaultMaxRetryDelay = 30 * time.Second
)

// Manager owns the optional persistent push connection: it dials, watches
// for loss, reconnects within the configured bound, and re-emits inbound
// frames on the bus. All methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	bus    *events.Bus
	log    *slog.Logger
	dialer *websocket.Dialer

	mu          sync.Mutex
	state       State
	attempts    int
	lastFailure time.Time
	conn        *websocket.Conn
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager builds a Manager publishing to bus. Zero config fields get
// defaults; URL must be set before Connect.
func NewManager(cfg Config, bus *events.Bus, log *slog.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		bus:    bus,
		log:    log.With("component", "push"),
		dialer: websocket.DefaultDialer,
		state:  StateDisconnected,
	}
}

// Info is a point-in-time view of the connection state.
type Info struct {
	State       State
	Attempts    int
	LastFailure time.Time
}

// Info returns the current connection state, attempt counter, and the time
// of the last failure.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{State: m.state, Attempts: m.attempts, LastFailure: m.lastFailure}
}

// Connect starts the connection loop. It resets the attempt counter, so a
// manual call after a give-up starts a fresh reconnect budget. Calling
// Connect while the loop is already running is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	if m.cfg.URL == "" {
		return fmt.Errorf("push url is empty")
	}
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.attempts = 0
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(runCtx)
		m.mu.Lock()
		if m.done == done {
			m.cancel = nil
			m.done = nil
		}
		m.mu.Unlock()
	}()
	return nil
}

// Disconnect stops the loop and closes the connection. It does not publish
// TopicGiveUp; an explicit disconnect is not a failure.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	conn := m.conn
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

// Send writes payload as a JSON text frame. When the channel is not in the
// connected state it fails with ErrNotConnected instead of queueing or
// silently dropping.
func (m *Manager) Send(payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("write push frame: %w", err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context) {
	var lastErr error
	for {
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}
		m.setState(StateConnecting)

		conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, m.cfg.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				m.setState(StateDisconnected)
				return
			}
			lastErr = err
			attempts := m.recordFailure(err)
			if attempts >= m.cfg.MaxAttempts {
				m.giveUp(attempts, lastErr)
				return
			}
			if !sleep(ctx, m.retryDelay(attempts)) {
				m.setState(StateDisconnected)
				return
			}
			continue
		}

		m.adopt(conn)
		readErr := m.readLoop(conn)
		m.dropConn(conn)
		m.setState(StateDisconnected)
		m.bus.Publish(TopicDisconnected, Disconnected{Err: readErr})
		if ctx.Err() != nil {
			return
		}
		lastErr = readErr
		m.log.Warn("push connection lost, reconnecting", "error", readErr)
		if !sleep(ctx, m.retryDelay(0)) {
			return
		}
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		observability.PushMalformedTotal.Inc()
		m.log.Warn("dropping malformed push frame", "error", err)
		m.bus.Publish(TopicError, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return
	}
	observability.PushMessagesTotal.Inc()
	frame := Frame{Type: head.Type, Raw: append([]byte(nil), data...)}
	m.bus.Publish(TopicMessage, frame)
	if frame.Type != "" {
		m.bus.Publish(MessageTopic(frame.Type), frame)
	}
}

func (m *Manager) adopt(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()
	observability.ConnectionState.Set(1)
	m.log.Info("push channel connected", "url", m.cfg.URL)
	m.bus.Publish(TopicConnected, struct{}{})
}

func (m *Manager) dropConn(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	if state != StateConnected {
		observability.ConnectionState.Set(0)
	}
}

func (m *Manager) recordFailure(err error) int {
	m.mu.Lock()
	m.attempts++
	m.lastFailure = time.Now()
	attempts := m.attempts
	m.mu.Unlock()
	observability.ReconnectsTotal.Inc()
	m.log.Warn("push dial failed", "attempt", attempts, "max", m.cfg.MaxAttempts, "error", err)
	m.bus.Publish(TopicError, fmt.Errorf("push dial attempt %d: %w", attempts, err))
	return attempts
}

func (m *Manager) giveUp(attempts int, lastErr error) {
	m.setState(StateDisconnected)
	observability.ReconnectGiveUpsTotal.Inc()
	m.log.Error("push reconnect budget exhausted", "attempts", attempts, "error", lastErr)
	m.bus.Publish(TopicGiveUp, GiveUp{Attempts: attempts, LastErr: lastErr})
}

// retryDelay returns the pause before the next attempt. failures is the
// number of consecutive failures already recorded; the fixed-delay baseline
// ignores it.
func (m *Manager) retryDelay(failures int) time.Duration {
	if !m.cfg.Exponential {
		return m.cfg.RetryDelay
	}
	return calculateBackoff(failures, m.cfg.RetryDelay, m.cfg.MaxRetryDelay)
}

// calculateBackoff doubles base per failure, capped at max.
func calculateBackoff(failures int, base, max time.Duration) time.Duration {
	if failures < 0 {
		failures = 0
	}
	delay := base
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
