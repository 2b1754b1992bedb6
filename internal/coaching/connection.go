package coaching

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reelcoach/companion/internal/stream"
)

// ConnectionState is the live channel lifecycle state.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateOpen         ConnectionState = "open"
	StateReconnecting ConnectionState = "reconnecting"
	StateClosed       ConnectionState = "closed"
)

const (
	// DefaultPingInterval is the heartbeat period.
	DefaultPingInterval = 30 * time.Second
	// DefaultReconnectDelay is the fixed (not exponential) delay before a
	// reconnect attempt.
	DefaultReconnectDelay = 2 * time.Second
	// DefaultMaxReconnectAttempts bounds consecutive reconnects.
	DefaultMaxReconnectAttempts = 3

	// LatencyHistorySize is the displayed-stats latency ring capacity.
	LatencyHistorySize = 20

	defaultWriteWait = 10 * time.Second
	defaultDialWait  = 10 * time.Second

	// pendingTTLPings: pending frames older than this many heartbeat
	// intervals are swept, bounding memory when an ack never arrives.
	pendingTTLPings = 2
)

// ErrSessionClosed is returned when operating on a torn-down session.
var ErrSessionClosed = errors.New("coaching session closed")

// ManagerOptions configures a connection manager.
type ManagerOptions struct {
	// BaseURL is the ws(s) scheme backend base, e.g. ws://host:8080.
	BaseURL    string
	SessionID  string
	OutputMode string
	Persona    string
	Token      string // optional, attached as a query parameter
	Platform   string // e.g. ios, android

	Stream stream.Config
	// Pipeline receives frame_ack latencies when adaptive streaming is on.
	Pipeline   *stream.Pipeline
	Dispatcher *Dispatcher
	Logger     *zap.Logger

	// Timing knobs, injectable for tests. Zero values take the defaults.
	PingInterval         time.Duration
	ReconnectDelay       time.Duration
	WriteWait            time.Duration
	MaxReconnectAttempts int
}

// Manager owns the lifecycle of the real-time channel and all control-plane
// traffic: config handshake, heartbeat, control commands, reconnection.
// All mutable session state (pendingFrames, latency history, connection
// state) lives behind the manager's mutex.
type Manager struct {
	opts       ManagerOptions
	logger     *zap.Logger
	dispatcher *Dispatcher
	dialer     *websocket.Dialer

	mu        sync.Mutex
	state     ConnectionState
	conn      *websocket.Conn
	attempts  int
	pending   map[int64]time.Time
	latencies []int64
	closed    bool
	hbStop    chan struct{}
	reconnect *time.Timer

	// writeMu serializes socket writes (gorilla allows one writer).
	writeMu sync.Mutex

	now func() time.Time
}

// NewManager creates a connection manager in the Idle state.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher(opts.Logger, nil, false)
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.WriteWait == 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	m := &Manager{
		opts:       opts,
		logger:     opts.Logger,
		dispatcher: opts.Dispatcher,
		dialer:     &websocket.Dialer{HandshakeTimeout: defaultDialWait},
		state:      StateIdle,
		pending:    make(map[int64]time.Time),
		now:        time.Now,
	}
	m.dispatcher.SetBookkeeping(m.handlePong, m.handleFrameAck)
	return m
}

// URL returns the live channel endpoint for this session.
func (m *Manager) URL() string {
	q := url.Values{}
	q.Set("output_mode", m.opts.OutputMode)
	q.Set("persona", m.opts.Persona)
	if m.opts.Token != "" {
		q.Set("token", m.opts.Token)
	}
	return fmt.Sprintf("%s/api/v1/coaching/live/%s?%s", m.opts.BaseURL, m.opts.SessionID, q.Encode())
}

// Connect opens the channel, sends the config handshake, and starts the
// heartbeat and read loops. No-op when already open or connecting. A failed
// dial is handled like an abrupt close: logged, then retried under the
// bounded reconnect policy.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	conn, resp, err := m.dialer.DialContext(ctx, m.URL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.logger.Warn("coaching dial failed",
			zap.String("session_id", m.opts.SessionID), zap.Error(err))
		m.handleClose(-1, err)
		return fmt.Errorf("dial coaching channel: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrSessionClosed
	}
	m.conn = conn
	m.attempts = 0
	hbStop := make(chan struct{})
	m.hbStop = hbStop
	m.setStateLocked(StateOpen)
	m.mu.Unlock()

	m.logger.Info("coaching channel open", zap.String("session_id", m.opts.SessionID))

	if err := m.sendJSON(ConfigMessage{
		Type:     TypeConfig,
		Platform: m.opts.Platform,
		Streaming: StreamingInfo{
			Codec:      string(m.opts.Stream.Codec),
			FPS:        m.opts.Stream.TargetFPS,
			Resolution: fmt.Sprintf("%dx%d", m.opts.Stream.MaxWidth, m.opts.Stream.MaxHeight),
		},
	}); err != nil {
		m.logger.Warn("config handshake failed", zap.Error(err))
	}

	go m.heartbeatLoop(hbStop)
	go m.readLoop(conn)
	return nil
}

// readLoop drains inbound traffic into the dispatcher until the connection
// drops, then routes the close through the reconnect policy.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(closeCode(err), err)
			return
		}
		m.dispatcher.HandleRaw(data)
	}
}

// handleClose is the single exit path for a dropped or failed connection.
// Close code 1000 is the intentional sentinel and suppresses reconnection;
// any other close is abnormal and retried up to the attempt cap.
func (m *Manager) handleClose(code int, cause error) {
	m.mu.Lock()
	m.stopHeartbeatLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	if m.closed || code == websocket.CloseNormalClosure {
		m.setStateLocked(StateClosed)
		m.mu.Unlock()
		return
	}

	if m.attempts < m.opts.MaxReconnectAttempts {
		m.attempts++
		attempt := m.attempts
		m.setStateLocked(StateReconnecting)
		m.reconnect = time.AfterFunc(m.opts.ReconnectDelay, func() {
			_ = m.Connect(context.Background())
		})
		m.mu.Unlock()
		m.logger.Warn("coaching channel dropped, reconnecting",
			zap.Int("close_code", code),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.opts.MaxReconnectAttempts),
			zap.Error(cause))
		return
	}

	m.setStateLocked(StateClosed)
	m.mu.Unlock()
	m.logger.Error("coaching channel lost, retry budget exhausted",
		zap.Int("close_code", code), zap.Error(cause))
	m.dispatcher.publish(Event{Kind: EventTerminal, Error: "coaching connection lost"})
}

// heartbeatLoop sends an app-level ping each interval and sweeps stale
// pending frames.
func (m *Manager) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.sendJSON(PingMessage{Type: TypePing, T: m.now().UnixMilli()}); err != nil {
				m.logger.Debug("ping failed", zap.Error(err))
			}
			m.sweepPending()
		}
	}
}

// sweepPending evicts pending frames whose ack never arrived, bounding the
// map when packets are lost.
func (m *Manager) sweepPending() {
	ttl := time.Duration(pendingTTLPings) * m.opts.PingInterval
	cutoff := m.now().Add(-ttl)
	m.mu.Lock()
	for ts, sentAt := range m.pending {
		if sentAt.Before(cutoff) {
			delete(m.pending, ts)
		}
	}
	m.mu.Unlock()
}

// handlePong records heartbeat round-trip latency from the echoed timestamp.
func (m *Manager) handlePong(echoedT int64) {
	lat := m.now().UnixMilli() - echoedT
	if lat < 0 {
		lat = 0
	}
	m.recordLatency(lat)
}

// handleFrameAck resolves the pending frame and feeds its round trip into
// both the latency history and, when adaptive, the bitrate controller.
func (m *Manager) handleFrameAck(tMS int64) {
	m.mu.Lock()
	sentAt, ok := m.pending[tMS]
	if ok {
		delete(m.pending, tMS)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	lat := m.now().Sub(sentAt).Milliseconds()
	if lat < 0 {
		lat = 0
	}
	m.recordLatency(lat)
	if m.opts.Pipeline != nil {
		m.opts.Pipeline.RecordLatency(lat)
	}
}

func (m *Manager) recordLatency(latencyMS int64) {
	m.mu.Lock()
	m.latencies = append(m.latencies, latencyMS)
	if len(m.latencies) > LatencyHistorySize {
		m.latencies = m.latencies[len(m.latencies)-LatencyHistorySize:]
	}
	m.mu.Unlock()
}

// AverageLatencyMS returns the mean of the latency ring, or 0 when empty.
func (m *Manager) AverageLatencyMS() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	var sum int64
	for _, l := range m.latencies {
		sum += l
	}
	return sum / int64(len(m.latencies))
}

// SendFrame transmits one frame sample, registering it for ack correlation.
// Frame submission never errors: when the channel is down or the write fails
// the frame is dropped.
func (m *Manager) SendFrame(sample *stream.FrameSample) {
	if sample == nil {
		return
	}
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.pending[sample.TimestampMS] = m.now()
	m.mu.Unlock()

	msg := VideoFrameMessage{
		Type:        TypeVideoFrame,
		FrameB64:    base64.StdEncoding.EncodeToString(sample.Payload),
		Codec:       string(sample.Codec),
		Width:       sample.Width,
		Height:      sample.Height,
		TMS:         sample.TimestampMS,
		QualityHint: string(sample.QualityHint),
	}
	if err := m.sendJSON(msg); err != nil {
		m.mu.Lock()
		delete(m.pending, sample.TimestampMS)
		m.mu.Unlock()
		m.logger.Debug("frame send failed", zap.Int64("t_ms", sample.TimestampMS), zap.Error(err))
	}
}

// SendControl sends a session control command (start, stop, pause).
func (m *Manager) SendControl(action string) error {
	return m.sendJSON(ControlMessage{Type: TypeControl, Action: action, T: m.now().UnixMilli()})
}

// SendUserFeedback sends creator feedback text, answered by an
// adaptive_response message.
func (m *Manager) SendUserFeedback(text string) error {
	return m.sendJSON(UserFeedbackMessage{Type: TypeUserFeedback, Text: text})
}

func (m *Manager) sendJSON(msg interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrSessionClosed
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
	return conn.WriteJSON(msg)
}

// Disconnect tears the session down: best-effort stop control message, close
// frame with the intentional code, heartbeat and reconnect timers cancelled,
// pending frames and latency history cleared. Safe to call more than once.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	wasOpen := m.state == StateOpen
	m.setStateLocked(StateClosed)
	m.pending = make(map[int64]time.Time)
	m.latencies = nil
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		if wasOpen {
			_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			_ = conn.WriteJSON(ControlMessage{Type: TypeControl, Action: ControlStop, T: m.now().UnixMilli()})
		}
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "intentional")
		_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	m.logger.Info("coaching channel closed", zap.String("session_id", m.opts.SessionID))
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectAttempts returns the consecutive reconnect counter.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// PendingFrames returns the number of frames awaiting acknowledgment.
func (m *Manager) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) setStateLocked(s ConnectionState) {
	if m.state == s {
		return
	}
	m.state = s
	m.dispatcher.publish(Event{Kind: EventStateChange, State: s})
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}
