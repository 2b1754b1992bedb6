package sim

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reelcoach/companion/internal/coaching"
)

const (
	// pongWait bounds how long a silent connection survives.
	pongWait       = 90 * time.Second
	wsPingInterval = 30 * time.Second
	writeWait      = 10 * time.Second
	sendBuffer     = 256

	// frameStatsEvery is how many frames pass between published frame_stats
	// events.
	frameStatsEvery = 30
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// liveClient is one coaching client connection served by the simulator.
type liveClient struct {
	sessionID  string
	outputMode string
	persona    string
	patternID  *string

	conn     *websocket.Conn
	send     chan interface{}
	coach    *ScriptedCoach
	sessions *SessionRepository
	events   EventPublisher
	logger   *zap.Logger

	// Latency observed from client ping timestamps. Only touched by readPump.
	latSumMS int64
	latN     int64
}

func newLiveClient(conn *websocket.Conn, sessionID, outputMode, persona string, patternID *string, h *Handler) *liveClient {
	return &liveClient{
		sessionID:  sessionID,
		outputMode: outputMode,
		persona:    persona,
		patternID:  patternID,
		conn:       conn,
		send:       make(chan interface{}, sendBuffer),
		coach:      NewScriptedCoach(persona),
		sessions:   h.sessions,
		events:     h.events,
		logger:     h.logger.With(zap.String("session_id", sessionID)),
	}
}

func (c *liveClient) run() {
	if c.sessions != nil {
		if err := c.sessions.LogStart(context.Background(), c.sessionID, c.outputMode, c.persona, c.patternID); err != nil {
			c.logger.Warn("log session start failed", zap.Error(err))
		}
	}
	if c.events != nil {
		started := map[string]string{
			"output_mode": c.outputMode,
			"persona":     c.persona,
		}
		if c.patternID != nil {
			started["pattern_id"] = *c.patternID
		}
		_ = c.events.PublishSessionEvent("session_started", c.sessionID, started)
	}
	go c.writePump()
	c.readPump()
}

// enqueue queues an outbound message, dropping it if the writer is behind.
func (c *liveClient) enqueue(msg interface{}) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message")
	}
}

func (c *liveClient) readPump() {
	defer func() {
		c.finish()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 22) // base64 frames are large
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Warn("bad message", zap.Error(err))
			continue
		}

		switch envelope.Type {
		case coaching.TypeConfig:
			var cfg coaching.ConfigMessage
			if err := json.Unmarshal(data, &cfg); err == nil {
				c.logger.Info("client config",
					zap.String("codec", cfg.Streaming.Codec),
					zap.Int("fps", cfg.Streaming.FPS),
					zap.String("resolution", cfg.Streaming.Resolution))
			}
			c.enqueue(&coaching.SessionStatusMessage{Type: coaching.TypeSessionStatus, Status: "active", Tier: "full"})
		case coaching.TypePing:
			var ping coaching.PingMessage
			if err := json.Unmarshal(data, &ping); err == nil {
				// Ping t is the client's wall clock in ms, so the delta is
				// the observed one-way latency.
				if lat := time.Now().UnixMilli() - ping.T; lat >= 0 {
					c.latSumMS += lat
					c.latN++
				}
				c.enqueue(&coaching.PongMessage{Type: coaching.TypePong, T: ping.T})
			}
		case coaching.TypeVideoFrame:
			var frame coaching.VideoFrameMessage
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			c.enqueue(&coaching.FrameAckMessage{Type: coaching.TypeFrameAck, TMS: frame.TMS})
			for _, msg := range c.coach.OnFrame(&frame) {
				c.enqueue(msg)
			}
			if n := c.coach.FrameCount(); n%frameStatsEvery == 0 && c.events != nil {
				_ = c.events.PublishSessionEvent("frame_stats", c.sessionID, map[string]interface{}{
					"frames_received": n,
					"avg_latency_ms":  c.avgLatencyMS(),
				})
			}
		case coaching.TypeControl:
			var ctl coaching.ControlMessage
			if err := json.Unmarshal(data, &ctl); err != nil {
				continue
			}
			c.logger.Info("control", zap.String("action", ctl.Action))
			if ctl.Action == coaching.ControlStop {
				return
			}
		case coaching.TypeUserFeedback:
			var fb coaching.UserFeedbackMessage
			if err := json.Unmarshal(data, &fb); err == nil {
				c.enqueue(c.coach.OnUserFeedback(&fb))
			}
		default:
			c.enqueue(&coaching.ErrorMessage{
				Type:    coaching.TypeError,
				Code:    "unknown_type",
				Message: "unrecognized message type: " + envelope.Type,
			})
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// avgLatencyMS is the mean ping latency observed so far, 0 before the first
// ping.
func (c *liveClient) avgLatencyMS() float64 {
	if c.latN == 0 {
		return 0
	}
	return float64(c.latSumMS) / float64(c.latN)
}

func (c *liveClient) finish() {
	frames := c.coach.FrameCount()
	avgLatency := c.avgLatencyMS()
	if c.sessions != nil {
		if err := c.sessions.LogEnd(context.Background(), c.sessionID, frames, avgLatency); err != nil {
			c.logger.Warn("log session end failed", zap.Error(err))
		}
	}
	if c.events != nil {
		_ = c.events.PublishSessionEvent("session_ended", c.sessionID, map[string]interface{}{
			"frames_received": frames,
			"avg_latency_ms":  avgLatency,
		})
	}
	c.logger.Info("session ended",
		zap.Int64("frames_received", frames),
		zap.Float64("avg_latency_ms", avgLatency))
}
