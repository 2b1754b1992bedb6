package sim

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcoach/companion/internal/auth"
	"github.com/reelcoach/companion/internal/coaching"
	"github.com/reelcoach/companion/pkg/response"
)

func newTestServer(t *testing.T, configure func(h *Handler)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	patterns, err := NewEmbeddedPatternStore()
	require.NoError(t, err)
	h := NewHandler(patterns, nil)
	if configure != nil {
		configure(h)
	}

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response) response.Body {
	t.Helper()
	defer resp.Body.Close()
	var body response.Body
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestGetPatternServesEmbeddedSeed(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/outliers/items/pattern_pov_reveal")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Title        string          `json:"title"`
		DirectorPack json.RawMessage `json:"director_pack"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "POV reveal with hard cut", doc.Title)
	assert.NotEmpty(t, doc.DirectorPack)
}

func TestGetPatternNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/outliers/items/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.False(t, body.Success)
}

func TestEndpointsUnavailableWithoutStores(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/coaching/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/coaching/sessions/s1/recordings", "application/json",
		strings.NewReader(`{"source_url":"http://example.com/take.mp4"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func dialLive(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/coaching/live/sess-1" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == want {
			return msg
		}
		require.True(t, time.Now().Before(deadline))
	}
}

func TestLiveProtocolRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dialLive(t, srv, "?output_mode=graphic&persona=chill_guide")

	require.NoError(t, conn.WriteJSON(coaching.ConfigMessage{
		Type:     coaching.TypeConfig,
		Platform: "test",
		Streaming: coaching.StreamingInfo{
			Codec: "jpeg", FPS: 2, Resolution: "720x1280",
		},
	}))
	readType(t, conn, coaching.TypeSessionStatus)

	require.NoError(t, conn.WriteJSON(coaching.PingMessage{Type: coaching.TypePing, T: 123456}))
	pong := readType(t, conn, coaching.TypePong)
	assert.Equal(t, float64(123456), pong["t"])

	require.NoError(t, conn.WriteJSON(coaching.VideoFrameMessage{
		Type: coaching.TypeVideoFrame, FrameB64: "QUJD", Codec: "jpeg",
		Width: 720, Height: 1280, TMS: 42,
	}))
	ack := readType(t, conn, coaching.TypeFrameAck)
	assert.Equal(t, float64(42), ack["t_ms"])

	require.NoError(t, conn.WriteJSON(coaching.UserFeedbackMessage{
		Type: coaching.TypeUserFeedback, Text: "skip the intro",
	}))
	adaptive := readType(t, conn, coaching.TypeAdaptiveResp)
	assert.Equal(t, false, adaptive["accepted"])

	// Unknown types get a non-fatal error reply.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "hologram"}))
	errMsg := readType(t, conn, coaching.TypeError)
	assert.Equal(t, "unknown_type", errMsg["code"])
}

func TestLiveScriptedCoachEmitsOnFrames(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dialLive(t, srv, "")

	for i := 0; i < feedbackEvery; i++ {
		require.NoError(t, conn.WriteJSON(coaching.VideoFrameMessage{
			Type: coaching.TypeVideoFrame, FrameB64: "QUJD", TMS: int64(i),
		}))
	}
	fb := readType(t, conn, coaching.TypeFeedback)
	assert.NotEmpty(t, fb["message"])
	assert.NotEmpty(t, fb["rule_id"])
}

func TestLiveRequiresValidTokenWhenJWTSet(t *testing.T) {
	jwtSvc := auth.NewJWTService("test-secret", 1)
	srv := newTestServer(t, func(h *Handler) { h.SetJWT(jwtSvc) })

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/coaching/live/sess-1"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+"?token=garbage", nil)
	require.Error(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// capturingPublisher records published session events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	Event     string
	SessionID string
	Data      map[string]interface{}
}

func (p *capturingPublisher) PublishSessionEvent(event, sessionID string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev := capturedEvent{Event: event, SessionID: sessionID}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &ev.Data); err != nil {
			return err
		}
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) find(event string) *capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.events {
		if p.events[i].Event == event {
			return &p.events[i]
		}
	}
	return nil
}

func TestLiveSessionPublishesFrameStats(t *testing.T) {
	pub := &capturingPublisher{}
	srv := newTestServer(t, func(h *Handler) { h.SetEventPublisher(pub) })
	conn := dialLive(t, srv, "?pattern_id=pattern_pov_reveal")

	// A ping stamped 40ms in the past gives the server a measurable latency
	// before any stats are published.
	require.NoError(t, conn.WriteJSON(coaching.PingMessage{
		Type: coaching.TypePing, T: time.Now().UnixMilli() - 40,
	}))
	readType(t, conn, coaching.TypePong)

	for i := 0; i < frameStatsEvery; i++ {
		require.NoError(t, conn.WriteJSON(coaching.VideoFrameMessage{
			Type: coaching.TypeVideoFrame, FrameB64: "QUJD", TMS: int64(i),
		}))
	}
	readType(t, conn, coaching.TypeFrameAck)

	require.NoError(t, conn.WriteJSON(coaching.ControlMessage{
		Type: coaching.TypeControl, Action: coaching.ControlStop,
	}))

	require.Eventually(t, func() bool { return pub.find("session_ended") != nil },
		2*time.Second, 10*time.Millisecond)

	started := pub.find("session_started")
	require.NotNil(t, started)
	assert.Equal(t, "sess-1", started.SessionID)
	assert.Equal(t, "pattern_pov_reveal", started.Data["pattern_id"])

	stats := pub.find("frame_stats")
	require.NotNil(t, stats)
	assert.Equal(t, float64(frameStatsEvery), stats.Data["frames_received"])
	assert.GreaterOrEqual(t, stats.Data["avg_latency_ms"].(float64), float64(40))

	ended := pub.find("session_ended")
	assert.Equal(t, float64(frameStatsEvery), ended.Data["frames_received"])
	assert.GreaterOrEqual(t, ended.Data["avg_latency_ms"].(float64), float64(40))
}

func TestListSessionRecordingsUnavailableWithoutStore(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/coaching/sessions/s1/recordings")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
