package coaching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reelcoach/companion/internal/guide"
	"github.com/reelcoach/companion/internal/stream"
)

// defaultFrameBuffer is the capture-to-pipeline hand-off depth. A full buffer
// sheds frames so a slow channel never blocks the capture path.
const defaultFrameBuffer = 8

// ErrRetryBudgetExhausted is returned when manual guide-load retries exceed
// guide.MaxRetryCount.
var ErrRetryBudgetExhausted = errors.New("guide load retry budget exhausted")

// SessionOptions configures one recording session.
type SessionOptions struct {
	SessionID  string // generated when empty
	PatternID  string
	WSBaseURL  string
	APIBaseURL string
	Token      string
	OutputMode string
	Persona    string
	Platform   string

	Stream       stream.Config
	Audio        AudioPlayer
	VoiceEnabled bool
	Logger       *zap.Logger

	// Timing knobs forwarded to the connection manager; zero means default.
	PingInterval         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	FrameBuffer int
}

// Session is the per-recording-attempt actor: it owns its connection manager,
// frame pipeline, and guide engine, and is destroyed on teardown. There is no
// cross-session shared state.
type Session struct {
	ID string

	logger     *zap.Logger
	pipeline   *stream.Pipeline
	dispatcher *Dispatcher
	manager    *Manager
	engine     *guide.Engine
	loader     *guide.Loader
	patternID  string

	frames chan rawFrame
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	shed   atomic.Int64

	mu           sync.Mutex
	loadCancel   context.CancelFunc
	guideRetries int
	guideNotice  string
}

type rawFrame struct {
	payload []byte
	width   int
	height  int
}

// NewSession builds a session from options. Call Start to open the channel
// and load the guide, Close to tear everything down.
func NewSession(opts SessionOptions) *Session {
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = defaultFrameBuffer
	}

	logger := opts.Logger.With(zap.String("session_id", opts.SessionID))
	pipeline := stream.NewPipeline(opts.Stream)
	dispatcher := NewDispatcher(logger, opts.Audio, opts.VoiceEnabled)
	manager := NewManager(ManagerOptions{
		BaseURL:              opts.WSBaseURL,
		SessionID:            opts.SessionID,
		OutputMode:           opts.OutputMode,
		Persona:              opts.Persona,
		Token:                opts.Token,
		Platform:             opts.Platform,
		Stream:               opts.Stream,
		Pipeline:             pipeline,
		Dispatcher:           dispatcher,
		Logger:               logger,
		PingInterval:         opts.PingInterval,
		ReconnectDelay:       opts.ReconnectDelay,
		MaxReconnectAttempts: opts.MaxReconnectAttempts,
	})

	return &Session{
		ID:         opts.SessionID,
		logger:     logger,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		manager:    manager,
		engine:     guide.NewEngine(),
		loader:     guide.NewLoader(opts.APIBaseURL, opts.Persona, logger),
		patternID:  opts.PatternID,
		frames:     make(chan rawFrame, opts.FrameBuffer),
		stopCh:     make(chan struct{}),
	}
}

// Start loads the guide (in the background), opens the coaching channel, and
// starts the frame forwarding loop.
func (s *Session) Start(ctx context.Context) error {
	// The load gets its own cancellable context so Close never waits out the
	// loader's HTTP timeout.
	loadCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.loadCancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loadGuide(loadCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.frameLoop()
	}()

	return s.manager.Connect(ctx)
}

func (s *Session) loadGuide(ctx context.Context) {
	if s.patternID == "" {
		return
	}
	data, err := s.loader.Load(ctx, s.patternID)
	s.engine.SetGuide(data)
	s.mu.Lock()
	var loadErr *guide.LoadError
	if errors.As(err, &loadErr) {
		s.guideNotice = loadErr.UserMessage()
	} else {
		s.guideNotice = ""
	}
	s.mu.Unlock()
}

// SubmitFrame hands a captured frame to the pipeline. Never blocks and never
// errors: when the hand-off buffer is full, the frame is shed.
func (s *Session) SubmitFrame(payload []byte, width, height int) {
	select {
	case s.frames <- rawFrame{payload: payload, width: width, height: height}:
	default:
		s.shed.Add(1)
	}
}

func (s *Session) frameLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case f := <-s.frames:
			if sample := s.pipeline.ProcessFrame(f.payload, f.width, f.height); sample != nil {
				s.manager.SendFrame(sample)
			}
		}
	}
}

// SendControl forwards a control command (start, stop, pause).
func (s *Session) SendControl(action string) error {
	return s.manager.SendControl(action)
}

// SendUserFeedback forwards creator feedback text to the coach.
func (s *Session) SendUserFeedback(text string) error {
	return s.manager.SendUserFeedback(text)
}

// RetryGuideLoad re-triggers the guide load. Manual and bounded; exceeding
// guide.MaxRetryCount returns ErrRetryBudgetExhausted.
func (s *Session) RetryGuideLoad(ctx context.Context) error {
	s.mu.Lock()
	if s.guideRetries >= guide.MaxRetryCount {
		s.mu.Unlock()
		return ErrRetryBudgetExhausted
	}
	s.guideRetries++
	s.mu.Unlock()

	s.loadGuide(ctx)
	return nil
}

// Events returns the typed event channel observed by the presentation layer.
func (s *Session) Events() <-chan Event { return s.dispatcher.Events() }

// State returns the connection state.
func (s *Session) State() ConnectionState { return s.manager.State() }

// CurrentFeedback returns the most recent coaching feedback, or nil.
func (s *Session) CurrentFeedback() *CoachingFeedback { return s.dispatcher.CurrentFeedback() }

// FeedbackHistory returns the bounded feedback history, oldest first.
func (s *Session) FeedbackHistory() []CoachingFeedback { return s.dispatcher.FeedbackHistory() }

// Guide returns the current guide data.
func (s *Session) Guide() *guide.GuideData { return s.engine.Guide() }

// GuideNotice returns the non-fatal guide-load status line, empty when the
// last load succeeded.
func (s *Session) GuideNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guideNotice
}

// CurrentStep returns the guide step active at elapsed recording time t.
func (s *Session) CurrentStep(elapsedSec float64) *guide.GuideStep {
	return s.engine.CurrentStep(elapsedSec)
}

// UpcomingStep returns the next step starting within preAlertSec of t.
func (s *Session) UpcomingStep(elapsedSec, preAlertSec float64) *guide.GuideStep {
	return s.engine.UpcomingStep(elapsedSec, preAlertSec)
}

// Stats is the read-only stream statistics snapshot for display.
type Stats struct {
	State          ConnectionState
	FramesSent     int64
	FramesDropped  int64
	FramesShed     int64
	PendingFrames  int
	AvgLatencyMS   int64
	CurrentBitrate int
	QualityTier    stream.QualityTier
}

// Stats returns a snapshot of the session's stream statistics.
func (s *Session) Stats() Stats {
	return Stats{
		State:          s.manager.State(),
		FramesSent:     s.pipeline.Sent(),
		FramesDropped:  s.pipeline.Dropped(),
		FramesShed:     s.shed.Load(),
		PendingFrames:  s.manager.PendingFrames(),
		AvgLatencyMS:   s.manager.AverageLatencyMS(),
		CurrentBitrate: s.pipeline.CurrentBitrate(),
		QualityTier:    s.pipeline.QualityTier(),
	}
}

// String implements fmt.Stringer for log lines.
func (st Stats) String() string {
	return fmt.Sprintf("state=%s sent=%d dropped=%d shed=%d pending=%d avg_latency=%dms bitrate=%d tier=%s",
		st.State, st.FramesSent, st.FramesDropped, st.FramesShed, st.PendingFrames, st.AvgLatencyMS, st.CurrentBitrate, st.QualityTier)
}

// Close tears the session down: the channel is closed with the intentional
// code, timers are cancelled, and buffers cleared. Safe to call more than
// once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		cancel := s.loadCancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.manager.Disconnect()
		s.dispatcher.Reset()
		s.wg.Wait()
	})
}
