package coaching

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// feedbackHistorySize bounds the kept feedback records.
	feedbackHistorySize = 10
	// eventBufferSize bounds the subscription channel; a slow consumer sheds
	// events rather than blocking the read loop.
	eventBufferSize = 64
)

// AudioPlayer plays coaching audio on the device. Injected by the shell;
// playback failures are the player's problem, not the dispatcher's.
type AudioPlayer interface {
	Play(audioB64 string)
}

// Dispatcher is the single entry point for all inbound channel payloads. It
// decodes the type discriminator, updates internal bookkeeping, and fans
// domain messages out on a typed event channel.
type Dispatcher struct {
	logger       *zap.Logger
	audio        AudioPlayer
	voiceEnabled bool

	onPong     func(echoedT int64)
	onFrameAck func(tMS int64)

	mu       sync.Mutex
	current  *CoachingFeedback
	history  []CoachingFeedback
	vdg      *VDGCoachingData
	status   *SessionStatusMessage
	events   chan Event
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. The audio player may be nil.
func NewDispatcher(logger *zap.Logger, audio AudioPlayer, voiceEnabled bool) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:       logger,
		audio:        audio,
		voiceEnabled: voiceEnabled,
		events:       make(chan Event, eventBufferSize),
		now:          time.Now,
	}
}

// SetBookkeeping registers the connection manager's pong and frame_ack hooks.
// Must be called before the read loop starts.
func (d *Dispatcher) SetBookkeeping(onPong func(echoedT int64), onFrameAck func(tMS int64)) {
	d.onPong = onPong
	d.onFrameAck = onFrameAck
}

// Events returns the subscription channel observed by the presentation layer.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// HandleRaw decodes and routes one inbound payload. Malformed JSON and
// unknown message types are logged and dropped; they never terminate the
// connection.
func (d *Dispatcher) HandleRaw(data []byte) {
	msg, err := DecodeInbound(data)
	if err != nil {
		d.logger.Warn("malformed coaching payload", zap.Error(err))
		return
	}
	d.Handle(msg)
}

// Handle routes one decoded inbound message.
func (d *Dispatcher) Handle(msg InboundMessage) {
	switch m := msg.(type) {
	case *PongMessage:
		if d.onPong != nil {
			d.onPong(m.T)
		}
	case *FrameAckMessage:
		if d.onFrameAck != nil {
			d.onFrameAck(m.TMS)
		}
	case *FeedbackMessage:
		d.handleFeedback(m)
	case *SessionStatusMessage:
		d.mu.Lock()
		d.status = m
		d.mu.Unlock()
		d.publish(Event{Kind: EventSessionStatus, SessionStatus: m})
	case *GraphicGuideMessage:
		d.publish(Event{Kind: EventGraphicGuide, GraphicGuide: m})
	case *TextCoachMessage:
		d.publish(Event{Kind: EventTextCoach, TextCoach: m})
	case *VDGCoachingData:
		// Replacement, not a merge.
		d.mu.Lock()
		d.vdg = m
		d.mu.Unlock()
		d.publish(Event{Kind: EventVDGData, VDGData: m})
	case *AdaptiveResponseMessage:
		d.publish(Event{Kind: EventAdaptiveResponse, AdaptiveResponse: m})
	case *AudioFeedbackMessage:
		if d.voiceEnabled && d.audio != nil && m.AudioB64 != "" {
			d.audio.Play(m.AudioB64)
		}
		// Forwarded regardless of whether playback occurred.
		d.publish(Event{Kind: EventAudioFeedback, AudioFeedback: m})
	case *SignalPromotionMessage:
		d.publish(Event{Kind: EventSignalPromotion, SignalPromotion: m})
	case *ErrorMessage:
		// Terminal for that exchange only, not for the connection.
		d.logger.Warn("coach error", zap.String("code", m.Code), zap.String("message", m.Message))
		d.publish(Event{Kind: EventCoachError, Error: m.Message})
	case *UnrecognizedMessage:
		d.logger.Debug("unrecognized coaching message", zap.String("type", m.TypeName))
		d.publish(Event{Kind: EventUnrecognized})
	}
}

func (d *Dispatcher) handleFeedback(m *FeedbackMessage) {
	fb := CoachingFeedback{
		Message:    m.Message,
		AudioB64:   m.AudioB64,
		RuleID:     m.RuleID,
		Priority:   m.Priority,
		ReceivedAt: d.now(),
	}
	d.mu.Lock()
	d.current = &fb
	d.history = append(d.history, fb)
	if len(d.history) > feedbackHistorySize {
		d.history = d.history[len(d.history)-feedbackHistorySize:]
	}
	d.mu.Unlock()

	if d.voiceEnabled && d.audio != nil && m.AudioB64 != "" {
		d.audio.Play(m.AudioB64)
	}
	d.publish(Event{Kind: EventFeedback, Feedback: &fb})
}

// publish delivers an event without blocking; a full buffer drops the event.
func (d *Dispatcher) publish(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Debug("event buffer full, dropping", zap.String("kind", string(ev.Kind)))
	}
}

// CurrentFeedback returns the most recent feedback, or nil.
func (d *Dispatcher) CurrentFeedback() *CoachingFeedback {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// FeedbackHistory returns a copy of the bounded feedback history, oldest
// first.
func (d *Dispatcher) FeedbackHistory() []CoachingFeedback {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]CoachingFeedback, len(d.history))
	copy(out, d.history)
	return out
}

// VDGData returns the cached shot/kick timing data, or nil.
func (d *Dispatcher) VDGData() *VDGCoachingData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vdg
}

// SessionStatus returns the latest session status, or nil.
func (d *Dispatcher) SessionStatus() *SessionStatusMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Reset clears cached feedback and timing data on session teardown.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
	d.history = nil
	d.vdg = nil
	d.status = nil
}
