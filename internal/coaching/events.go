package coaching

import "time"

// EventKind identifies what a session event carries.
type EventKind string

const (
	EventFeedback         EventKind = "feedback"
	EventGraphicGuide     EventKind = "graphic_guide"
	EventTextCoach        EventKind = "text_coach"
	EventVDGData          EventKind = "vdg_data"
	EventAdaptiveResponse EventKind = "adaptive_response"
	EventAudioFeedback    EventKind = "audio_feedback"
	EventSignalPromotion  EventKind = "signal_promotion"
	EventSessionStatus    EventKind = "session_status"
	EventStateChange      EventKind = "state_change"
	EventCoachError       EventKind = "coach_error"
	EventTerminal         EventKind = "terminal"
	EventUnrecognized     EventKind = "unrecognized"
)

// Event is one observation delivered to the presentation layer. Exactly the
// field matching Kind is set.
type Event struct {
	Kind EventKind

	Feedback         *CoachingFeedback
	GraphicGuide     *GraphicGuideMessage
	TextCoach        *TextCoachMessage
	VDGData          *VDGCoachingData
	AdaptiveResponse *AdaptiveResponseMessage
	AudioFeedback    *AudioFeedbackMessage
	SignalPromotion  *SignalPromotionMessage
	SessionStatus    *SessionStatusMessage

	State ConnectionState // EventStateChange
	Error string          // EventCoachError, EventTerminal
}

// CoachingFeedback is one received feedback record, kept as current feedback
// and in the bounded history.
type CoachingFeedback struct {
	Message    string
	AudioB64   string
	RuleID     string
	Priority   string
	ReceivedAt time.Time
}
