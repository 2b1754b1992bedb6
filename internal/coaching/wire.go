// Package coaching owns the live coaching channel for one recording session:
// connection lifecycle, heartbeat, reconnection, outbound frame submission,
// and typed dispatch of the multiplexed inbound message stream.
package coaching

import (
	"encoding/json"
	"fmt"
)

// Outbound message types.
const (
	TypeConfig       = "config"
	TypePing         = "ping"
	TypeControl      = "control"
	TypeVideoFrame   = "video_frame"
	TypeUserFeedback = "user_feedback"
)

// Inbound message types.
const (
	TypeFeedback        = "feedback"
	TypePong            = "pong"
	TypeFrameAck        = "frame_ack"
	TypeStatus          = "status"
	TypeSessionStatus   = "session_status"
	TypeGraphicGuide    = "graphic_guide"
	TypeTextCoach       = "text_coach"
	TypeVDGCoachingData = "vdg_coaching_data"
	TypeAdaptiveResp    = "adaptive_response"
	TypeAudioFeedback   = "audio_feedback"
	TypeSignalPromotion = "signal_promotion"
	TypeError           = "error"
)

// Control actions.
const (
	ControlStart = "start"
	ControlStop  = "stop"
	ControlPause = "pause"
)

// ConfigMessage is the initial handshake sent right after the channel opens.
type ConfigMessage struct {
	Type      string        `json:"type"`
	Platform  string        `json:"platform"`
	Streaming StreamingInfo `json:"streaming"`
}

// StreamingInfo describes the outbound frame stream in the config handshake.
type StreamingInfo struct {
	Codec      string `json:"codec"`
	FPS        int    `json:"fps"`
	Resolution string `json:"resolution"`
}

// PingMessage is the client-initiated heartbeat carrying a client timestamp.
type PingMessage struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

// ControlMessage carries session control commands.
type ControlMessage struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	T      int64  `json:"t"`
}

// VideoFrameMessage carries one throttled, quality-annotated frame sample.
// TMS doubles as the frame_ack correlation id.
type VideoFrameMessage struct {
	Type        string `json:"type"`
	FrameB64    string `json:"frame_b64"`
	Codec       string `json:"codec"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	TMS         int64  `json:"t_ms"`
	QualityHint string `json:"quality_hint,omitempty"`
}

// UserFeedbackMessage carries free-text feedback from the creator to the
// coach, answered by an adaptive_response.
type UserFeedbackMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// InboundMessage is one decoded message from the coaching backend. Unknown
// types decode to *UnrecognizedMessage, never an error.
type InboundMessage interface {
	// MessageType returns the wire discriminator.
	MessageType() string
}

// FeedbackMessage is a coaching feedback line, optionally with audio.
type FeedbackMessage struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	AudioB64 string `json:"audio_b64,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
	Priority string `json:"priority,omitempty"`
}

func (m *FeedbackMessage) MessageType() string { return TypeFeedback }

// PongMessage echoes the client timestamp from the matching ping.
type PongMessage struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

func (m *PongMessage) MessageType() string { return TypePong }

// FrameAckMessage acknowledges a frame by its t_ms correlation id.
type FrameAckMessage struct {
	Type string `json:"type"`
	TMS  int64  `json:"t_ms"`
}

func (m *FrameAckMessage) MessageType() string { return TypeFrameAck }

// SessionStatusMessage updates session-level metadata such as a coaching
// tier downgrade. Sent as either "status" or "session_status".
type SessionStatusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	Tier   string `json:"tier,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (m *SessionStatusMessage) MessageType() string { return m.Type }

// GraphicGuideMessage drives the graphic overlay.
type GraphicGuideMessage struct {
	Type           string  `json:"type"`
	TargetPosition string  `json:"target_position,omitempty"`
	GridType       string  `json:"grid_type,omitempty"`
	ActionIcon     string  `json:"action_icon,omitempty"`
	Message        string  `json:"message,omitempty"`
	DurationMS     int     `json:"duration_ms,omitempty"`
	Priority       string  `json:"priority,omitempty"`
	X              float64 `json:"x,omitempty"`
	Y              float64 `json:"y,omitempty"`
}

func (m *GraphicGuideMessage) MessageType() string { return TypeGraphicGuide }

// TextCoachMessage drives the text bubble.
type TextCoachMessage struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Persona    string `json:"persona,omitempty"`
	Priority   string `json:"priority,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

func (m *TextCoachMessage) MessageType() string { return TypeTextCoach }

// VDGCoachingData replaces the session's cached shot and kick timing data.
// It is a replacement, never a merge.
type VDGCoachingData struct {
	Type  string    `json:"type"`
	BPM   int       `json:"bpm,omitempty"`
	Shots []VDGShot `json:"shots,omitempty"`
	Kicks []VDGKick `json:"kicks,omitempty"`
}

func (m *VDGCoachingData) MessageType() string { return TypeVDGCoachingData }

// VDGShot is one planned shot in the timing data.
type VDGShot struct {
	TMS   int64  `json:"t_ms"`
	Label string `json:"label,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// VDGKick is one beat anchor in the timing data.
type VDGKick struct {
	TMS int64 `json:"t_ms"`
}

// AdaptiveResponseMessage answers a previously sent user_feedback message.
type AdaptiveResponseMessage struct {
	Type        string `json:"type"`
	Accepted    bool   `json:"accepted"`
	Alternative string `json:"alternative,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (m *AdaptiveResponseMessage) MessageType() string { return TypeAdaptiveResp }

// AudioFeedbackMessage carries spoken coaching audio.
type AudioFeedbackMessage struct {
	Type     string `json:"type"`
	AudioB64 string `json:"audio_b64,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (m *AudioFeedbackMessage) MessageType() string { return TypeAudioFeedback }

// SignalPromotionMessage informs that the backend promoted newly learned
// coaching signals.
type SignalPromotionMessage struct {
	Type    string           `json:"type"`
	Signals []PromotedSignal `json:"signals"`
}

func (m *SignalPromotionMessage) MessageType() string { return TypeSignalPromotion }

// PromotedSignal is one newly promoted coaching signal.
type PromotedSignal struct {
	RuleID      string `json:"rule_id"`
	Domain      string `json:"domain,omitempty"`
	Description string `json:"description,omitempty"`
}

// ErrorMessage reports a backend error for one message exchange. Terminal for
// that exchange only, never for the connection.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (m *ErrorMessage) MessageType() string { return TypeError }

// UnrecognizedMessage preserves a payload with an unknown type discriminator.
type UnrecognizedMessage struct {
	TypeName string
	Raw      json.RawMessage
}

func (m *UnrecognizedMessage) MessageType() string { return m.TypeName }

// DecodeInbound parses one inbound payload into its tagged variant. Unknown
// discriminators yield *UnrecognizedMessage; only malformed JSON errors.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg InboundMessage
	switch envelope.Type {
	case TypeFeedback:
		msg = &FeedbackMessage{}
	case TypePong:
		msg = &PongMessage{}
	case TypeFrameAck:
		msg = &FrameAckMessage{}
	case TypeStatus, TypeSessionStatus:
		msg = &SessionStatusMessage{}
	case TypeGraphicGuide:
		msg = &GraphicGuideMessage{}
	case TypeTextCoach:
		msg = &TextCoachMessage{}
	case TypeVDGCoachingData:
		msg = &VDGCoachingData{}
	case TypeAdaptiveResp:
		msg = &AdaptiveResponseMessage{}
	case TypeAudioFeedback:
		msg = &AudioFeedbackMessage{}
	case TypeSignalPromotion:
		msg = &SignalPromotionMessage{}
	case TypeError:
		msg = &ErrorMessage{}
	default:
		return &UnrecognizedMessage{TypeName: envelope.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
	}
	return msg, nil
}
