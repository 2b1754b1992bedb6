package coaching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundVariants(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType string
		check    func(t *testing.T, msg InboundMessage)
	}{
		{
			name:     "feedback",
			payload:  `{"type":"feedback","message":"chin up","rule_id":"hook_face","priority":"high"}`,
			wantType: TypeFeedback,
			check: func(t *testing.T, msg InboundMessage) {
				fb := msg.(*FeedbackMessage)
				assert.Equal(t, "chin up", fb.Message)
				assert.Equal(t, "hook_face", fb.RuleID)
			},
		},
		{
			name:     "pong echoes timestamp",
			payload:  `{"type":"pong","t":1712345678901}`,
			wantType: TypePong,
			check: func(t *testing.T, msg InboundMessage) {
				assert.Equal(t, int64(1712345678901), msg.(*PongMessage).T)
			},
		},
		{
			name:     "frame ack",
			payload:  `{"type":"frame_ack","t_ms":4500}`,
			wantType: TypeFrameAck,
			check: func(t *testing.T, msg InboundMessage) {
				assert.Equal(t, int64(4500), msg.(*FrameAckMessage).TMS)
			},
		},
		{
			name:     "status alias decodes to session status",
			payload:  `{"type":"status","tier":"degraded"}`,
			wantType: TypeStatus,
			check: func(t *testing.T, msg InboundMessage) {
				assert.Equal(t, "degraded", msg.(*SessionStatusMessage).Tier)
			},
		},
		{
			name:     "session status",
			payload:  `{"type":"session_status","status":"active"}`,
			wantType: TypeSessionStatus,
		},
		{
			name:     "graphic guide",
			payload:  `{"type":"graphic_guide","target_position":"upper_third","x":0.5,"y":0.33}`,
			wantType: TypeGraphicGuide,
			check: func(t *testing.T, msg InboundMessage) {
				gg := msg.(*GraphicGuideMessage)
				assert.Equal(t, "upper_third", gg.TargetPosition)
				assert.Equal(t, 0.33, gg.Y)
			},
		},
		{
			name:     "text coach",
			payload:  `{"type":"text_coach","message":"slow down","persona":"chill_guide"}`,
			wantType: TypeTextCoach,
		},
		{
			name:     "vdg coaching data",
			payload:  `{"type":"vdg_coaching_data","bpm":128,"shots":[{"t_ms":0,"label":"hook"}],"kicks":[{"t_ms":469}]}`,
			wantType: TypeVDGCoachingData,
			check: func(t *testing.T, msg InboundMessage) {
				vdg := msg.(*VDGCoachingData)
				assert.Equal(t, 128, vdg.BPM)
				require.Len(t, vdg.Shots, 1)
				require.Len(t, vdg.Kicks, 1)
			},
		},
		{
			name:     "adaptive response",
			payload:  `{"type":"adaptive_response","accepted":false,"alternative":"try a closeup"}`,
			wantType: TypeAdaptiveResp,
			check: func(t *testing.T, msg InboundMessage) {
				ar := msg.(*AdaptiveResponseMessage)
				assert.False(t, ar.Accepted)
				assert.Equal(t, "try a closeup", ar.Alternative)
			},
		},
		{
			name:     "audio feedback",
			payload:  `{"type":"audio_feedback","audio_b64":"QUJD"}`,
			wantType: TypeAudioFeedback,
		},
		{
			name:     "signal promotion",
			payload:  `{"type":"signal_promotion","signals":[{"rule_id":"gaze_return"}]}`,
			wantType: TypeSignalPromotion,
		},
		{
			name:     "error",
			payload:  `{"type":"error","code":"bad_frame","message":"frame decode failed"}`,
			wantType: TypeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.MessageType())
			if tt.check != nil {
				tt.check(t, msg)
			}
		})
	}
}

func TestDecodeInboundUnknownType(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"hologram_guide","x":1}`))
	require.NoError(t, err)
	un, ok := msg.(*UnrecognizedMessage)
	require.True(t, ok)
	assert.Equal(t, "hologram_guide", un.TypeName)
	assert.JSONEq(t, `{"type":"hologram_guide","x":1}`, string(un.Raw))
}

func TestDecodeInboundMalformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":`))
	require.Error(t, err)

	// Well-formed envelope, wrong field type for the variant.
	_, err = DecodeInbound([]byte(`{"type":"pong","t":"not-a-number"}`))
	require.Error(t, err)
}
