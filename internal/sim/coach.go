package sim

import (
	"strings"
	"sync"

	"github.com/reelcoach/companion/internal/coaching"
)

// feedbackEvery is how many acknowledged frames pass between scripted
// coaching messages.
const feedbackEvery = 4

// ScriptedCoach produces deterministic coaching traffic so client sessions
// can be exercised without a model in the loop. Responses cycle through the
// inbound message catalogue: feedback, graphic_guide, text_coach,
// vdg_coaching_data, signal_promotion, session_status.
type ScriptedCoach struct {
	mu      sync.Mutex
	persona string
	frames  int64
	step    int
}

// NewScriptedCoach creates a coach with a persona flavoring text messages.
func NewScriptedCoach(persona string) *ScriptedCoach {
	if persona == "" {
		persona = "chill_guide"
	}
	return &ScriptedCoach{persona: persona}
}

// scriptLines are cycled for feedback messages, keyed loosely to the early
// phases of a short-form take.
var scriptLines = []struct {
	message  string
	ruleID   string
	priority string
}{
	{"Face into frame now, lock the hook.", "hook_face_first", "critical"},
	{"Hold your midline steady.", "steady_midline", "high"},
	{"Cut to the reveal, make it land.", "reveal_cut", "high"},
	{"Close it out, point at the caption.", "cta_close", "medium"},
}

// OnFrame records one accepted video frame and returns any scripted messages
// due at this point, in send order. Most frames produce nothing.
func (c *ScriptedCoach) OnFrame(frame *coaching.VideoFrameMessage) []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames++
	if c.frames%feedbackEvery != 0 {
		return nil
	}

	var out []interface{}
	switch c.step % 6 {
	case 0:
		line := scriptLines[c.step/6%len(scriptLines)]
		out = append(out, &coaching.FeedbackMessage{
			Type:     coaching.TypeFeedback,
			Message:  c.flavored(line.message),
			RuleID:   line.ruleID,
			Priority: line.priority,
		})
	case 1:
		out = append(out, &coaching.GraphicGuideMessage{
			Type:           coaching.TypeGraphicGuide,
			TargetPosition: "upper_third",
			GridType:       "rule_of_thirds",
			ActionIcon:     "face",
			Message:        "Eyes on the top line",
			DurationMS:     1500,
			Priority:       "high",
			X:              0.5,
			Y:              0.33,
		})
	case 2:
		out = append(out, &coaching.TextCoachMessage{
			Type:       coaching.TypeTextCoach,
			Message:    c.flavored("Energy up, you are on pace."),
			Persona:    c.persona,
			Priority:   "medium",
			DurationMS: 2000,
		})
	case 3:
		out = append(out, &coaching.VDGCoachingData{
			Type: coaching.TypeVDGCoachingData,
			BPM:  128,
			Shots: []coaching.VDGShot{
				{TMS: 0, Label: "hook", Icon: "face"},
				{TMS: 3000, Label: "build", Icon: "hand"},
				{TMS: 8000, Label: "reveal", Icon: "sparkle"},
			},
			Kicks: []coaching.VDGKick{{TMS: 469}, {TMS: 938}, {TMS: 1406}},
		})
	case 4:
		out = append(out, &coaching.SignalPromotionMessage{
			Type: coaching.TypeSignalPromotion,
			Signals: []coaching.PromotedSignal{
				{RuleID: "gaze_return", Domain: "framing", Description: "return gaze to lens after prop glance"},
			},
		})
	case 5:
		out = append(out, &coaching.SessionStatusMessage{
			Type:   coaching.TypeSessionStatus,
			Status: "active",
			Tier:   "full",
		})
	}
	c.step++
	return out
}

// OnUserFeedback answers creator feedback. Messages containing "skip" or
// "no" are declined with an alternative; everything else is accepted.
func (c *ScriptedCoach) OnUserFeedback(fb *coaching.UserFeedbackMessage) *coaching.AdaptiveResponseMessage {
	text := strings.ToLower(fb.Text)
	if strings.Contains(text, "skip") || strings.Contains(text, "no ") || text == "no" {
		return &coaching.AdaptiveResponseMessage{
			Type:        coaching.TypeAdaptiveResp,
			Accepted:    false,
			Alternative: "Keep the hook but drop the prop, go straight to camera.",
			Reason:      "hook beat is load-bearing for this pattern",
		}
	}
	return &coaching.AdaptiveResponseMessage{
		Type:     coaching.TypeAdaptiveResp,
		Accepted: true,
		Reason:   "adjusted pacing for the rest of the take",
	}
}

// FrameCount returns the number of frames seen so far.
func (c *ScriptedCoach) FrameCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *ScriptedCoach) flavored(msg string) string {
	if c.persona == "hype_coach" || c.persona == "drill_sergeant" {
		return strings.TrimSuffix(msg, ".") + "!"
	}
	return msg
}
