package guide

// fallbackDurationSec is the target duration assumed when a pack omits one.
const fallbackDurationSec = 15

// FallbackGuide returns the hard-coded guide describing a generic 4-step
// 15-second short-form structure. Used when no coaching data is available;
// IsLive is always false.
func FallbackGuide() *GuideData {
	return &GuideData{
		Title:       "Short-form basics",
		BPM:         0,
		DurationSec: fallbackDurationSec,
		Steps: []GuideStep{
			{StartSec: 0, EndSec: 3, Action: "Hook the viewer in the first seconds", Icon: "flash", Priority: "critical", RuleID: "fallback_hook", Reason: "First seconds decide whether viewers stay"},
			{StartSec: 3, EndSec: 8, Action: "Deliver the core of your idea", Icon: "film", Priority: "high", RuleID: "fallback_body", Reason: "Keeps the promise the hook made"},
			{StartSec: 8, EndSec: 12, Action: "Add a twist or payoff", Icon: "sparkles", Priority: "medium", RuleID: "fallback_payoff", Reason: "A payoff rewards watching to the end"},
			{StartSec: 12, EndSec: 15, Action: "Close with a call to action", Icon: "megaphone", Priority: "medium", RuleID: "fallback_cta", Reason: "A clear ask lifts engagement"},
		},
		Tips: []string{
			"Keep the camera steady and fill the frame",
			"Record in one take, trim later",
			"Good light beats good gear",
		},
		IsLive: false,
	}
}

// domainReasons maps an invariant domain to the human-readable reason shown
// alongside a step.
var domainReasons = map[string]string{
	"hook":        "First seconds decide whether viewers stay",
	"composition": "Strong framing keeps the subject readable",
	"motion":      "Deliberate movement holds attention",
	"audio":       "Clean audio is the floor for retention",
	"pacing":      "Pace changes reset viewer attention",
	"cta":         "A clear ask lifts engagement",
	"lighting":    "Good light beats good gear",
}

// priorityReasons is the fallback when the domain is unknown.
var priorityReasons = map[string]string{
	"critical": "Skipping this usually kills the video",
	"high":     "This is what the pattern's top performers share",
	"medium":   "Worth getting right when you can",
	"low":      "A polish detail, not a dealbreaker",
}

// domainIcons maps an invariant domain to the overlay icon name.
var domainIcons = map[string]string{
	"hook":        "flash",
	"composition": "grid",
	"motion":      "move",
	"audio":       "mic",
	"pacing":      "timer",
	"cta":         "megaphone",
	"lighting":    "sun",
}

func reasonFor(inv DNAInvariant) string {
	if r, ok := domainReasons[inv.Domain]; ok {
		return r
	}
	if r, ok := priorityReasons[inv.Priority]; ok {
		return r
	}
	return "Part of this pattern's DNA"
}

func iconFor(inv DNAInvariant) string {
	if icon, ok := domainIcons[inv.Domain]; ok {
		return icon
	}
	return "film"
}
