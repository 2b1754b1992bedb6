package guide

import (
	"sort"
	"sync"
)

// DefaultPreAlertSec is the lead time for "coming up" pre-alerts.
const DefaultPreAlertSec = 2.0

// GuideStep is a resolved, absolute-time instruction shown during recording.
type GuideStep struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Action   string  `json:"action"`
	Icon     string  `json:"icon"`
	Priority string  `json:"priority"`
	RuleID   string  `json:"rule_id"`
	Reason   string  `json:"reason"`
}

// Contains reports whether elapsed time t falls inside the step's window.
func (s GuideStep) Contains(t float64) bool {
	return s.StartSec <= t && t < s.EndSec
}

// GuideData bundles everything the overlay needs for one pattern. IsLive is
// true only when the steps were derived from real pack or checkpoint data.
type GuideData struct {
	Title       string      `json:"title"`
	BPM         int         `json:"bpm"`
	DurationSec float64     `json:"duration_sec"`
	Steps       []GuideStep `json:"steps"`
	Tips        []string    `json:"tips"`
	IsLive      bool        `json:"is_live"`
}

// Engine answers "what is active now / what is coming next" queries against
// an elapsed-recording-time clock. Steps are sorted by start time at load;
// when windows overlap, the first match wins.
type Engine struct {
	mu   sync.RWMutex
	data *GuideData
}

// NewEngine creates an engine seeded with the static fallback guide, so
// queries are answerable before (or without) a successful load.
func NewEngine() *Engine {
	return &Engine{data: FallbackGuide()}
}

// SetGuide replaces the engine's guide data, sorting steps by start time.
func (e *Engine) SetGuide(data *GuideData) {
	if data == nil {
		data = FallbackGuide()
	}
	sort.SliceStable(data.Steps, func(i, j int) bool {
		return data.Steps[i].StartSec < data.Steps[j].StartSec
	})
	e.mu.Lock()
	e.data = data
	e.mu.Unlock()
}

// Guide returns the current guide data.
func (e *Engine) Guide() *GuideData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.data
}

// CurrentStep returns the first step whose window contains elapsed time t,
// or nil when no step is active.
func (e *Engine) CurrentStep(t float64) *GuideStep {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.data.Steps {
		if e.data.Steps[i].Contains(t) {
			s := e.data.Steps[i]
			return &s
		}
	}
	return nil
}

// UpcomingStep returns the first step starting after t and within preAlertSec
// of it, or nil. Pass DefaultPreAlertSec for the standard 2s pre-alert.
func (e *Engine) UpcomingStep(t, preAlertSec float64) *GuideStep {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.data.Steps {
		start := e.data.Steps[i].StartSec
		if start > t && start-t <= preAlertSec {
			s := e.data.Steps[i]
			return &s
		}
	}
	return nil
}
