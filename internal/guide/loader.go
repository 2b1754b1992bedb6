package guide

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxRetryCount bounds manual guide-load retries per session.
	MaxRetryCount = 3

	defaultLoadTimeout = 10 * time.Second

	// maxInvariantSteps caps the steps derived directly from dna_invariants
	// when a pack has no usable checkpoints.
	maxInvariantSteps = 5
)

// Load failure kinds, used to pick the user-visible message.
const (
	LoadFailureOffline = "offline"
	LoadFailureTimeout = "timeout"
	LoadFailureGeneric = "failed"
)

// LoadError classifies a guide-load failure. The load still degrades to the
// fallback guide; the error only drives the user-visible message.
type LoadError struct {
	Kind string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("guide load %s: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// UserMessage returns the message shown to the creator.
func (e *LoadError) UserMessage() string {
	switch e.Kind {
	case LoadFailureOffline:
		return "You're offline. Showing the basic guide."
	case LoadFailureTimeout:
		return "The guide took too long to load. Showing the basic guide."
	default:
		return "Couldn't load the guide. Showing the basic guide."
	}
}

// Loader fetches a pattern's coaching data and derives guide steps from it,
// degrading through legacy formats down to the static fallback.
type Loader struct {
	apiBase string
	persona string
	client  *http.Client
	logger  *zap.Logger
}

// NewLoader creates a loader against the outlier API base URL. The persona
// selects which coach line template becomes step action text.
func NewLoader(apiBase, persona string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		apiBase: apiBase,
		persona: persona,
		client:  &http.Client{Timeout: defaultLoadTimeout},
		logger:  logger,
	}
}

// Load fetches the pattern detail and derives guide data in priority order:
// director pack checkpoints, pack invariants, legacy analysis checkpoints,
// legacy shooting-guide kicks, static fallback. Network failures still return
// the fallback guide, alongside a *LoadError for the status line.
func (l *Loader) Load(ctx context.Context, patternID string) (*GuideData, error) {
	url := fmt.Sprintf("%s/outliers/items/%s", l.apiBase, patternID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FallbackGuide(), &LoadError{Kind: LoadFailureGeneric, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		loadErr := &LoadError{Kind: classifyNetErr(err), Err: err}
		l.logger.Warn("guide load failed", zap.String("pattern_id", patternID), zap.String("kind", loadErr.Kind), zap.Error(err))
		return FallbackGuide(), loadErr
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		l.logger.Info("pattern has no coaching data", zap.String("pattern_id", patternID))
		return FallbackGuide(), nil
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("pattern detail status %d", resp.StatusCode)
		return FallbackGuide(), &LoadError{Kind: LoadFailureGeneric, Err: err}
	}

	var detail patternDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return FallbackGuide(), &LoadError{Kind: LoadFailureGeneric, Err: fmt.Errorf("decode pattern detail: %w", err)}
	}

	if data := l.derive(&detail); data != nil {
		return data, nil
	}
	return FallbackGuide(), nil
}

// derive walks the pattern detail's coaching sources in priority order and
// returns nil when none of them produced a step.
func (l *Loader) derive(detail *patternDetail) *GuideData {
	if detail.DirectorPack != nil {
		if data := buildFromPack(detail.Title, detail.DirectorPack, l.persona); data != nil {
			return data
		}
	}
	if detail.Analysis != nil && len(detail.Analysis.Checkpoints) > 0 {
		if data := buildFromAnalysis(detail.Title, detail.Analysis); data != nil {
			return data
		}
	}
	if detail.ShootingGuide != nil && len(detail.ShootingGuide.Kicks) > 0 {
		if data := buildFromKicks(detail.Title, detail.ShootingGuide); data != nil {
			return data
		}
	}
	return nil
}

// buildFromPack flattens checkpoints into absolute-time steps: each fractional
// t_window is scaled by the pack's target duration, and every active rule
// resolves against dna_invariants. When no checkpoint produced a step, the
// first five invariants span the whole duration instead.
func buildFromPack(title string, pack *DirectorPack, persona string) *GuideData {
	dur := pack.Target.DurationTargetSec
	if dur <= 0 {
		dur = fallbackDurationSec
	}

	invByID := make(map[string]DNAInvariant, len(pack.DNAInvariants))
	for _, inv := range pack.DNAInvariants {
		invByID[inv.RuleID] = inv
	}

	var steps []GuideStep
	for _, cp := range pack.Checkpoints {
		for _, ruleID := range cp.ActiveRules {
			inv, ok := invByID[ruleID]
			if !ok {
				continue
			}
			steps = append(steps, GuideStep{
				StartSec: cp.TWindow[0] * dur,
				EndSec:   cp.TWindow[1] * dur,
				Action:   actionFor(inv, persona),
				Icon:     iconFor(inv),
				Priority: inv.Priority,
				RuleID:   inv.RuleID,
				Reason:   reasonFor(inv),
			})
		}
	}

	if len(steps) == 0 {
		for i, inv := range pack.DNAInvariants {
			if i >= maxInvariantSteps {
				break
			}
			steps = append(steps, GuideStep{
				StartSec: 0,
				EndSec:   dur,
				Action:   actionFor(inv, persona),
				Icon:     iconFor(inv),
				Priority: inv.Priority,
				RuleID:   inv.RuleID,
				Reason:   reasonFor(inv),
			})
		}
	}
	if len(steps) == 0 {
		return nil
	}

	var tips []string
	if pack.Goal != "" {
		tips = append(tips, pack.Goal)
	}
	for _, slot := range pack.MutationSlots {
		if slot.Description != "" {
			tips = append(tips, slot.Description)
		}
	}

	return &GuideData{
		Title:       title,
		DurationSec: dur,
		Steps:       steps,
		Tips:        tips,
		IsLive:      true,
	}
}

// buildFromAnalysis derives best-effort steps from legacy analysis
// checkpoints: each step runs from its checkpoint to the next one.
func buildFromAnalysis(title string, analysis *legacyAnalysis) *GuideData {
	cps := analysis.Checkpoints
	var steps []GuideStep
	var dur float64
	for i, cp := range cps {
		end := cp.TimeSec + 2
		if i+1 < len(cps) {
			end = cps[i+1].TimeSec
		}
		action := cp.Label
		if action == "" {
			action = cp.Hint
		}
		if action == "" {
			continue
		}
		steps = append(steps, GuideStep{
			StartSec: cp.TimeSec,
			EndSec:   end,
			Action:   action,
			Icon:     "film",
			Priority: "medium",
			RuleID:   fmt.Sprintf("analysis_%d", i),
			Reason:   "From this pattern's analysis",
		})
		if end > dur {
			dur = end
		}
	}
	if len(steps) == 0 {
		return nil
	}
	return &GuideData{Title: title, DurationSec: dur, Steps: steps, IsLive: true}
}

// buildFromKicks derives one step per shooting-guide kick.
func buildFromKicks(title string, sg *shootingGuide) *GuideData {
	var steps []GuideStep
	dur := sg.DurationSec
	for i, k := range sg.Kicks {
		end := k.TimeSec + 1
		if i+1 < len(sg.Kicks) {
			end = sg.Kicks[i+1].TimeSec
		}
		icon := k.Icon
		if icon == "" {
			icon = "music"
		}
		steps = append(steps, GuideStep{
			StartSec: k.TimeSec,
			EndSec:   end,
			Action:   k.Action,
			Icon:     icon,
			Priority: "medium",
			RuleID:   fmt.Sprintf("kick_%d", i),
			Reason:   "Timed to the track's kicks",
		})
		if end > dur {
			dur = end
		}
	}
	if len(steps) == 0 {
		return nil
	}
	guideTitle := sg.Title
	if guideTitle == "" {
		guideTitle = title
	}
	return &GuideData{Title: guideTitle, BPM: sg.BPM, DurationSec: dur, Steps: steps, IsLive: true}
}

// actionFor resolves step action text: the persona coach line, then the
// neutral line, then the check hint, then the raw rule id.
func actionFor(inv DNAInvariant, persona string) string {
	if line, ok := inv.CoachLines[persona]; ok && line != "" {
		return line
	}
	if line, ok := inv.CoachLines["neutral"]; ok && line != "" {
		return line
	}
	if inv.CheckHint != "" {
		return inv.CheckHint
	}
	return inv.RuleID
}

// classifyNetErr distinguishes offline and timeout failures for messaging.
func classifyNetErr(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return LoadFailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return LoadFailureTimeout
		}
		return LoadFailureOffline
	}
	return LoadFailureGeneric
}
