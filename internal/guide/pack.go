// Package guide turns a backend-authored director pack into a flat,
// time-ordered set of guide steps and answers real-time queries against
// elapsed recording time.
package guide

// DirectorPack carries the backend-authored coaching rules and time-anchored
// checkpoints for a viral pattern. Immutable once loaded.
type DirectorPack struct {
	PatternID     string         `json:"pattern_id"`
	Goal          string         `json:"goal"`
	Target        PackTarget     `json:"target"`
	DNAInvariants []DNAInvariant `json:"dna_invariants"`
	Checkpoints   []Checkpoint   `json:"checkpoints"`
	MutationSlots []MutationSlot `json:"mutation_slots"`
	Policy        PackPolicy     `json:"policy"`
}

// PackTarget carries the pack's target recording duration.
type PackTarget struct {
	DurationTargetSec float64 `json:"duration_target_sec"`
}

// PackPolicy carries coaching cadence policy.
type PackPolicy struct {
	CooldownSec float64 `json:"cooldown_sec"`
}

// DNAInvariant is one coaching rule: what must hold, how important it is, and
// the per-tone coach line templates used as step action text.
type DNAInvariant struct {
	RuleID     string            `json:"rule_id"`
	Domain     string            `json:"domain"`
	Priority   string            `json:"priority"` // critical | high | medium | low
	CheckHint  string            `json:"check_hint"`
	CoachLines map[string]string `json:"coach_lines"` // persona -> template, "neutral" fallback
}

// Checkpoint is a fractional time window within the pack naming which rules
// are active during that window. TWindow values are fractions in [0,1].
type Checkpoint struct {
	CheckpointID string     `json:"checkpoint_id"`
	TWindow      [2]float64 `json:"t_window"`
	ActiveRules  []string   `json:"active_rules"`
	Note         string     `json:"note,omitempty"`
}

// MutationSlot names a pack element the creator may vary without breaking the
// pattern's DNA.
type MutationSlot struct {
	SlotID      string `json:"slot_id"`
	Description string `json:"description"`
}

// patternDetail is the outlier item response; exactly one of the coaching
// sources is typically present, consumed in priority order by the loader.
type patternDetail struct {
	Title         string          `json:"title"`
	DirectorPack  *DirectorPack   `json:"director_pack"`
	Analysis      *legacyAnalysis `json:"analysis"`
	ShootingGuide *shootingGuide  `json:"shooting_guide"`
}

// legacyAnalysis is the pre-director-pack checkpoint format.
type legacyAnalysis struct {
	Checkpoints []legacyCheckpoint `json:"checkpoints"`
}

type legacyCheckpoint struct {
	TimeSec float64 `json:"time_sec"`
	Label   string  `json:"label"`
	Hint    string  `json:"hint"`
}

// shootingGuide is the legacy kick-timing format.
type shootingGuide struct {
	Title       string  `json:"title"`
	BPM         int     `json:"bpm"`
	DurationSec float64 `json:"duration_sec"`
	Kicks       []kick  `json:"kicks"`
}

type kick struct {
	TimeSec float64 `json:"time_sec"`
	Action  string  `json:"action"`
	Icon    string  `json:"icon"`
}
