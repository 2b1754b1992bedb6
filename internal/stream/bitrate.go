package stream

import "sync"

const (
	// latencyWindow is the number of recent round-trip samples considered.
	latencyWindow = 10
	// minSamples is the number of samples required before adapting.
	minSamples = 3

	// highLatencyMS triggers a bitrate reduction when the mean exceeds it.
	highLatencyMS = 500
	// lowLatencyMS allows a bitrate increase when the mean stays below it.
	lowLatencyMS = 200

	decreaseFactor = 0.7
	increaseFactor = 1.1

	// Bitrate is bounded to [initial*floorRatio, initial*ceilRatio].
	floorRatio = 0.25
	ceilRatio  = 2.0

	tierLowMax    = 500000
	tierMediumMax = 1500000
)

// BitrateController adjusts an effective encoding bitrate based on a rolling
// window of observed round-trip latencies. The bitrate never leaves
// [initial/4, initial*2].
type BitrateController struct {
	mu        sync.Mutex
	current   float64
	floor     float64
	ceil      float64
	latencies []int64
}

// NewBitrateController creates a controller starting at initialBitrate.
func NewBitrateController(initialBitrate int) *BitrateController {
	initial := float64(initialBitrate)
	return &BitrateController{
		current: initial,
		floor:   initial * floorRatio,
		ceil:    initial * ceilRatio,
	}
}

// RecordLatency feeds one round-trip latency sample in milliseconds and
// adapts the bitrate once at least three samples are present: a mean above
// 500ms reduces the bitrate by 30%, a mean below 200ms raises it by 10%,
// anything in between leaves it unchanged.
func (b *BitrateController) RecordLatency(latencyMS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latencies = append(b.latencies, latencyMS)
	if len(b.latencies) > latencyWindow {
		b.latencies = b.latencies[len(b.latencies)-latencyWindow:]
	}
	if len(b.latencies) < minSamples {
		return
	}

	var sum int64
	for _, l := range b.latencies {
		sum += l
	}
	mean := float64(sum) / float64(len(b.latencies))

	switch {
	case mean > highLatencyMS:
		b.current *= decreaseFactor
		if b.current < b.floor {
			b.current = b.floor
		}
	case mean < lowLatencyMS && b.current < b.ceil:
		b.current *= increaseFactor
		if b.current > b.ceil {
			b.current = b.ceil
		}
	}
}

// CurrentBitrate returns the effective bitrate in bits per second.
func (b *BitrateController) CurrentBitrate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.current)
}

// QualityTier maps the current bitrate to a coarse tier for the quality_hint
// annotation and UI display.
func (b *BitrateController) QualityTier() QualityTier {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.current < tierLowMax:
		return TierLow
	case b.current < tierMediumMax:
		return TierMedium
	default:
		return TierHigh
	}
}
