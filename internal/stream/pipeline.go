package stream

import (
	"sync/atomic"
	"time"
)

// Pipeline composes the throttler and the bitrate controller to turn a raw
// captured frame into a bounded, rate- and quality-adapted outbound sample.
type Pipeline struct {
	cfg      Config
	throttle *Throttler
	bitrate  *BitrateController
	sent     atomic.Int64
	start    time.Time
	now      func() time.Time
}

// NewPipeline creates a pipeline for one recording session.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		throttle: NewThrottler(cfg.TargetFPS),
		bitrate:  NewBitrateController(cfg.InitialBitrate),
		start:    time.Now(),
		now:      time.Now,
	}
}

// ProcessFrame returns nil when the throttler rejects the frame; otherwise it
// clamps dimensions to the configured maxima, stamps a monotonic millisecond
// timestamp, attaches the current quality tier, and returns the sample.
func (p *Pipeline) ProcessFrame(payload []byte, width, height int) *FrameSample {
	now := p.now()
	if !p.throttle.ShouldSend(now) {
		return nil
	}
	if p.cfg.MaxWidth > 0 && width > p.cfg.MaxWidth {
		width = p.cfg.MaxWidth
	}
	if p.cfg.MaxHeight > 0 && height > p.cfg.MaxHeight {
		height = p.cfg.MaxHeight
	}
	p.sent.Add(1)
	return &FrameSample{
		Payload:     payload,
		Codec:       p.cfg.Codec,
		Width:       width,
		Height:      height,
		TimestampMS: now.Sub(p.start).Milliseconds(),
		QualityHint: p.bitrate.QualityTier(),
	}
}

// RecordLatency feeds a frame round-trip latency into the bitrate controller
// when adaptive streaming is enabled.
func (p *Pipeline) RecordLatency(latencyMS int64) {
	if !p.cfg.AdaptiveBitrate {
		return
	}
	p.bitrate.RecordLatency(latencyMS)
}

// Config returns the immutable session streaming configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Sent returns the number of frames that survived throttling.
func (p *Pipeline) Sent() int64 { return p.sent.Load() }

// Dropped returns the number of frames rejected by the throttler.
func (p *Pipeline) Dropped() int64 { return p.throttle.Dropped() }

// CurrentBitrate returns the effective encoding bitrate.
func (p *Pipeline) CurrentBitrate() int { return p.bitrate.CurrentBitrate() }

// QualityTier returns the current quality tier.
func (p *Pipeline) QualityTier() QualityTier { return p.bitrate.QualityTier() }
