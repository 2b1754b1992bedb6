// Package stream converts captured camera frames into a bounded, rate- and
// quality-adapted stream of outbound samples. Throttling bounds how often
// frames are sent; bitrate adaptation bounds how large each frame's encoding
// should be. Both react to the same round-trip latency signal but
// independently and at different sensitivities.
package stream

// Codec identifies the frame encoding carried on the wire.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecJPEG Codec = "jpeg"
)

// Config is the immutable per-session streaming configuration. It is chosen
// once at session start and never mutated; the bitrate controller derives its
// own mutable state from it.
type Config struct {
	TargetFPS       int
	Codec           Codec
	InitialBitrate  int // bits per second
	MaxWidth        int
	MaxHeight       int
	AdaptiveBitrate bool
}

// DefaultConfig returns the platform default streaming configuration.
func DefaultConfig() Config {
	return Config{
		TargetFPS:       2,
		Codec:           CodecJPEG,
		InitialBitrate:  1000000,
		MaxWidth:        720,
		MaxHeight:       1280,
		AdaptiveBitrate: true,
	}
}

// QualityTier buckets the current bitrate for the quality_hint annotation and
// UI display. It does not itself change encoding parameters.
type QualityTier string

const (
	TierLow    QualityTier = "low"
	TierMedium QualityTier = "medium"
	TierHigh   QualityTier = "high"
)

// FrameSample is one frame that survived throttling. The timestamp is
// monotonic milliseconds and doubles as the frame_ack correlation id.
type FrameSample struct {
	Payload     []byte
	Codec       Codec
	Width       int
	Height      int
	TimestampMS int64
	QualityHint QualityTier
}
