package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(cfg Config) (*Pipeline, func(d time.Duration)) {
	p := NewPipeline(cfg)
	clock := p.start
	p.now = func() time.Time { return clock }
	return p, func(d time.Duration) { clock = clock.Add(d) }
}

func TestPipelineThrottlesAndStamps(t *testing.T) {
	p, advance := newTestPipeline(DefaultConfig()) // 2fps
	payload := []byte("frame")

	advance(time.Second)
	sample := p.ProcessFrame(payload, 720, 1280)
	require.NotNil(t, sample)
	assert.Equal(t, int64(1000), sample.TimestampMS)
	assert.Equal(t, CodecJPEG, sample.Codec)

	advance(100 * time.Millisecond)
	assert.Nil(t, p.ProcessFrame(payload, 720, 1280))

	advance(400 * time.Millisecond)
	sample = p.ProcessFrame(payload, 720, 1280)
	require.NotNil(t, sample)
	assert.Equal(t, int64(1500), sample.TimestampMS)

	assert.Equal(t, int64(2), p.Sent())
	assert.Equal(t, int64(1), p.Dropped())
}

func TestPipelineClampsDimensions(t *testing.T) {
	p, advance := newTestPipeline(DefaultConfig())
	advance(time.Second)

	sample := p.ProcessFrame([]byte("frame"), 1080, 1920)
	require.NotNil(t, sample)
	assert.Equal(t, 720, sample.Width)
	assert.Equal(t, 1280, sample.Height)
}

func TestPipelineKeepsSmallDimensions(t *testing.T) {
	p, advance := newTestPipeline(DefaultConfig())
	advance(time.Second)

	sample := p.ProcessFrame([]byte("frame"), 360, 640)
	require.NotNil(t, sample)
	assert.Equal(t, 360, sample.Width)
	assert.Equal(t, 640, sample.Height)
}

func TestPipelineQualityHintTracksBitrate(t *testing.T) {
	p, advance := newTestPipeline(DefaultConfig())
	advance(time.Second)

	sample := p.ProcessFrame([]byte("frame"), 720, 1280)
	require.NotNil(t, sample)
	assert.Equal(t, TierMedium, sample.QualityHint)

	for i := 0; i < 10; i++ {
		p.RecordLatency(900)
	}
	advance(time.Second)
	sample = p.ProcessFrame([]byte("frame"), 720, 1280)
	require.NotNil(t, sample)
	assert.Equal(t, TierLow, sample.QualityHint)
}

func TestPipelineLatencyIgnoredWhenAdaptiveOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptiveBitrate = false
	p := NewPipeline(cfg)

	for i := 0; i < 10; i++ {
		p.RecordLatency(900)
	}
	assert.Equal(t, cfg.InitialBitrate, p.CurrentBitrate())
	assert.Equal(t, TierMedium, p.QualityTier())
}
