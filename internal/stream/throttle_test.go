package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottlerGatesByInterval(t *testing.T) {
	th := NewThrottler(2) // 500ms interval
	base := time.Unix(1000, 0)

	assert.True(t, th.ShouldSend(base))
	assert.False(t, th.ShouldSend(base.Add(100*time.Millisecond)))
	assert.False(t, th.ShouldSend(base.Add(499*time.Millisecond)))
	assert.True(t, th.ShouldSend(base.Add(500*time.Millisecond)))
	assert.Equal(t, int64(2), th.Dropped())
}

func TestThrottlerNeverQueues(t *testing.T) {
	// 30 frames in one second through a 2fps gate: exactly 2 pass, the rest
	// are dropped immediately rather than delayed.
	th := NewThrottler(2)
	base := time.Unix(1000, 0)

	var passed int
	for i := 0; i < 30; i++ {
		if th.ShouldSend(base.Add(time.Duration(i) * 33 * time.Millisecond)) {
			passed++
		}
	}
	assert.Equal(t, 2, passed)
	assert.Equal(t, int64(28), th.Dropped())
}

func TestThrottlerClampsFPSFloor(t *testing.T) {
	th := NewThrottler(0)
	base := time.Unix(1000, 0)
	assert.True(t, th.ShouldSend(base))
	assert.False(t, th.ShouldSend(base.Add(900*time.Millisecond)))
	assert.True(t, th.ShouldSend(base.Add(time.Second)))
}

func TestThrottlerReset(t *testing.T) {
	th := NewThrottler(1)
	base := time.Unix(1000, 0)
	assert.True(t, th.ShouldSend(base))
	assert.False(t, th.ShouldSend(base.Add(time.Millisecond)))

	th.Reset()
	assert.True(t, th.ShouldSend(base.Add(2*time.Millisecond)))
	assert.Equal(t, int64(0), th.Dropped())
}
