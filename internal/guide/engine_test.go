package guide

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStepGuide() *GuideData {
	return &GuideData{
		Title:       "test",
		DurationSec: 10,
		Steps: []GuideStep{
			{StartSec: 0, EndSec: 2, Action: "hook"},
			{StartSec: 2, EndSec: 5, Action: "build"},
			{StartSec: 5, EndSec: 10, Action: "close"},
		},
		IsLive: true,
	}
}

func TestEngineStartsWithFallback(t *testing.T) {
	e := NewEngine()
	data := e.Guide()
	require.NotNil(t, data)
	assert.False(t, data.IsLive)
	assert.Len(t, data.Steps, 4)

	step := e.CurrentStep(0)
	require.NotNil(t, step)
	assert.Equal(t, "fallback_hook", step.RuleID)
}

func TestCurrentStepWindows(t *testing.T) {
	e := NewEngine()
	e.SetGuide(threeStepGuide())

	step := e.CurrentStep(0)
	require.NotNil(t, step)
	assert.Equal(t, "hook", step.Action)

	step = e.CurrentStep(3)
	require.NotNil(t, step)
	assert.Equal(t, "build", step.Action)

	// Boundaries are half-open: the end of one window is the start of the next.
	step = e.CurrentStep(5)
	require.NotNil(t, step)
	assert.Equal(t, "close", step.Action)

	assert.Nil(t, e.CurrentStep(10))
	assert.Nil(t, e.CurrentStep(-1))
}

func TestUpcomingStepPreAlert(t *testing.T) {
	e := NewEngine()
	e.SetGuide(threeStepGuide())

	step := e.UpcomingStep(3, DefaultPreAlertSec)
	require.NotNil(t, step)
	assert.Equal(t, "close", step.Action)

	// Next step starts at 5; from t=3 a 1s pre-alert window misses it.
	assert.Nil(t, e.UpcomingStep(3, 1))

	// A step already running is never "upcoming".
	step = e.UpcomingStep(4.5, DefaultPreAlertSec)
	require.NotNil(t, step)
	assert.Equal(t, "close", step.Action)
	assert.Nil(t, e.UpcomingStep(9, DefaultPreAlertSec))
}

func TestSetGuideSortsSteps(t *testing.T) {
	e := NewEngine()
	e.SetGuide(&GuideData{
		Steps: []GuideStep{
			{StartSec: 5, EndSec: 10, Action: "late"},
			{StartSec: 0, EndSec: 6, Action: "early"},
		},
	})

	// Overlap at t=5: first match in start order wins.
	step := e.CurrentStep(5)
	require.NotNil(t, step)
	assert.Equal(t, "early", step.Action)
}

func TestSetGuideNilRestoresFallback(t *testing.T) {
	e := NewEngine()
	e.SetGuide(threeStepGuide())
	assert.True(t, e.Guide().IsLive)

	e.SetGuide(nil)
	assert.False(t, e.Guide().IsLive)
}
