package guide

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func servePattern(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/outliers/items/p1", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestLoadFromDirectorPack(t *testing.T) {
	srv := servePattern(t, http.StatusOK, `{
		"title": "POV Reveal",
		"director_pack": {
			"pattern_id": "p1",
			"goal": "Land the reveal",
			"target": {"duration_target_sec": 20},
			"dna_invariants": [
				{"rule_id": "hook_face", "domain": "hook", "priority": "critical",
				 "check_hint": "face visible", "coach_lines": {"neutral": "Face in frame", "hype_coach": "SHOW that face!"}}
			],
			"checkpoints": [
				{"checkpoint_id": "c1", "t_window": [0, 0.2], "active_rules": ["hook_face"]}
			]
		}
	}`)
	defer srv.Close()

	l := NewLoader(srv.URL, "hype_coach", nil)
	data, err := l.Load(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.True(t, data.IsLive)
	assert.Equal(t, 20.0, data.DurationSec)
	require.Len(t, data.Steps, 1)
	assert.Equal(t, 0.0, data.Steps[0].StartSec)
	assert.Equal(t, 4.0, data.Steps[0].EndSec) // 0.2 * 20s
	assert.Equal(t, "SHOW that face!", data.Steps[0].Action)
	assert.Equal(t, "flash", data.Steps[0].Icon)
	assert.Contains(t, data.Tips, "Land the reveal")
}

func TestLoadActionFallbackChain(t *testing.T) {
	srv := servePattern(t, http.StatusOK, `{
		"title": "p",
		"director_pack": {
			"target": {"duration_target_sec": 10},
			"dna_invariants": [
				{"rule_id": "r1", "priority": "high", "check_hint": "hint text", "coach_lines": {}}
			],
			"checkpoints": [
				{"checkpoint_id": "c1", "t_window": [0, 1], "active_rules": ["r1"]}
			]
		}
	}`)
	defer srv.Close()

	// No persona or neutral line: the check hint becomes the action.
	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, data.Steps, 1)
	assert.Equal(t, "hint text", data.Steps[0].Action)
}

func TestLoadPackWithoutCheckpointsUsesInvariants(t *testing.T) {
	srv := servePattern(t, http.StatusOK, `{
		"title": "p",
		"director_pack": {
			"target": {"duration_target_sec": 12},
			"dna_invariants": [
				{"rule_id": "r1", "priority": "high", "coach_lines": {"neutral": "one"}},
				{"rule_id": "r2", "priority": "high", "coach_lines": {"neutral": "two"}},
				{"rule_id": "r3", "priority": "high", "coach_lines": {"neutral": "three"}},
				{"rule_id": "r4", "priority": "high", "coach_lines": {"neutral": "four"}},
				{"rule_id": "r5", "priority": "high", "coach_lines": {"neutral": "five"}},
				{"rule_id": "r6", "priority": "high", "coach_lines": {"neutral": "six"}}
			]
		}
	}`)
	defer srv.Close()

	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, data.Steps, 5) // capped
	for _, s := range data.Steps {
		assert.Equal(t, 0.0, s.StartSec)
		assert.Equal(t, 12.0, s.EndSec)
	}
}

func TestLoadFromLegacyAnalysis(t *testing.T) {
	srv := servePattern(t, http.StatusOK, `{
		"title": "legacy",
		"analysis": {
			"checkpoints": [
				{"time_sec": 0, "label": "open strong"},
				{"time_sec": 4, "hint": "switch angle"}
			]
		}
	}`)
	defer srv.Close()

	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, data.IsLive)
	require.Len(t, data.Steps, 2)
	assert.Equal(t, "open strong", data.Steps[0].Action)
	assert.Equal(t, 4.0, data.Steps[0].EndSec)
	assert.Equal(t, "switch angle", data.Steps[1].Action)
	assert.Equal(t, 6.0, data.Steps[1].EndSec)
}

func TestLoadFromShootingGuideKicks(t *testing.T) {
	srv := servePattern(t, http.StatusOK, `{
		"title": "ignored",
		"shooting_guide": {
			"title": "Beat Sync",
			"bpm": 128,
			"duration_sec": 15,
			"kicks": [
				{"time_sec": 0, "action": "start dancing", "icon": "music"},
				{"time_sec": 7.5, "action": "freeze"}
			]
		}
	}`)
	defer srv.Close()

	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, data.IsLive)
	assert.Equal(t, "Beat Sync", data.Title)
	assert.Equal(t, 128, data.BPM)
	require.Len(t, data.Steps, 2)
	assert.Equal(t, 7.5, data.Steps[0].EndSec)
	assert.Equal(t, "music", data.Steps[1].Icon) // default icon
}

func TestLoadNotFoundFallsBackWithoutError(t *testing.T) {
	srv := servePattern(t, http.StatusNotFound, `{"error": "not found"}`)
	defer srv.Close()

	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, data.IsLive)
	assert.Len(t, data.Steps, 4)
}

func TestLoadServerErrorFallsBackWithError(t *testing.T) {
	srv := servePattern(t, http.StatusInternalServerError, ``)
	defer srv.Close()

	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, LoadFailureGeneric, loadErr.Kind)
	assert.False(t, data.IsLive)
}

func TestLoadUnreachableClassifiedOffline(t *testing.T) {
	srv := servePattern(t, http.StatusOK, `{}`)
	srv.Close() // refuse connections

	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, LoadFailureOffline, loadErr.Kind)
	assert.Equal(t, "You're offline. Showing the basic guide.", loadErr.UserMessage())
	require.NotNil(t, data)
	assert.False(t, data.IsLive)
}

func TestLoadEmptyDetailFallsBack(t *testing.T) {
	srv := servePattern(t, http.StatusOK, `{"title": "bare"}`)
	defer srv.Close()

	l := NewLoader(srv.URL, "bestie", nil)
	data, err := l.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, data.IsLive)
}
