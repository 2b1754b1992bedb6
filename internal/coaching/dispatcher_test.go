package coaching

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(audioB64 string) {
	p.mu.Lock()
	p.played = append(p.played, audioB64)
	p.mu.Unlock()
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func drainEvent(t *testing.T, d *Dispatcher) Event {
	t.Helper()
	select {
	case ev := <-d.Events():
		return ev
	default:
		t.Fatal("expected a published event")
		return Event{}
	}
}

func TestDispatcherFeedbackUpdatesCurrentAndHistory(t *testing.T) {
	d := NewDispatcher(nil, nil, false)

	d.HandleRaw([]byte(`{"type":"feedback","message":"first","priority":"high"}`))
	d.HandleRaw([]byte(`{"type":"feedback","message":"second"}`))

	current := d.CurrentFeedback()
	require.NotNil(t, current)
	assert.Equal(t, "second", current.Message)

	history := d.FeedbackHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Message)

	ev := drainEvent(t, d)
	assert.Equal(t, EventFeedback, ev.Kind)
	assert.Equal(t, "first", ev.Feedback.Message)
}

func TestDispatcherFeedbackHistoryBounded(t *testing.T) {
	d := NewDispatcher(nil, nil, false)
	for i := 0; i < 15; i++ {
		d.Handle(&FeedbackMessage{Type: TypeFeedback, Message: fmt.Sprintf("m%d", i)})
	}
	history := d.FeedbackHistory()
	require.Len(t, history, feedbackHistorySize)
	assert.Equal(t, "m5", history[0].Message)
	assert.Equal(t, "m14", history[len(history)-1].Message)
}

func TestDispatcherVDGReplacesNotMerges(t *testing.T) {
	d := NewDispatcher(nil, nil, false)

	d.Handle(&VDGCoachingData{Type: TypeVDGCoachingData, BPM: 120, Shots: []VDGShot{{TMS: 0}, {TMS: 1000}}})
	d.Handle(&VDGCoachingData{Type: TypeVDGCoachingData, BPM: 90, Kicks: []VDGKick{{TMS: 500}}})

	vdg := d.VDGData()
	require.NotNil(t, vdg)
	assert.Equal(t, 90, vdg.BPM)
	assert.Empty(t, vdg.Shots)
	assert.Len(t, vdg.Kicks, 1)
}

func TestDispatcherBookkeepingHooks(t *testing.T) {
	d := NewDispatcher(nil, nil, false)
	var pongT, ackT int64
	d.SetBookkeeping(func(t int64) { pongT = t }, func(t int64) { ackT = t })

	d.HandleRaw([]byte(`{"type":"pong","t":111}`))
	d.HandleRaw([]byte(`{"type":"frame_ack","t_ms":222}`))

	assert.Equal(t, int64(111), pongT)
	assert.Equal(t, int64(222), ackT)

	// Bookkeeping messages never reach the event channel.
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func TestDispatcherAudioGating(t *testing.T) {
	t.Run("plays when voice enabled", func(t *testing.T) {
		player := &fakePlayer{}
		d := NewDispatcher(nil, player, true)
		d.Handle(&AudioFeedbackMessage{Type: TypeAudioFeedback, AudioB64: "QUJD"})
		assert.Equal(t, 1, player.count())
		assert.Equal(t, EventAudioFeedback, drainEvent(t, d).Kind)
	})

	t.Run("muted when voice disabled, still forwarded", func(t *testing.T) {
		player := &fakePlayer{}
		d := NewDispatcher(nil, player, false)
		d.Handle(&AudioFeedbackMessage{Type: TypeAudioFeedback, AudioB64: "QUJD"})
		assert.Equal(t, 0, player.count())
		assert.Equal(t, EventAudioFeedback, drainEvent(t, d).Kind)
	})

	t.Run("skips empty payload", func(t *testing.T) {
		player := &fakePlayer{}
		d := NewDispatcher(nil, player, true)
		d.Handle(&AudioFeedbackMessage{Type: TypeAudioFeedback})
		assert.Equal(t, 0, player.count())
	})

	t.Run("feedback audio plays too", func(t *testing.T) {
		player := &fakePlayer{}
		d := NewDispatcher(nil, player, true)
		d.Handle(&FeedbackMessage{Type: TypeFeedback, Message: "hi", AudioB64: "QUJD"})
		assert.Equal(t, 1, player.count())
	})
}

func TestDispatcherErrorIsNonTerminal(t *testing.T) {
	d := NewDispatcher(nil, nil, false)
	d.HandleRaw([]byte(`{"type":"error","code":"bad","message":"boom"}`))

	ev := drainEvent(t, d)
	assert.Equal(t, EventCoachError, ev.Kind)
	assert.Equal(t, "boom", ev.Error)

	// Subsequent traffic still routes.
	d.HandleRaw([]byte(`{"type":"feedback","message":"still alive"}`))
	assert.Equal(t, EventFeedback, drainEvent(t, d).Kind)
}

func TestDispatcherMalformedAndUnknownDropped(t *testing.T) {
	d := NewDispatcher(nil, nil, false)

	d.HandleRaw([]byte(`not json`))
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}

	d.HandleRaw([]byte(`{"type":"hologram"}`))
	assert.Equal(t, EventUnrecognized, drainEvent(t, d).Kind)
}

func TestDispatcherEventBufferSheds(t *testing.T) {
	d := NewDispatcher(nil, nil, false)
	for i := 0; i < eventBufferSize+10; i++ {
		d.Handle(&TextCoachMessage{Type: TypeTextCoach, Message: "x"})
	}
	// Buffer holds exactly eventBufferSize; overflow was dropped, not blocked.
	count := 0
	for {
		select {
		case <-d.Events():
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, eventBufferSize, count)
}

func TestDispatcherReset(t *testing.T) {
	d := NewDispatcher(nil, nil, false)
	d.Handle(&FeedbackMessage{Type: TypeFeedback, Message: "hi"})
	d.Handle(&VDGCoachingData{Type: TypeVDGCoachingData, BPM: 100})
	d.Handle(&SessionStatusMessage{Type: TypeSessionStatus, Status: "active"})

	d.Reset()
	assert.Nil(t, d.CurrentFeedback())
	assert.Empty(t, d.FeedbackHistory())
	assert.Nil(t, d.VDGData())
	assert.Nil(t, d.SessionStatus())
}
