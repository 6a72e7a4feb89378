package event

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingRefresher struct {
	calls  atomic.Int32
	result bool
}

func (c *countingRefresher) Trigger(context.Context) bool {
	c.calls.Add(1)
	return c.result
}

func TestEventName(t *testing.T) {
	tests := map[string]string{
		"com.transistorsoft.locationmanager.event.HTTP":     "http",
		"com.transistorsoft.locationmanager.event.LOCATION": "location",
		"MOTIONCHANGE": "motionchange",
		"":             "",
		"trailing.":    "",
	}
	for action, want := range tests {
		assert.Equal(t, want, EventName(action), action)
	}
}

func TestGateIgnoresNonAuthStatuses(t *testing.T) {
	r := &countingRefresher{result: true}
	g := NewGate(r, zerolog.Nop())

	for status := 100; status < 600; status++ {
		if status == 401 || status == 403 {
			continue
		}
		assert.False(t, g.Handle(context.Background(), Event{Name: HTTP, Status: status}))
	}
	assert.False(t, g.Handle(context.Background(), Event{Name: HTTP, Status: -1}))
	assert.Zero(t, r.calls.Load())
}

func TestGateTriggersOnAuthFailure(t *testing.T) {
	for _, status := range []int{401, 403} {
		r := &countingRefresher{result: true}
		g := NewGate(r, zerolog.Nop())

		assert.True(t, g.Handle(context.Background(), Event{Name: "HTTP", Status: status, ResponseText: "denied"}))
		assert.Equal(t, int32(1), r.calls.Load())
	}
}

func TestGateReportsDroppedTrigger(t *testing.T) {
	r := &countingRefresher{result: false}
	g := NewGate(r, zerolog.Nop())

	assert.False(t, g.Handle(context.Background(), Event{Name: HTTP, Status: 401}))
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestGateIgnoresOtherEvents(t *testing.T) {
	r := &countingRefresher{result: true}
	g := NewGate(r, zerolog.Nop())

	for _, name := range []string{Location, Geofence, Boot, Terminate, ActivityChange, "unknown-event", ""} {
		assert.False(t, g.Handle(context.Background(), Event{Name: name, Status: 401}))
	}
	assert.Zero(t, r.calls.Load())
}
