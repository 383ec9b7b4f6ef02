package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversInOrder(t *testing.T) {
	var h Hub
	events, cancel := h.Subscribe()
	defer cancel()

	for i := uint64(1); i <= 3; i++ {
		require.True(t, h.Publish(Event{Seq: i}))
	}

	for i := uint64(1); i <= 3; i++ {
		ev := <-events
		assert.Equal(t, i, ev.Seq)
	}
}

func TestHub_DetachedSubscriberIsInert(t *testing.T) {
	var h Hub
	events, cancel := h.Subscribe()
	cancel()
	cancel()

	h.Publish(Event{Seq: 1})

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_Close(t *testing.T) {
	var h Hub
	events, _ := h.Subscribe()

	h.Close()
	assert.True(t, h.Closed())
	assert.False(t, h.Publish(Event{Seq: 1}))

	late, _ := h.Subscribe()
	assert.Empty(t, events)
	assert.Empty(t, late)
}
