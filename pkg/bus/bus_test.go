package bus

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(buffer int) *Broadcaster {
	return New(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishSubscribe(t *testing.T) {
	b := newTestBroadcaster(4)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish("tx:new", map[string]int{"size": 2})

	ev := <-sub.C
	assert.Equal(t, "tx:new", ev.Name)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, 2, payload["size"])
}

func TestPublishOrder(t *testing.T) {
	b := newTestBroadcaster(8)
	sub := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Publish("tx:new", i)
	}

	for i := 0; i < 5; i++ {
		ev := <-sub.C
		var got int
		require.NoError(t, json.Unmarshal(ev.Data, &got))
		assert.Equal(t, i, got)
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	b := newTestBroadcaster(4)
	b.Publish("tx:new", 1)

	sub := b.Subscribe()
	select {
	case ev := <-sub.C:
		t.Fatalf("late subscriber received %q", ev.Name)
	default:
	}
}

func TestSlowSubscriberEvicted(t *testing.T) {
	b := newTestBroadcaster(1)
	slow := b.Subscribe()
	healthy := b.Subscribe()

	// Fill the slow subscriber's buffer, drain the healthy one, then
	// overflow: only the slow subscriber gets evicted.
	b.Publish("tx:new", 1)
	ev := <-healthy.C
	assert.Equal(t, "tx:new", ev.Name)

	b.Publish("tx:new", 2)

	assert.Equal(t, 1, b.SubscriberCount())

	_, open := <-slow.C
	assert.True(t, open)
	_, open = <-slow.C
	assert.False(t, open, "evicted subscriber channel should be closed")

	ev = <-healthy.C
	assert.Equal(t, "tx:new", ev.Name)
}

func TestConcurrentPublishAndChurn(t *testing.T) {
	b := newTestBroadcaster(64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish("tx:new", j)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := b.Subscribe()
				b.Unsubscribe(sub)
			}
		}()
	}
	wg.Wait()
}

func TestShutdown(t *testing.T) {
	b := newTestBroadcaster(4)
	sub := b.Subscribe()

	b.Shutdown()

	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())

	// Subscribing after shutdown yields a closed channel, not a panic.
	late := b.Subscribe()
	_, open = <-late.C
	assert.False(t, open)
}
