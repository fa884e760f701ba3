package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ezmad-Ze/chat-app/service/auth"
)

func TestClientEnqueueAfterCloseIsSafe(t *testing.T) {
	c := NewClient("c1", auth.Identity{UserID: "u1"}, nil, 4, 0)
	c.closeSend()
	c.closeSend()

	require.NotPanics(t, func() {
		require.False(t, c.enqueue([]byte("late")))
	})
}

func TestDeliverySurvivesClosedClient(t *testing.T) {
	d := NewDelivery(1, 16)
	defer d.Close()

	gone := NewClient("gone", auth.Identity{UserID: "u1"}, nil, 4, 0)
	healthy := NewClient("healthy", auth.Identity{UserID: "u2"}, nil, 4, 0)
	gone.closeSend()

	// a membership snapshot taken before cleanup can still hold the closed
	// client; the single worker must outlive the broadcast to it
	d.Broadcast("chat:room:r1", []*Client{gone}, []byte("stale"))
	d.Broadcast("chat:room:r1", []*Client{healthy}, []byte("after"))

	select {
	case raw := <-healthy.Send:
		require.Equal(t, []byte("after"), raw)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery worker stopped after hitting a closed client")
	}
}

func TestClientEnqueueDropsWhenQueueFull(t *testing.T) {
	c := NewClient("c1", auth.Identity{UserID: "u1"}, nil, 1, 0)

	require.True(t, c.enqueue([]byte("one")))
	require.False(t, c.enqueue([]byte("two")))
	require.Equal(t, []byte("one"), <-c.Send)
}
