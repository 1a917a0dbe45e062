package distribution

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscriber, n int) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		select {
		case msg := <-sub.C():
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(msg, &decoded))
			out = append(out, decoded)
		default:
			t.Fatalf("expected %d messages, got %d", n, i)
		}
	}
	return out
}

func TestPublishStampsEvents(t *testing.T) {
	h := NewHub(nil)

	msg, err := h.Publish("subject-a", map[string]any{"type": "visit", "domain": "example.org"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg, &decoded))
	require.NotEmpty(t, decoded["id"])
	require.NotZero(t, decoded["ts"])
	require.Equal(t, "subject-a", decoded["userId"])
	require.Equal(t, "visit", decoded["type"])
}

func TestSubscribeReplaysBacklogInOrder(t *testing.T) {
	h := NewHub(nil)

	for i := 0; i < 5; i++ {
		_, err := h.Publish("subject-a", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	sub := h.Subscribe("subject-a")
	defer sub.Close()

	msgs := drain(t, sub, 5)
	for i, m := range msgs {
		require.EqualValues(t, i, m["seq"])
	}
}

func TestBacklogRetention(t *testing.T) {
	h := NewHub(nil)

	for i := 0; i < maxBacklog+25; i++ {
		_, err := h.Publish("subject-a", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	backlog := h.Backlog("subject-a")
	require.Len(t, backlog, maxBacklog)

	var first, last map[string]any
	require.NoError(t, json.Unmarshal(backlog[0], &first))
	require.NoError(t, json.Unmarshal(backlog[len(backlog)-1], &last))
	require.EqualValues(t, 25, first["seq"])
	require.EqualValues(t, maxBacklog+24, last["seq"])
}

func TestSubjectIsolation(t *testing.T) {
	h := NewHub(nil)

	subA := h.Subscribe("subject-a")
	defer subA.Close()
	subB := h.Subscribe("subject-b")
	defer subB.Close()

	_, err := h.Publish("subject-a", map[string]any{"type": "visit"})
	require.NoError(t, err)

	require.Len(t, drain(t, subA, 1), 1)
	select {
	case msg := <-subB.C():
		t.Fatalf("subject-b received foreign event: %s", msg)
	default:
	}
	require.Empty(t, h.Backlog("subject-b"))
}

func TestLiveDeliveryAfterReplay(t *testing.T) {
	h := NewHub(nil)

	_, err := h.Publish("subject-a", map[string]any{"seq": 0})
	require.NoError(t, err)

	sub := h.Subscribe("subject-a")
	defer sub.Close()

	_, err = h.Publish("subject-a", map[string]any{"seq": 1})
	require.NoError(t, err)

	msgs := drain(t, sub, 2)
	require.EqualValues(t, 0, msgs[0]["seq"])
	require.EqualValues(t, 1, msgs[1]["seq"])
}

func TestSlowSubscriberEviction(t *testing.T) {
	h := NewHub(nil)

	sub := h.Subscribe("subject-a")
	require.Equal(t, 1, h.LiveCount("subject-a"))

	// Never drained: filling the channel past its buffer evicts the consumer.
	for i := 0; i < subscriberBuffer+1; i++ {
		_, err := h.Publish("subject-a", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	require.Equal(t, 0, h.LiveCount("subject-a"))

	// The channel was closed after the buffered messages.
	for i := 0; i < subscriberBuffer; i++ {
		_, ok := <-sub.C()
		require.True(t, ok, fmt.Sprintf("message %d", i))
	}
	_, ok := <-sub.C()
	require.False(t, ok)

	sub.Close() // safe after eviction
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	h := NewHub(nil)

	sub := h.Subscribe("subject-a")
	sub.Close()
	sub.Close()
	require.Equal(t, 0, h.LiveCount("subject-a"))

	_, err := h.Publish("subject-a", map[string]any{"seq": 0})
	require.NoError(t, err)
}
