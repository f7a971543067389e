package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/reload-entangle/internal/common"
)

func receive(t *testing.T, sub *Subscription) common.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "feed terminated")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestFanOutPreservesOrder(t *testing.T) {
	b := New()
	defer b.Close()
	subs := []*Subscription{b.Subscribe(), b.Subscribe(), b.Subscribe()}

	var sent []common.Message
	for i := 0; i < 50; i++ {
		msg := common.NewLogMessage("m")
		sent = append(sent, msg)
		require.NoError(t, b.Publish(msg))
	}

	for _, sub := range subs {
		for _, want := range sent {
			assert.True(t, common.SameMessage(want, receive(t, sub)))
		}
	}
}

func TestLateSubscriberMissesEarlierMessages(t *testing.T) {
	b := New()
	defer b.Close()
	early := b.Subscribe()
	first := common.NewLogMessage("first")
	require.NoError(t, b.Publish(first))

	late := b.Subscribe()
	second := common.NewLogMessage("second")
	require.NoError(t, b.Publish(second))

	assert.True(t, common.SameMessage(first, receive(t, early)))
	assert.True(t, common.SameMessage(second, receive(t, early)))
	assert.True(t, common.SameMessage(second, receive(t, late)))
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := New()
	defer b.Close()
	slow := b.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10_000; i++ {
			b.Publish(common.NewLogMessage("x"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on an idle subscriber")
	}
}

func TestCloseDrainsThenTerminates(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	msg := common.NewLogMessage("last")
	require.NoError(t, b.Publish(msg))
	b.Close()

	assert.True(t, common.SameMessage(msg, receive(t, sub)))
	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(common.NewLogMessage("late")), ErrClosed)

	after := b.Subscribe()
	_, ok = <-after.C()
	assert.False(t, ok)
	b.Close()
}

func TestSubscriptionClose(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.Subscribers())
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
