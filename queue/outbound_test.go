package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azdevice/deviceclient/transport"
)

func TestOutboundQueue_FIFOOrder(t *testing.T) {
	q := NewOutboundQueue()
	var order []string
	cb := func(name string) SendCallback {
		return func(c transport.Confirmation, ctx any) { order = append(order, name) }
	}
	q.Enqueue(&transport.Message{Body: []byte("a")}, cb("a"), nil, 0, 0)
	q.Enqueue(&transport.Message{Body: []byte("b")}, cb("b"), nil, 0, 0)
	q.Enqueue(&transport.Message{Body: []byte("c")}, cb("c"), nil, 0, 0)

	pending := q.Pending()
	require.Len(t, pending, 3)
	ids := []uint64{pending[0].ID, pending[1].ID, pending[2].ID}
	q.Complete(ids, transport.ConfirmationOK)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, q.Len())
}

// TestOutboundQueue_SweepMarksExpiredEntryTimedOut enqueues with a span of
// 1000 ticks at tick 0 and sweeps forward until the deadline is exceeded.
func TestOutboundQueue_SweepMarksExpiredEntryTimedOut(t *testing.T) {
	q := NewOutboundQueue()
	var got transport.Confirmation
	q.Enqueue(&transport.Message{Body: []byte("A")}, func(c transport.Confirmation, ctx any) {
		got = c
	}, nil, 0, 1000)

	q.SweepTimeouts(1000) // now - deadline == 0, not > span yet
	assert.Equal(t, 1, q.Len())

	q.SweepTimeouts(1500) // now - deadline == 500 <= span(1000): still not timed out
	assert.Equal(t, 1, q.Len())

	q.SweepTimeouts(2001) // now - deadline == 1001 > span(1000)
	assert.Equal(t, transport.ConfirmationMessageTimeout, got)
	assert.Equal(t, 0, q.Len())
}

func TestOutboundQueue_ZeroTimeoutNeverSweeps(t *testing.T) {
	q := NewOutboundQueue()
	called := false
	q.Enqueue(&transport.Message{Body: []byte("x")}, func(c transport.Confirmation, ctx any) {
		called = true
	}, nil, 0, 0)
	q.SweepTimeouts(1_000_000)
	assert.False(t, called)
	assert.Equal(t, 1, q.Len())
}

func TestOutboundQueue_DrainAll_BecauseDestroy(t *testing.T) {
	q := NewOutboundQueue()
	var seen []transport.Confirmation
	for i := 0; i < 3; i++ {
		q.Enqueue(&transport.Message{Body: []byte("m")}, func(c transport.Confirmation, ctx any) {
			seen = append(seen, c)
		}, nil, 0, 0)
	}
	q.DrainAll(transport.ConfirmationBecauseDestroy)
	assert.Equal(t, 0, q.Len())
	require.Len(t, seen, 3)
	for _, c := range seen {
		assert.Equal(t, transport.ConfirmationBecauseDestroy, c)
	}
}

func TestOutboundQueue_CompleteIgnoresUnknownIDs(t *testing.T) {
	q := NewOutboundQueue()
	q.Enqueue(&transport.Message{Body: []byte("m")}, func(c transport.Confirmation, ctx any) {}, nil, 0, 0)
	q.Complete([]uint64{9999}, transport.ConfirmationOK)
	assert.Equal(t, 1, q.Len())
}

func TestOutboundQueue_NilCallbackNeverInvoked(t *testing.T) {
	q := NewOutboundQueue()
	id := q.Enqueue(&transport.Message{Body: []byte("m")}, nil, nil, 0, 0)
	assert.NotPanics(t, func() {
		q.Complete([]uint64{id}, transport.ConfirmationOK)
	})
}
