package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBrokerDeliversToTopicSubscribers(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	stream, cancel := broker.Subscribe(BranchTopic("b1"))
	defer cancel()

	err := broker.Publish(context.Background(), BranchTopic("b1"), TypeTransactionCreated, map[string]string{"id": "o1"})
	require.NoError(t, err)

	evt := receive(t, stream)
	assert.Equal(t, TypeTransactionCreated, evt.Type)
	assert.Equal(t, "branch.b1", evt.Topic)
	assert.JSONEq(t, `{"id":"o1"}`, string(evt.Payload))
	assert.False(t, evt.Timestamp.IsZero())
}

func TestBrokerIsolatesTopics(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	b1, cancel1 := broker.Subscribe(BranchTopic("b1"))
	defer cancel1()
	b2, cancel2 := broker.Subscribe(BranchTopic("b2"))
	defer cancel2()

	require.NoError(t, broker.Publish(context.Background(), BranchTopic("b1"), TypeStockChanged, nil))

	receive(t, b1)
	select {
	case evt := <-b2:
		t.Fatalf("b2 received foreign event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerFiltersByType(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	stream, cancel := broker.Subscribe(OwnerTopic("demo-owner"), TypePaymentUpdated)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, broker.Publish(ctx, OwnerTopic("demo-owner"), TypeTransactionCreated, nil))
	require.NoError(t, broker.Publish(ctx, OwnerTopic("demo-owner"), TypePaymentUpdated, nil))

	evt := receive(t, stream)
	assert.Equal(t, TypePaymentUpdated, evt.Type)
	assert.Empty(t, stream)
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	stream, cancel := broker.Subscribe(BranchTopic("b1"))
	defer cancel()

	// Publish must never block, even with nobody draining.
	for i := 0; i < subscriberBuffer*2; i++ {
		require.NoError(t, broker.Publish(context.Background(), BranchTopic("b1"), TypeStockChanged, i))
	}
	assert.Len(t, stream, subscriberBuffer)
}

func TestBrokerCancelClosesStream(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	stream, cancel := broker.Subscribe(BranchTopic("b1"))
	cancel()
	cancel() // second cancel is a no-op

	_, open := <-stream
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	require.NoError(t, broker.Publish(context.Background(), BranchTopic("b1"), TypeStockChanged, nil))
}

func TestBrokerCloseStopsEverything(t *testing.T) {
	broker := NewBroker()

	stream, cancel := broker.Subscribe(BranchTopic("b1"))
	defer cancel()

	require.NoError(t, broker.Close())
	require.NoError(t, broker.Close())

	_, open := <-stream
	assert.False(t, open)
	assert.NoError(t, broker.Publish(context.Background(), BranchTopic("b1"), TypeStockChanged, nil))
}

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) Publish(context.Context, string, Type, any) error {
	s.calls++
	return s.err
}

func TestFanoutPublishesToAllAndKeepsFirstError(t *testing.T) {
	ok := &stubPublisher{}
	failing := &stubPublisher{err: assert.AnError}
	last := &stubPublisher{}

	fan := NewFanout(ok, failing, last)
	err := fan.Publish(context.Background(), "topic", TypeStockChanged, nil)

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, last.calls, "failure must not short-circuit later publishers")
}
