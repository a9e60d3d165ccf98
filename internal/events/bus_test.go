package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(JobProgressEvent{JobID: "job-1", Status: "processing", Progress: 0.5})

	select {
	case evt := <-ch:
		assert.Equal(t, "job-1", evt.JobID)
		assert.Equal(t, "processing", evt.Status)
		assert.Equal(t, 0.5, evt.Progress)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.Publish(JobProgressEvent{JobID: "job-2"})

	for _, ch := range []<-chan JobProgressEvent{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, "job-2", evt.JobID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out event")
		}
	}
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(id)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	b.Publish(JobProgressEvent{JobID: "job-3"}) // must not panic on the removed subscriber
}

func TestPublishDropsWhenSubscriberChannelIsFull(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < subscriberBufferSize+5; i++ {
		b.Publish(JobProgressEvent{JobID: "job-4"})
	}

	assert.Equal(t, subscriberBufferSize, len(ch))
}

func TestUnsubscribeIsSafeToCallTwice(t *testing.T) {
	b := New()
	id, _ := b.Subscribe()
	b.Unsubscribe(id)
	assert.NotPanics(t, func() { b.Unsubscribe(id) })
}
