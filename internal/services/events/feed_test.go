package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_SubscriberStartsWithInitialValue(t *testing.T) {
	feed := NewFeed[int]()
	ch, cancel := feed.Subscribe(7)
	defer cancel()

	assert.Equal(t, 7, <-ch)
}

func TestFeed_SlowSubscriberSeesLatestOnly(t *testing.T) {
	feed := NewFeed[int]()
	ch, cancel := feed.Subscribe(0)
	defer cancel()

	for i := 1; i <= 5; i++ {
		feed.Publish(i)
	}

	assert.Equal(t, 5, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("expected no further value, got %d", v)
	default:
	}
}

func TestFeed_CancelClosesChannel(t *testing.T) {
	feed := NewFeed[string]()
	ch, cancel := feed.Subscribe("a")
	require.Equal(t, 1, feed.Len())

	cancel()
	cancel()

	assert.Equal(t, 0, feed.Len())
	v, ok := <-ch
	assert.Equal(t, "a", v)
	assert.True(t, ok)
	_, ok = <-ch
	assert.False(t, ok)

	// Publishing after cancel must not panic
	feed.Publish("b")
}

func TestFeed_Close(t *testing.T) {
	feed := NewFeed[int]()
	ch, _ := feed.Subscribe(1)
	feed.Close()

	<-ch
	_, ok := <-ch
	assert.False(t, ok)

	late, _ := feed.Subscribe(2)
	assert.Equal(t, 2, <-late)
	_, ok = <-late
	assert.False(t, ok)
}
