package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscriber) *FileEvent {
	t.Helper()
	select {
	case ev := <-sub.Events:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
		return nil
	}
}

func assertNoEvent(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "created", EventCreated.String())
	assert.Equal(t, "modified", EventModified.String())
	assert.Equal(t, "deleted", EventDeleted.String())
	assert.Equal(t, "unknown", EventType(7).String())
}

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New(0)
	defer b.Close()

	sub := b.Subscribe("/css/", nil)
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "css", sub.Prefix)
	assert.Equal(t, 100, cap(sub.Events))
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_NotifyAll(t *testing.T) {
	b := New(4)
	defer b.Close()

	sub := b.Subscribe("", nil)
	b.Notify(FileEvent{Type: EventModified, Path: "a.txt", Checksum: "h2"})

	ev := receive(t, sub)
	assert.Equal(t, EventModified, ev.Type)
	assert.Equal(t, "a.txt", ev.Path)
	assert.Equal(t, "h2", ev.Checksum)
}

func TestBroadcaster_FiltersByPrefix(t *testing.T) {
	b := New(4)
	defer b.Close()

	sub := b.Subscribe("css", nil)

	b.Notify(FileEvent{Type: EventCreated, Path: "cssx/a.css"})
	assertNoEvent(t, sub)

	b.Notify(FileEvent{Type: EventCreated, Path: "css/a.css"})
	assert.Equal(t, "css/a.css", receive(t, sub).Path)
}

func TestBroadcaster_Exclude(t *testing.T) {
	b := New(4)
	defer b.Close()

	sub := b.Subscribe("", []string{"*.min.js"})
	b.Notify(FileEvent{Type: EventCreated, Path: "js/app.min.js"})
	assertNoEvent(t, sub)

	b.Notify(FileEvent{Type: EventCreated, Path: "js/app.js"})
	assert.Equal(t, "js/app.js", receive(t, sub).Path)
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := New(1)
	defer b.Close()

	sub := b.Subscribe("", nil)
	b.Notify(FileEvent{Path: "a"})
	b.Notify(FileEvent{Path: "b"})

	assert.Equal(t, uint64(1), sub.Dropped())
	assert.Equal(t, "a", receive(t, sub).Path)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New(1)
	defer b.Close()

	sub := b.Subscribe("", nil)
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Zero(t, b.SubscriberCount())
	b.Unsubscribe(sub.ID)
}

func TestBroadcaster_Close(t *testing.T) {
	b := New(1)
	sub := b.Subscribe("", nil)

	b.Close()
	b.Close()

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Nil(t, b.Subscribe("", nil))
	b.Notify(FileEvent{Path: "a"})
}
