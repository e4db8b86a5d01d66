// Package broadcaster fans out tracked-file change events to subscribers.
package broadcaster

import (
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of change.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileEvent is one change to a tracked file.
type FileEvent struct {
	Type EventType
	// Path is relative to the watched folder.
	Path     string
	Checksum string
	Time     time.Time
}

// Subscriber receives events for paths under Prefix.
type Subscriber struct {
	ID      string
	Prefix  string
	Exclude []string
	Events  chan *FileEvent

	dropped atomic.Uint64
}

// Dropped returns how many events were discarded because the channel was full.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster manages subscribers and distributes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
	buffer      int
}

// New creates a Broadcaster whose subscriber channels hold buffer events.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 100
	}
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
		buffer:      buffer,
	}
}

// Subscribe registers a subscriber for paths under prefix ("" for all).
// Exclude holds base-name patterns in path.Match syntax. It returns nil once
// the broadcaster is closed.
func (b *Broadcaster) Subscribe(prefix string, exclude []string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:      uuid.New().String(),
		Prefix:  strings.Trim(prefix, "/"),
		Exclude: exclude,
		Events:  make(chan *FileEvent, b.buffer),
	}
	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends an event to every matching subscriber without blocking.
func (b *Broadcaster) Notify(event FileEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !matches(sub, event.Path) {
			continue
		}
		ev := event
		select {
		case sub.Events <- &ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

func matches(sub *Subscriber, p string) bool {
	if sub.Prefix != "" && p != sub.Prefix && !strings.HasPrefix(p, sub.Prefix+"/") {
		return false
	}
	for _, pattern := range sub.Exclude {
		if matched, _ := path.Match(pattern, path.Base(p)); matched {
			return false
		}
	}
	return true
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
