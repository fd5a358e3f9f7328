package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventUpdate carries a replaced line.
	EventUpdate EventType = "update"
	// EventInsert carries an inserted line.
	EventInsert EventType = "insert"
	// EventDelete carries a removed line number.
	EventDelete EventType = "delete"
)

// Event is one structural or content change to a shared file.
type Event struct {
	Type   EventType
	File   string
	Origin string
	Line   int
	Text   string
}

// Bus fanouts file edits to every connection viewing the file.
type Bus struct {
	mu    sync.Mutex
	subs  map[string]map[chan Event]string
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[string]map[chan Event]string),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers connection id as a viewer of file and returns a channel + cancel.
// Events published with Origin == id are not delivered back to it.
func (b *Bus) Subscribe(file, id string) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	fileSubs := b.subs[file]
	if fileSubs == nil {
		fileSubs = make(map[chan Event]string)
		b.subs[file] = fileSubs
	}
	fileSubs[ch] = id
	count := len(fileSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("file", file, "conn", id).Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[file]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, file)
				}
			}
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.With("file", file, "conn", id).Debug("eventbus unsubscribe")
			}
		})
	}
}

// Publish delivers event to every other subscriber of event.File without blocking.
// A subscriber whose queue is full misses the event.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	fileSubs := b.subs[event.File]
	subs := make([]chan Event, 0, len(fileSubs))
	for sub, id := range fileSubs {
		if id == event.Origin {
			continue
		}
		subs = append(subs, sub)
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("file", event.File).Warn("eventbus dropped", "count", dropped, "type", event.Type)
	}
}

// Viewers returns how many connections subscribe to file.
func (b *Bus) Viewers(file string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[file])
}
