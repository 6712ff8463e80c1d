// Package activity records room activity off the hot path. Rooms call the
// Recorder while holding their lock, so every hook only enqueues; a single
// worker drains the queue into the presence ledger and the event mirror.
package activity

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go-roomchat/internal/chat"
)

const (
	DefaultBuffer = 1024
	sinkTimeout   = 5 * time.Second
)

// PresenceStore persists join/leave transitions.
type PresenceStore interface {
	RecordJoin(ctx context.Context, room, name string, at time.Time) error
	RecordLeave(ctx context.Context, room, name string, at time.Time) error
}

// Publisher mirrors activity for observers outside the process.
type Publisher interface {
	Publish(ctx context.Context, room string, payload []byte) error
}

type itemKind int

const (
	itemJoin itemKind = iota
	itemLeave
	itemEvent
)

type item struct {
	kind  itemKind
	room  string
	name  string
	at    time.Time
	event chat.Event
}

// PresenceChange is the mirrored form of a join or leave.
type PresenceChange struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder implements chat.Observer.
type Recorder struct {
	presence  PresenceStore
	publisher Publisher

	mu     sync.RWMutex
	closed bool
	queue  chan item
	done   chan struct{}

	dropped atomic.Int64
}

var _ chat.Observer = (*Recorder)(nil)

// NewRecorder starts the worker. Either sink may be nil.
func NewRecorder(presence PresenceStore, publisher Publisher, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		presence:  presence,
		publisher: publisher,
		queue:     make(chan item, buffer),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) MemberJoined(room, name string, at time.Time) {
	r.enqueue(item{kind: itemJoin, room: room, name: name, at: at})
}

func (r *Recorder) MemberLeft(room, name string, at time.Time) {
	r.enqueue(item{kind: itemLeave, room: room, name: name, at: at})
}

func (r *Recorder) EventPosted(ev chat.Event) {
	r.enqueue(item{kind: itemEvent, room: ev.Room, event: ev})
}

// Dropped counts items discarded because the queue was full or closed.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) enqueue(it item) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- it:
	default:
		if r.dropped.Add(1)%100 == 1 {
			log.Printf("activity: queue full, dropped %d items so far", r.dropped.Load())
		}
	}
}

// Close stops accepting items and waits for the queue to drain.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for it := range r.queue {
		r.handle(it)
	}
}

func (r *Recorder) handle(it item) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	switch it.kind {
	case itemJoin:
		if r.presence != nil {
			if err := r.presence.RecordJoin(ctx, it.room, it.name, it.at); err != nil {
				log.Printf("activity: record join %s@%s: %v", it.name, it.room, err)
			}
		}
		r.publishPresence(ctx, "join", it)
	case itemLeave:
		if r.presence != nil {
			if err := r.presence.RecordLeave(ctx, it.room, it.name, it.at); err != nil {
				log.Printf("activity: record leave %s@%s: %v", it.name, it.room, err)
			}
		}
		r.publishPresence(ctx, "leave", it)
	case itemEvent:
		if r.publisher == nil {
			return
		}
		payload, err := chat.Encode(it.event)
		if err != nil {
			log.Printf("activity: encode event: %v", err)
			return
		}
		r.publish(ctx, it.room, payload)
	}
}

func (r *Recorder) publishPresence(ctx context.Context, typ string, it item) {
	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(PresenceChange{Type: typ, Room: it.room, Name: it.name, Timestamp: it.at})
	if err != nil {
		return
	}
	r.publish(ctx, it.room, payload)
}

func (r *Recorder) publish(ctx context.Context, room string, payload []byte) {
	if err := r.publisher.Publish(ctx, room, payload); err != nil {
		log.Printf("activity: publish to %s: %v", room, err)
	}
}
