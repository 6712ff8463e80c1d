package chat

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRoomClosed is returned by Join on a room that was evicted from the hub
// after the caller looked it up. The hub retries on a fresh room.
var ErrRoomClosed = errors.New("chat: room closed")

// ErrNotMember is returned by Post when the sender no longer holds a seat.
var ErrNotMember = errors.New("chat: sender is not a room member")

// Member is the room's handle on a connection.
type Member interface {
	// Send queues a frame without blocking and reports whether it was queued.
	Send(frame []byte) bool
}

// Observer hears about room activity. Calls are made while the room lock is
// held, so implementations must only enqueue.
type Observer interface {
	MemberJoined(room, name string, at time.Time)
	MemberLeft(room, name string, at time.Time)
	EventPosted(ev Event)
}

type nopObserver struct{}

func (nopObserver) MemberJoined(string, string, time.Time) {}
func (nopObserver) MemberLeft(string, string, time.Time)   {}
func (nopObserver) EventPosted(Event)                      {}

// Room is one chat namespace: members keyed by display name plus a bounded
// history. Join, Leave and Post are serialised on mu, and every broadcast is
// enqueued inside the same critical section as the state change it reports.
type Room struct {
	name string

	mu       sync.Mutex
	members  map[string]Member
	order    []string // join order
	history  *historyBuffer
	lastTime time.Time
	closed   bool

	now      func() time.Time
	loc      *time.Location
	observer Observer
}

// NewRoom creates an empty room. Zero-valued options fall back to defaults.
func NewRoom(name string, opts Options) *Room {
	opts = opts.sanitize()
	return &Room{
		name:     name,
		members:  make(map[string]Member),
		history:  newHistoryBuffer(opts.HistorySize),
		now:      opts.Now,
		loc:      opts.Location,
		observer: opts.Observer,
	}
}

// Name returns the room key.
func (r *Room) Name() string {
	return r.name
}

// Join reserves a unique name for m, hands it the history and presence, and
// announces it to the room. The newcomer sees, in order: assign (only when the
// name changed) and history; then everyone sees users and the join notice.
// The returned history is the snapshot the newcomer was sent.
func (r *Room) Join(requested string, m Member) (string, []Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", nil, ErrRoomClosed
	}

	name, changed, err := ResolveName(requested, r.has)
	if err != nil {
		return "", nil, err
	}

	history := r.history.snapshot()
	r.members[name] = m
	r.order = append(r.order, name)

	if changed {
		r.sendTo(m, Assign{Name: name, Room: r.name})
	}
	r.sendTo(m, History{Room: r.name, Messages: history})
	r.broadcast(Users{Room: r.name, Users: r.presence()})

	at := r.stamp()
	r.observer.MemberJoined(r.name, name, at)
	r.announce(fmt.Sprintf("%s joined room '%s'.", name, r.name), at)
	return name, history, nil
}

// Leave removes m if it still holds name. It is a no-op for an absent or
// replaced member, so racing teardown paths are safe. It returns whether a
// member was removed and how many remain.
func (r *Room) Leave(name string, m Member) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.members[name]; !ok || cur != m {
		return false, len(r.members)
	}

	delete(r.members, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.broadcast(Users{Room: r.name, Users: r.presence()})

	at := r.stamp()
	r.observer.MemberLeft(r.name, name, at)
	r.announce(fmt.Sprintf("%s left room '%s'.", name, r.name), at)
	return true, len(r.members)
}

// Post stamps an inbound payload from the member holding sender, appends it
// to history and broadcasts it to every member, sender included.
func (r *Room) Post(sender string, from Member, in Inbound) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.members[sender]; !ok || cur != from {
		return Event{}, ErrNotMember
	}

	ev := Event{
		Type:      in.Type,
		Sender:    sender,
		Text:      in.Text,
		ImageData: in.ImageData,
		MsgID:     in.MsgID,
	}
	return r.post(ev), nil
}

// Notice posts a system message to the room.
func (r *Room) Notice(text string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.post(Event{Type: KindSystem, Sender: SystemSender, Text: text})
}

// Members returns the presence snapshot, ordered by join time.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence()
}

// History returns the buffered events, oldest first.
func (r *Room) History() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.snapshot()
}

// Len returns the member count.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// tryClose marks an empty room closed so no later Join can land in it.
func (r *Room) tryClose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return false
	}
	r.closed = true
	return true
}

// post must be called with mu held.
func (r *Room) post(ev Event) Event {
	ev = r.seal(ev)
	r.history.push(ev)
	r.broadcast(ev)
	r.observer.EventPosted(ev)
	return ev
}

// announce broadcasts a join/leave notice. Notices are not kept in history:
// a newcomer's history shows what was said, not who came and went.
func (r *Room) announce(text string, at time.Time) {
	ev := r.seal(Event{Type: KindSystem, Sender: SystemSender, Text: text, Timestamp: at})
	r.broadcast(ev)
	r.observer.EventPosted(ev)
}

func (r *Room) seal(ev Event) Event {
	ev.Room = r.name
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.stamp()
	}
	if ev.MsgID == "" {
		ev.MsgID = uuid.NewString()
	}
	return ev
}

// stamp returns the current time, clamped so it never runs backwards within
// this room.
func (r *Room) stamp() time.Time {
	t := r.now().In(r.loc)
	if t.Before(r.lastTime) {
		t = r.lastTime
	}
	r.lastTime = t
	return t
}

func (r *Room) has(name string) bool {
	_, ok := r.members[name]
	return ok
}

func (r *Room) presence() []string {
	return append([]string(nil), r.order...)
}

func (r *Room) broadcast(o Outbound) {
	frame, err := Encode(o)
	if err != nil {
		log.Printf("room %s: encode %s: %v", r.name, o.Kind(), err)
		return
	}
	for _, name := range r.order {
		r.members[name].Send(frame)
	}
}

func (r *Room) sendTo(m Member, o Outbound) {
	frame, err := Encode(o)
	if err != nil {
		log.Printf("room %s: encode %s: %v", r.name, o.Kind(), err)
		return
	}
	m.Send(frame)
}

// historyBuffer is a fixed-capacity ring; the oldest entry is overwritten.
type historyBuffer struct {
	buf   []Event
	start int
	count int
}

func newHistoryBuffer(size int) *historyBuffer {
	return &historyBuffer{buf: make([]Event, size)}
}

func (h *historyBuffer) push(ev Event) {
	if len(h.buf) == 0 {
		return
	}
	if h.count < len(h.buf) {
		h.buf[(h.start+h.count)%len(h.buf)] = ev
		h.count++
		return
	}
	h.buf[h.start] = ev
	h.start = (h.start + 1) % len(h.buf)
}

func (h *historyBuffer) snapshot() []Event {
	out := make([]Event, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}
