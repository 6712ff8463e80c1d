package chat

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultHistorySize    = 50
	DefaultSendBuffer     = 256
	DefaultMaxMessageSize = 2 << 20
	DefaultRateLimit      = rate.Limit(10)
	DefaultRateBurst      = 20
)

// ErrHubClosed is returned by Join once Shutdown has started.
var ErrHubClosed = errors.New("chat: hub shut down")

// Options tunes rooms and sessions. Zero values take the defaults above.
type Options struct {
	HistorySize    int
	SendBuffer     int
	MaxMessageSize int64
	RateLimit      rate.Limit
	RateBurst      int
	Location       *time.Location
	Now            func() time.Time
	Observer       Observer
}

func (o Options) sanitize() Options {
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.RateLimit <= 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.RateBurst <= 0 {
		o.RateBurst = DefaultRateBurst
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// RoomInfo is a point-in-time view of a live room.
type RoomInfo struct {
	Name  string   `json:"room"`
	Users []string `json:"users"`
}

// Hub is the registry of live rooms and sessions. Rooms are created on the
// first join and evicted once their last member leaves.
//
// Lock order is hub.mu before Room.mu; Join never holds both.
type Hub struct {
	opts Options

	mu       sync.Mutex
	rooms    map[string]*Room
	sessions map[*Client]struct{}
	closing  bool
	wg       sync.WaitGroup
}

func NewHub(opts Options) *Hub {
	return &Hub{
		opts:     opts.sanitize(),
		rooms:    make(map[string]*Room),
		sessions: make(map[*Client]struct{}),
	}
}

// Join seats m in the named room, creating the room if needed. On
// ErrNameUnavailable nothing is left behind.
func (h *Hub) Join(roomName, requested string, m Member) (*Room, string, error) {
	for {
		room, err := h.roomFor(roomName)
		if err != nil {
			return nil, "", err
		}

		name, _, err := room.Join(requested, m)
		switch {
		case errors.Is(err, ErrRoomClosed):
			continue
		case err != nil:
			h.evictIfEmpty(room)
			return nil, "", err
		}
		log.Printf("hub: %q joined room %q", name, roomName)
		return room, name, nil
	}
}

// Leave releases name from room and evicts the room when it empties.
// Calling it again for the same member is a no-op.
func (h *Hub) Leave(room *Room, name string, m Member) {
	removed, remaining := room.Leave(name, m)
	if !removed {
		return
	}
	log.Printf("hub: %q left room %q (%d remaining)", name, room.Name(), remaining)
	if remaining == 0 {
		h.evictIfEmpty(room)
	}
}

// Post routes an accepted inbound payload to the sender's room.
func (h *Hub) Post(room *Room, sender string, from Member, in Inbound) (Event, error) {
	return room.Post(sender, from, in)
}

// Room returns the live room with the given name.
func (h *Hub) Room(name string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[name]
	return r, ok
}

// Rooms lists live rooms sorted by name.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, RoomInfo{Name: r.Name(), Users: r.Members()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (h *Hub) roomFor(name string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return nil, ErrHubClosed
	}
	r, ok := h.rooms[name]
	if !ok {
		r = NewRoom(name, h.opts)
		h.rooms[name] = r
		log.Printf("hub: room %q created", name)
	}
	return r, nil
}

func (h *Hub) evictIfEmpty(room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room.Name()] != room {
		return
	}
	if room.tryClose() {
		delete(h.rooms, room.Name())
		log.Printf("hub: room %q evicted", room.Name())
	}
}

// attach tracks a session so Shutdown can close it.
func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	_, ok := h.sessions[c]
	delete(h.sessions, c)
	h.mu.Unlock()
	if ok {
		h.wg.Done()
	}
}

// Shutdown refuses new joins, closes every session and waits for their
// pumps to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.sessions))
	for c := range h.sessions {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	log.Printf("hub: shutting down %d sessions", len(clients))
	for _, c := range clients {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("hub: shutdown complete")
		return nil
	case <-ctx.Done():
		log.Println("hub: shutdown timed out, some sessions may still be running")
		return ctx.Err()
	}
}
