package chat

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
)

// SessionState is where a Client is in its lifecycle. It only moves forward.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is the session for one websocket connection: it joins a room, pumps
// inbound frames to it and drains its outbound queue to the peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	addr string

	// Buffered channel of outbound frames. Never closed; done signals teardown.
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	closing    atomic.Bool

	limiter        *rate.Limiter
	maxMessageSize int64
	createdAt      time.Time

	mu    sync.Mutex
	state SessionState
	room  *Room
	name  string
}

// NewClient wraps an upgraded connection. Call Run to drive it.
func NewClient(hub *Hub, conn *websocket.Conn, addr string) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		addr:           addr,
		send:           make(chan []byte, hub.opts.SendBuffer),
		done:           make(chan struct{}),
		writerDone:     make(chan struct{}),
		limiter:        rate.NewLimiter(hub.opts.RateLimit, hub.opts.RateBurst),
		maxMessageSize: hub.opts.MaxMessageSize,
		createdAt:      hub.opts.Now(),
	}
}

// Name is the assigned display name, empty until joined.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// State reports the lifecycle state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CreatedAt is when the connection was accepted.
func (c *Client) CreatedAt() time.Time {
	return c.createdAt
}

// Send implements Member. It never blocks: a full queue means the peer is
// not keeping up, and the session is closed instead of stalling the room.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		// Close leaves the room, whose lock the caller may hold.
		if c.closing.CompareAndSwap(false, true) {
			log.Printf("client %s: send buffer full, closing", c.addr)
			go c.Close()
		}
		return false
	}
}

// Close moves the session to Closed. The room seat is released exactly once
// no matter how many teardown paths race here.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		room, name := c.room, c.name
		c.mu.Unlock()

		if room != nil {
			c.hub.Leave(room, name, c)
		}
		close(c.done)
	})
}

// Run drives the session: Connecting -> Joined -> Closed. It returns once the
// connection is finished and the writer has flushed.
func (c *Client) Run(roomName, requested string) {
	go c.writePump()

	attached := c.hub.attach(c)
	defer func() {
		c.Close()
		<-c.writerDone
		if attached {
			c.hub.detach(c)
		}
	}()

	if !attached {
		c.reject("server is shutting down", "shutdown")
		return
	}
	if !c.join(roomName, requested) {
		return
	}
	c.readPump()
}

func (c *Client) join(roomName, requested string) bool {
	room, name, err := c.hub.Join(roomName, requested, c)
	if err != nil {
		if errors.Is(err, ErrNameUnavailable) {
			c.reject("name is not available in this room", ReasonNameUnavailable)
		} else {
			c.reject("unable to join room", "join_failed")
		}
		log.Printf("client %s: join %q rejected: %v", c.addr, roomName, err)
		return false
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// Closed while joining: the seat was never recorded, release it here.
		c.mu.Unlock()
		c.hub.Leave(room, name, c)
		return false
	}
	c.room, c.name, c.state = room, name, StateJoined
	c.mu.Unlock()
	return true
}

// reject queues an error frame; Close lets the writer flush it before the
// close handshake.
func (c *Client) reject(text, reason string) {
	frame, err := Encode(ErrorFrame{Text: text, Reason: reason})
	if err == nil {
		c.Send(frame)
	}
	c.Close()
}

// readPump pumps frames from the websocket connection to the room.
func (c *Client) readPump() {
	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("client %s: read error: %v", c.addr, err)
			}
			return
		}

		in, ok := ParseInbound(raw)
		if !ok {
			continue
		}
		if !c.limiter.Allow() {
			continue
		}
		if _, err := c.hub.Post(c.room, c.name, c, in); err != nil {
			return
		}
	}
}

// writePump pumps frames from the outbound queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) || !c.drainQueued() {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			// Flush what was queued before teardown, e.g. an error frame.
			c.drainQueued()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) drainQueued() bool {
	n := len(c.send)
	for i := 0; i < n; i++ {
		if !c.write(<-c.send) {
			return false
		}
	}
	return true
}

func (c *Client) write(frame []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("client %s: write error: %v", c.addr, err)
		return false
	}
	return true
}
