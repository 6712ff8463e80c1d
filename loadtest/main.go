package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

type frame struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type stats struct {
	connected atomic.Int64
	rejected  atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
}

func main() {
	wsURL := pflag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	rooms := pflag.Int("rooms", 10, "number of rooms")
	users := pflag.Int("users", 20, "clients per room")
	msgs := pflag.Int("messages", 20, "messages per client")
	interval := pflag.Duration("interval", 10*time.Millisecond, "pause between messages")
	pflag.Parse()

	log.Printf("🔥 STARTING STRESS TEST: %d rooms x %d users, %d messages each...", *rooms, *users, *msgs)
	start := time.Now()

	var st stats
	var wg sync.WaitGroup
	for r := 0; r < *rooms; r++ {
		for u := 0; u < *users; u++ {
			wg.Add(1)
			// Every client asks for the same name, so each join also exercises suffixing.
			go func(room int) {
				defer wg.Done()
				runClient(&st, *wsURL, fmt.Sprintf("load-%d", room), "user", *msgs, *interval)
			}(r)
		}
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: connected=%d rejected=%d sent=%d received=%d",
		time.Since(start).Round(time.Millisecond),
		st.connected.Load(), st.rejected.Load(), st.sent.Load(), st.received.Load())
	if st.rejected.Load() > 0 {
		os.Exit(1)
	}
}

// runClient joins room, sends msgs chat frames and counts every chat frame
// echoed back until the server closes or the drain window passes.
func runClient(st *stats, endpoint, room, name string, msgs int, interval time.Duration) {
	u, err := url.Parse(endpoint)
	if err != nil {
		log.Fatalf("❌ Bad URL: %v", err)
	}
	q := u.Query()
	q.Set("room", room)
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", room, err)
		st.rejected.Add(1)
		return
	}
	defer conn.Close()
	st.connected.Add(1)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(data, &f) != nil {
				continue
			}
			switch f.Type {
			case "chat":
				st.received.Add(1)
			case "error":
				log.Printf("❌ Rejected [%s]: %s", room, f.Text)
				st.rejected.Add(1)
				return
			}
		}
	}()

	for i := 0; i < msgs; i++ {
		msg := map[string]string{
			"type": "chat",
			"text": fmt.Sprintf("LoadTest Msg %d", i),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", room, err)
			break
		}
		st.sent.Add(1)
		time.Sleep(interval)
	}

	// Give the room time to fan out the tail of the burst.
	time.Sleep(time.Second)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-readerDone:
	case <-time.After(2 * time.Second):
	}
}
