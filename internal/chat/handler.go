package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"

	myMiddleware "go-roomchat/internal/middleware"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler builds the HTTP surface of the hub. allowedOrigins holds
// scheme://host entries; "*" or an empty list allows every origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeWs upgrades a join request and runs the session until it closes.
// Mount it behind myMiddleware.RequireJoin.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	params, ok := myMiddleware.JoinFrom(r.Context())
	if !ok {
		var err error
		if params, err = myMiddleware.ParseJoin(r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := NewClient(h.hub, conn, r.RemoteAddr)
	go client.Run(params.Room, params.Name)
}

// ListRooms returns every live room with its members.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.hub.Rooms())
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if n, ok := normalizeOrigin(o); ok {
			set[n] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send Origin.
			return true
		}
		n, ok := normalizeOrigin(origin)
		if !ok {
			return false
		}
		_, allowed := set[n]
		if !allowed {
			log.Printf("Blocked WebSocket connection from disallowed origin: %q", origin)
		}
		return allowed
	}
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
