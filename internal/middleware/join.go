package myMiddleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"
)

// MaxRoomLength caps a room name, in runes.
const MaxRoomLength = 64

var (
	ErrMissingRoom = errors.New("room is required")
	ErrInvalidRoom = errors.New("room name is too long")
)

// 1. Context key for the parsed join request
type contextKey string

const JoinKey contextKey = "join_params"

// JoinParams is what a client asks for when it connects.
// Name may be empty; the hub picks one.
type JoinParams struct {
	Name string
	Room string
}

// ParseJoin validates the structural part of a join request.
// It never consults room state.
func ParseJoin(r *http.Request) (JoinParams, error) {
	q := r.URL.Query()
	room := strings.TrimSpace(q.Get("room"))
	if room == "" {
		return JoinParams{}, ErrMissingRoom
	}
	if utf8.RuneCountInString(room) > MaxRoomLength {
		return JoinParams{}, ErrInvalidRoom
	}
	return JoinParams{Name: q.Get("name"), Room: room}, nil
}

// 2. The middleware rejects malformed joins before the upgrade
func RequireJoin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := ParseJoin(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), JoinKey, params)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// JoinFrom returns the params stored by RequireJoin.
func JoinFrom(ctx context.Context) (JoinParams, bool) {
	p, ok := ctx.Value(JoinKey).(JoinParams)
	return p, ok
}
