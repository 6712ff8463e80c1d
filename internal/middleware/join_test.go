package myMiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJoin(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    JoinParams
		wantErr error
	}{
		{name: "room and name", query: "room=lobby&name=Alice", want: JoinParams{Room: "lobby", Name: "Alice"}},
		{name: "name is optional", query: "room=lobby", want: JoinParams{Room: "lobby"}},
		{name: "room is trimmed", query: "room=%20lobby%20&name=Bob", want: JoinParams{Room: "lobby", Name: "Bob"}},
		{name: "missing room", query: "name=Alice", wantErr: ErrMissingRoom},
		{name: "blank room", query: "room=%20%20&name=Alice", wantErr: ErrMissingRoom},
		{name: "room too long", query: "room=" + strings.Repeat("r", MaxRoomLength+1), wantErr: ErrInvalidRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws?"+tt.query, nil)
			got, err := ParseJoin(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireJoin(t *testing.T) {
	var seen JoinParams
	var called bool
	h := RequireJoin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen, _ = JoinFrom(r.Context())
	}))

	t.Run("rejects before the handler", func(t *testing.T) {
		called = false
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?name=Alice", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), ErrMissingRoom.Error())
		assert.False(t, called)
	})

	t.Run("stores params in context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?room=lobby&name=Alice", nil))
		assert.True(t, called)
		assert.Equal(t, JoinParams{Room: "lobby", Name: "Alice"}, seen)
	})
}

func TestJoinFromEmptyContext(t *testing.T) {
	_, ok := JoinFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
