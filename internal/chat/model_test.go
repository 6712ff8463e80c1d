package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pngPixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		ok     bool
		expect Inbound
	}{
		{name: "bare text", raw: "hello there", ok: true, expect: Inbound{Type: KindChat, Text: "hello there"}},
		{name: "bare text is trimmed", raw: "  hi \n", ok: true, expect: Inbound{Type: KindChat, Text: "hi"}},
		{name: "json string literal", raw: `"quoted"`, ok: true, expect: Inbound{Type: KindChat, Text: "quoted"}},
		{name: "number is bare text", raw: "42", ok: true, expect: Inbound{Type: KindChat, Text: "42"}},
		{name: "broken json object is bare text", raw: "{not json", ok: true, expect: Inbound{Type: KindChat, Text: "{not json"}},
		{name: "structured chat", raw: `{"type":"chat","text":" yo "}`, ok: true, expect: Inbound{Type: KindChat, Text: "yo"}},
		{name: "chat keeps msgId", raw: `{"type":"chat","text":"yo","msgId":"abc"}`, ok: true, expect: Inbound{Type: KindChat, Text: "yo", MsgID: "abc"}},
		{name: "missing type reads as chat", raw: `{"text":"legacy"}`, ok: true, expect: Inbound{Type: KindChat, Text: "legacy"}},
		{name: "image with caption", raw: `{"type":"image","imageData":"` + pngPixel + `","text":"pic"}`, ok: true, expect: Inbound{Type: KindImage, Text: "pic", ImageData: pngPixel}},
		{name: "image without caption", raw: `{"type":"image","imageData":"` + pngPixel + `"}`, ok: true, expect: Inbound{Type: KindImage, ImageData: pngPixel}},

		{name: "empty frame", raw: "", ok: false},
		{name: "whitespace frame", raw: "   ", ok: false},
		{name: "blank json string", raw: `"  "`, ok: false},
		{name: "chat without text", raw: `{"type":"chat"}`, ok: false},
		{name: "chat with blank text", raw: `{"type":"chat","text":"   "}`, ok: false},
		{name: "unknown type", raw: `{"type":"bogus","text":"x"}`, ok: false},
		{name: "client cannot send system", raw: `{"type":"system","text":"x"}`, ok: false},
		{name: "image without data", raw: `{"type":"image","text":"x"}`, ok: false},
		{name: "image not a data url", raw: `{"type":"image","imageData":"http://example.com/a.png"}`, ok: false},
		{name: "image bad base64", raw: `{"type":"image","imageData":"data:image/png;base64,@@@"}`, ok: false},
		{name: "image data of wrong type", raw: `{"type":"image","imageData":42}`, ok: false},
		{name: "text of wrong type", raw: `{"type":"chat","text":123}`, ok: false},
		{name: "type of wrong type", raw: `{"type":7,"text":"x"}`, ok: false},
		{name: "image non image media type", raw: `{"type":"image","imageData":"data:text/plain;base64,aGk="}`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseInbound([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expect, got)
			}
		})
	}
}

func TestParseInboundDropsOversizedMsgID(t *testing.T) {
	long := make([]byte, maxMsgIDLength+1)
	for i := range long {
		long[i] = 'a'
	}
	got, ok := ParseInbound([]byte(`{"type":"chat","text":"x","msgId":"` + string(long) + `"}`))
	require.True(t, ok)
	assert.Empty(t, got.MsgID)
}

func decode(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(frame, &m))
	return m
}

func TestEncodeShapes(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("chat", func(t *testing.T) {
		b, err := Encode(Event{Type: KindChat, Sender: "Alice", Text: "hi", Room: "lobby", MsgID: "m1", Timestamp: ts})
		require.NoError(t, err)
		m := decode(t, b)
		assert.Equal(t, "chat", m["type"])
		assert.Equal(t, "Alice", m["sender"])
		assert.Equal(t, "hi", m["text"])
		assert.Equal(t, "lobby", m["room"])
		assert.Equal(t, "m1", m["msgId"])
		assert.Equal(t, "2024-05-01T12:00:00Z", m["timestamp"])
		assert.NotContains(t, m, "imageData")
	})

	t.Run("image without caption omits text", func(t *testing.T) {
		b, err := Encode(Event{Type: KindImage, Sender: "Bob", ImageData: pngPixel, Room: "lobby", Timestamp: ts})
		require.NoError(t, err)
		m := decode(t, b)
		assert.Equal(t, "image", m["type"])
		assert.Equal(t, pngPixel, m["imageData"])
		assert.NotContains(t, m, "text")
	})

	t.Run("empty history has an empty array", func(t *testing.T) {
		b, err := Encode(History{Room: "lobby"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"history","room":"lobby","messages":[]}`, string(b))
	})

	t.Run("users", func(t *testing.T) {
		b, err := Encode(Users{Room: "lobby", Users: []string{"Alice", "Alice-2"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"users","room":"lobby","users":["Alice","Alice-2"]}`, string(b))
	})

	t.Run("assign", func(t *testing.T) {
		b, err := Encode(Assign{Name: "Alice-2", Room: "lobby"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"assign","name":"Alice-2","room":"lobby"}`, string(b))
	})

	t.Run("error", func(t *testing.T) {
		b, err := Encode(ErrorFrame{Text: "nope", Reason: ReasonNameUnavailable})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"error","text":"nope","reason":"name_unavailable"}`, string(b))
	})

	t.Run("event with presence kind is refused", func(t *testing.T) {
		_, err := Encode(Event{Type: KindUsers})
		assert.Error(t, err)
	})
}
