package chat

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind is the "type" tag carried by every frame on the wire.
type Kind string

const (
	KindChat    Kind = "chat"
	KindSystem  Kind = "system"
	KindImage   Kind = "image"
	KindHistory Kind = "history"
	KindUsers   Kind = "users"
	KindAssign  Kind = "assign"
	KindError   Kind = "error"
)

// SystemSender is the sender name stamped on hub-generated notices.
const SystemSender = "system"

// ReasonNameUnavailable is sent in an error frame when no unique name exists.
const ReasonNameUnavailable = "name_unavailable"

const maxMsgIDLength = 64

// ---------------------------------------------
// Outbound events
// ---------------------------------------------

// Outbound is the closed set of frames the server pushes to a client.
// The unexported method keeps the set sealed to this package.
type Outbound interface {
	Kind() Kind
	outbound()
}

// Event is a chat, system, or image message. Events are what a Room keeps
// in its history and broadcasts to its members. Treat as immutable.
type Event struct {
	Type      Kind
	Sender    string
	Text      string
	ImageData string
	Room      string
	MsgID     string
	Timestamp time.Time
}

// History is sent once to a newcomer right after a successful join.
type History struct {
	Room     string
	Messages []Event
}

// Users is the presence snapshot: member names ordered by join time.
type Users struct {
	Room  string
	Users []string
}

// Assign tells a client that its effective name differs from the request.
type Assign struct {
	Name string
	Room string
}

// ErrorFrame is fatal to the receiving connection; the server closes right after.
type ErrorFrame struct {
	Text   string
	Reason string
}

func (e Event) Kind() Kind    { return e.Type }
func (History) Kind() Kind    { return KindHistory }
func (Users) Kind() Kind      { return KindUsers }
func (Assign) Kind() Kind     { return KindAssign }
func (ErrorFrame) Kind() Kind { return KindError }
func (Event) outbound()       {}
func (History) outbound()     {}
func (Users) outbound()       {}
func (Assign) outbound()      {}
func (ErrorFrame) outbound()  {}

type eventWire struct {
	Type      Kind      `json:"type"`
	Text      string    `json:"text,omitempty"`
	ImageData string    `json:"imageData,omitempty"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room,omitempty"`
	MsgID     string    `json:"msgId,omitempty"`
}

type historyWire struct {
	Type     Kind        `json:"type"`
	Room     string      `json:"room"`
	Messages []eventWire `json:"messages"`
}

type usersWire struct {
	Type  Kind     `json:"type"`
	Room  string   `json:"room,omitempty"`
	Users []string `json:"users"`
}

type assignWire struct {
	Type Kind   `json:"type"`
	Name string `json:"name"`
	Room string `json:"room,omitempty"`
}

type errorWire struct {
	Type   Kind   `json:"type"`
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

func (e Event) wire() eventWire {
	return eventWire{
		Type:      e.Type,
		Text:      e.Text,
		ImageData: e.ImageData,
		Sender:    e.Sender,
		Timestamp: e.Timestamp,
		Room:      e.Room,
		MsgID:     e.MsgID,
	}
}

// MarshalJSON renders the event in its wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.wire())
}

// Encode serialises an outbound frame.
func Encode(o Outbound) ([]byte, error) {
	switch v := o.(type) {
	case Event:
		switch v.Type {
		case KindChat, KindSystem, KindImage:
			return json.Marshal(v.wire())
		default:
			return nil, fmt.Errorf("encode: event has non-message kind %q", v.Type)
		}
	case History:
		msgs := make([]eventWire, 0, len(v.Messages))
		for _, m := range v.Messages {
			msgs = append(msgs, m.wire())
		}
		return json.Marshal(historyWire{Type: KindHistory, Room: v.Room, Messages: msgs})
	case Users:
		users := v.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(usersWire{Type: KindUsers, Room: v.Room, Users: users})
	case Assign:
		return json.Marshal(assignWire{Type: KindAssign, Name: v.Name, Room: v.Room})
	case ErrorFrame:
		return json.Marshal(errorWire{Type: KindError, Text: v.Text, Reason: v.Reason})
	default:
		return nil, fmt.Errorf("encode: unknown outbound %T", o)
	}
}

// ---------------------------------------------
// Inbound payloads
// ---------------------------------------------

// Inbound is a validated client payload, ready to be stamped into an Event.
type Inbound struct {
	Type      Kind
	Text      string
	ImageData string
	MsgID     string
}

// WSMessage is the structured JSON a client may send.
// A missing type is read as chat, like a bare text frame.
type WSMessage struct {
	Type      *string `json:"type"`
	Text      string  `json:"text"`
	ImageData string  `json:"imageData"`
	MsgID     string  `json:"msgId"`
}

// ParseInbound classifies a raw client frame. The boolean is false when the
// payload must be discarded without any response.
//
// A frame holding a valid JSON object is structured input; a JSON string
// literal is unwrapped to bare text; anything else, including broken JSON, is
// taken verbatim as bare text.
func ParseInbound(raw []byte) (Inbound, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return Inbound{}, false
	}

	switch trimmed[0] {
	case '{':
		if !json.Valid([]byte(trimmed)) {
			break
		}
		// Well-formed JSON with a wrong field type is a bad structured
		// payload, not text.
		var msg WSMessage
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
			return Inbound{}, false
		}
		return classify(msg)
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return bareText(s)
		}
	}
	return bareText(trimmed)
}

func bareText(text string) (Inbound, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Inbound{}, false
	}
	return Inbound{Type: KindChat, Text: text}, true
}

func classify(msg WSMessage) (Inbound, bool) {
	kind := KindChat
	if msg.Type != nil {
		kind = Kind(*msg.Type)
	}

	in := Inbound{Type: kind, Text: strings.TrimSpace(msg.Text)}
	if id := strings.TrimSpace(msg.MsgID); len(id) <= maxMsgIDLength {
		in.MsgID = id
	}

	switch kind {
	case KindChat:
		if in.Text == "" {
			return Inbound{}, false
		}
		return in, true
	case KindImage:
		if !validImageData(msg.ImageData) {
			return Inbound{}, false
		}
		in.ImageData = msg.ImageData
		return in, true
	default:
		return Inbound{}, false
	}
}

// validImageData accepts a base64 data URL with an image media type.
func validImageData(data string) bool {
	if !strings.HasPrefix(data, "data:image/") {
		return false
	}
	_, payload, ok := strings.Cut(data, ";base64,")
	if !ok || payload == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(payload)
	return err == nil
}
