// Package wire implements the framed message codec carried over the
// client-broker stream and the broker-worker conversation channel
// (spec.md §4.1).
package wire

import "fmt"

// Tag identifies a Message variant. Numeric values are fixed by the wire
// protocol and must not be renumbered.
type Tag uint32

const (
	TagFinish Tag = 1
	TagText   Tag = 2
	TagPrompt Tag = 3
	TagReply  Tag = 4
)

func (t Tag) String() string {
	switch t {
	case TagFinish:
		return "FINISH"
	case TagText:
		return "TEXT"
	case TagPrompt:
		return "PROMPT"
	case TagReply:
		return "REPLY"
	default:
		return fmt.Sprintf("Tag(%d)", uint32(t))
	}
}

// maxPayloadLen is the largest payload length the codec will accept
// (2^31-1, per spec.md §4.1/§8).
const maxPayloadLen = 1<<31 - 1

// Message is the tagged union carried by the wire codec: FINISH, TEXT,
// PROMPT or REPLY. Exactly one of Status, Echo or Payload is meaningful,
// depending on Tag.
type Message struct {
	Tag Tag

	Status int32 // valid when Tag == TagFinish
	Echo   bool  // valid when Tag == TagPrompt

	Payload []byte // valid when Tag == TagText or TagReply
}

// Finish builds a FINISH message with the given status.
func Finish(status int32) Message { return Message{Tag: TagFinish, Status: status} }

// Text builds a TEXT message.
func Text(s string) Message { return Message{Tag: TagText, Payload: []byte(s)} }

// Prompt builds a PROMPT message; echo selects echo-on (true) vs echo-off.
func Prompt(echo bool) Message { return Message{Tag: TagPrompt, Echo: echo} }

// Reply builds a REPLY message.
func Reply(payload []byte) Message { return Message{Tag: TagReply, Payload: payload} }

// Scrub zeroes m.Payload in place. It is the caller's responsibility to
// call Scrub on any message that carried a secret (spec.md I3) once the
// payload is no longer needed; the zero write defeats compiler/optimizer
// elision because it operates through the slice's backing array, which
// escapes to the I/O call that produced or consumed it.
func (m *Message) Scrub() {
	for i := range m.Payload {
		m.Payload[i] = 0
	}
}
