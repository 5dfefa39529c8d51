package wire

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []Message{
		Finish(0),
		Finish(1),
		Text("Username: "),
		Text(""),
		Prompt(true),
		Prompt(false),
		Reply([]byte("alice")),
		Reply(nil),
	}

	for _, want := range cases {
		var buf bytes.Buffer
		if err := WriteMessage(&buf, want); err != nil {
			t.Fatalf("WriteMessage(%v) error = %v", want.Tag, err)
		}

		got, err := ReadMessage(&buf)
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}

		if got.Tag != want.Tag || got.Status != want.Status || got.Echo != want.Echo || !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestRoundTripOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		done <- WriteMessage(client, Text("hello"))
	}()

	got, err := ReadMessage(server)
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if string(got.Payload) != "hello" {
		t.Errorf("Payload = %q, want 'hello'", got.Payload)
	}
}

func TestReadMessageCleanEOF(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader(nil))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("ReadMessage() error = %v, want io.EOF", err)
	}
}

func TestReadMessageTruncatedFrameIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Text("hello")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, err := ReadMessage(truncated)
	if !errors.Is(err, MalformedErr) {
		t.Fatalf("ReadMessage() error = %v, want MalformedErr", err)
	}
}

func TestReadMessageUnknownTagIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	if err := writeUint32(&buf, 99); err != nil {
		t.Fatalf("writeUint32() error = %v", err)
	}

	_, err := ReadMessage(&buf)
	if !errors.Is(err, MalformedErr) {
		t.Fatalf("ReadMessage() error = %v, want MalformedErr", err)
	}
}

func TestPayloadZeroLengthRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Text("")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if len(got.Payload) != 0 {
		t.Errorf("Payload = %v, want empty", got.Payload)
	}
}

func TestOverlongPayloadRejected(t *testing.T) {
	var buf bytes.Buffer
	if err := writeUint32(&buf, uint32(TagText)); err != nil {
		t.Fatalf("writeUint32() error = %v", err)
	}
	if err := writeUint32(&buf, uint32(maxPayloadLen)+1); err != nil {
		t.Fatalf("writeUint32() error = %v", err)
	}

	_, err := ReadMessage(&buf)
	if !errors.Is(err, MalformedErr) {
		t.Fatalf("ReadMessage() error = %v, want MalformedErr", err)
	}
}

func TestWriteUnknownTagIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMessage(&buf, Message{Tag: Tag(99)})
	if !errors.Is(err, MalformedErr) {
		t.Fatalf("WriteMessage() error = %v, want MalformedErr", err)
	}
}

func TestScrubZeroesPayload(t *testing.T) {
	m := Reply([]byte("hunter2"))
	m.Scrub()
	for i, b := range m.Payload {
		if b != 0 {
			t.Fatalf("Payload[%d] = %d, want 0", i, b)
		}
	}
}
