package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MalformedErr is returned by ReadMessage when a frame violates the wire
// format: an unknown tag, a premature EOF mid-frame, or a payload length
// exceeding maxPayloadLen.
var MalformedErr = errors.New("malformed message")

// WriteMessage writes m to w as {tag:uint32, payload} in native byte order.
// Partial writes are retried until complete; the underlying io.Writer is
// responsible for retrying any signal-interrupted syscall (the Go runtime
// does this transparently for os.File and net.Conn).
func WriteMessage(w io.Writer, m Message) error {
	if err := writeUint32(w, uint32(m.Tag)); err != nil {
		return err
	}

	switch m.Tag {
	case TagFinish:
		return writeUint32(w, uint32(m.Status))
	case TagPrompt:
		echo := uint32(0)
		if m.Echo {
			echo = 1
		}
		return writeUint32(w, echo)
	case TagText, TagReply:
		return writeBytes(w, m.Payload)
	default:
		return fmt.Errorf("wire: write unknown tag %v: %w", m.Tag, MalformedErr)
	}
}

// ReadMessage reads one message from r. io.EOF is returned unmodified when
// EOF occurs cleanly between frames; any other EOF or length violation is
// wrapped in MalformedErr, alongside the underlying error (a caller that
// needs to distinguish, say, a deadline expiry from genuinely malformed
// bytes can still errors.As for it through the wrap).
func ReadMessage(r io.Reader) (Message, error) {
	tagVal, err := readUint32(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("wire: read tag: %w: %w", MalformedErr, err)
	}

	tag := Tag(tagVal)
	switch tag {
	case TagFinish:
		status, err := readUint32(r)
		if err != nil {
			return Message{}, fmt.Errorf("wire: read FINISH status: %w: %w", MalformedErr, err)
		}
		return Finish(int32(status)), nil

	case TagPrompt:
		echo, err := readUint32(r)
		if err != nil {
			return Message{}, fmt.Errorf("wire: read PROMPT echo: %w: %w", MalformedErr, err)
		}
		return Prompt(echo != 0), nil

	case TagText, TagReply:
		payload, err := readBytes(r)
		if err != nil {
			return Message{}, err
		}
		return Message{Tag: tag, Payload: payload}, nil

	default:
		return Message{}, fmt.Errorf("wire: unknown tag %d: %w", tagVal, MalformedErr)
	}
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], v)
	return writeFull(w, buf[:])
}

func writeBytes(w io.Writer, payload []byte) error {
	if len(payload) > maxPayloadLen {
		return fmt.Errorf("wire: payload length %d exceeds maximum: %w", len(payload), MalformedErr)
	}
	if err := writeUint32(w, uint32(len(payload))); err != nil {
		return err
	}
	return writeFull(w, payload)
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(buf[:]), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	length, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read length: %w: %w", MalformedErr, err)
	}
	if length > maxPayloadLen {
		return nil, fmt.Errorf("wire: payload length %d exceeds maximum: %w", length, MalformedErr)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w: %w", MalformedErr, err)
	}
	return buf, nil
}
