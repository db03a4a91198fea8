package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds the length prefix read by ReadMessage. A peer that
// advertises a larger frame is lying or broken, and the connection is
// closed rather than ever allocating that much memory.
const MaxMessageSize = 1 << 20 // 1 MiB

// ErrMessageTooLarge is returned by ReadMessage when the advertised frame
// length exceeds MaxMessageSize. The frame body is never read.
var ErrMessageTooLarge = errors.New("protocol: message exceeds maximum size")

// WriteMessage encodes msg as JSON and writes it to w as a 4-byte
// big-endian length prefix followed by the JSON body.
func WriteMessage(w io.Writer, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshal message: %w", err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("protocol: encoded message is %d bytes, exceeds %d: %w", len(body), MaxMessageSize, ErrMessageTooLarge)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("protocol: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("protocol: write message body: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed JSON message from r. If the
// advertised length exceeds MaxMessageSize, it returns ErrMessageTooLarge
// without attempting to read or discard the body, leaving r positioned
// just past the length prefix.
func ReadMessage(r io.Reader) (Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Message{}, fmt.Errorf("protocol: read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxMessageSize {
		return Message{}, fmt.Errorf("protocol: advertised length %d: %w", length, ErrMessageTooLarge)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("protocol: read message body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("protocol: unmarshal message: %w", err)
	}
	return msg, nil
}
