// Package wire defines the external JSON envelope spec.md §6 mandates:
// every request and reply is a single {header,data} JSON object, framed
// on the TCP byte stream by a fixed-size length prefix.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize is the hard cap on a single framed message (spec.md §6).
const MaxMessageSize = 16 * 1024 * 1024

// Header carries the command routing triple spec.md §6 and §4.9 describe:
// command_name identifies a family (Create, Delete, Chord, Election, ...),
// function selects the handler within it, and dataset names the argument
// keys present in Data — present mainly for forward-compatible tracing;
// the dispatcher does not read it and applies no schema check to Data.
type Header struct {
	CommandName string   `json:"command_name"`
	Function    string   `json:"function"`
	Dataset     []string `json:"dataset,omitempty"`
}

// Message is the wire envelope. Data is left as raw JSON; each dispatcher
// handler decodes it into its own argument type with Decode, and the
// router decodes it into a generic value when forwarding to the leader.
type Message struct {
	Header Header          `json:"header"`
	Data   json.RawMessage `json:"data"`
}

// NewMessage builds a Message by marshaling data into the envelope's Data
// field.
func NewMessage(command, function string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("wire: marshal data: %w", err)
	}
	return Message{Header: Header{CommandName: command, Function: function}, Data: raw}, nil
}

// WriteFramed writes a length-prefixed JSON message to w: a 4-byte
// big-endian length followed by the JSON body, rejecting anything over
// MaxMessageSize.
func WriteFramed(w io.Writer, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("wire: marshal message: %w", err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("wire: message of %d bytes exceeds cap of %d", len(body), MaxMessageSize)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// ReadFramed reads one length-prefixed JSON message from r.
func ReadFramed(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxMessageSize {
		return Message{}, fmt.Errorf("wire: incoming message of %d bytes exceeds cap of %d", n, MaxMessageSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("wire: read body: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("wire: unmarshal message: %w", err)
	}
	return msg, nil
}

// Decode unmarshals msg.Data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}
