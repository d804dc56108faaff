// Package codec implements the opcode-prefixed self-describing encoding
// used for every envelope placed on the bus.
//
// The first byte of an encoded stream is the opcode:
//   - 0x00-0x7F (ASCII range): the stream is UTF-8 JSON text; the opcode
//     byte is simply the first character of the JSON document ('{' or '[').
//   - 0x80: MessagePack. The remaining bytes are the MessagePack body.
//   - 0x81: reserved for CBOR; not implemented.
//   - anything else: unknown, decode-fatal.
//
// Called by: public/model (envelope encode/decode on publish/subscribe paths)
// Calls: encoding/json, github.com/vmihailenco/msgpack/v5
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Name selects an encoding on the write path.
type Name string

const (
	Json        Name = "Json"
	MessagePack Name = "MessagePack"
)

const (
	opcodeASCIIEnd    byte = 0x7F
	opcodeMessagePack byte = 0x80
	opcodeCBOR        byte = 0x81
)

// Sentinel errors, tested with errors.Is.
var (
	// ErrEmpty is returned when decode is given a zero-length input.
	ErrEmpty = errors.New("codec: empty data")
	// ErrUnknownOpcode is returned when the first byte isn't a recognized opcode.
	ErrUnknownOpcode = errors.New("codec: unknown opcode")
	// ErrReservedOpcode is returned for the CBOR opcode, which is reserved but unimplemented.
	ErrReservedOpcode = errors.New("codec: CBOR opcode reserved, not implemented")
)

// Encode serializes value using the named codec. JSON is emitted as plain
// UTF-8 text with no explicit prefix byte (the leading '{' or '[' already
// falls in the ASCII opcode range). MessagePack is prefixed with 0x80.
func Encode(value interface{}, codec Name) ([]byte, error) {
	switch codec {
	case Json:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal json: %w", err)
		}
		return data, nil
	case MessagePack:
		body, err := msgpack.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal msgpack: %w", err)
		}
		out := make([]byte, 0, len(body)+1)
		out = append(out, opcodeMessagePack)
		out = append(out, body...)
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unknown encoding codec: %q", codec)
	}
}

// Decode inspects the opcode and deserializes into a generic value.
//
// A malformed JSON or MessagePack body is a soft failure: it returns
// (nil, nil) so that a subscriber loop can skip the message instead of
// aborting iteration. An empty input or unrecognized opcode is hard-fatal.
func Decode(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	opcode := data[0]
	switch {
	case opcode <= opcodeASCIIEnd:
		var value interface{}
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, nil // soft failure: malformed JSON body
		}
		return value, nil
	case opcode == opcodeMessagePack:
		var value interface{}
		if err := msgpack.Unmarshal(data[1:], &value); err != nil {
			return nil, nil // soft failure: malformed MessagePack body
		}
		return value, nil
	case opcode == opcodeCBOR:
		return nil, ErrReservedOpcode
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, opcode)
	}
}

// DecodeInto is a convenience wrapper that decodes into a struct via a
// JSON round-trip, used by callers that want typed access (e.g. Envelope).
// It preserves the same soft/hard failure semantics as Decode: a nil,
// nil result means "skip this message".
func DecodeInto(data []byte, out interface{}) (bool, error) {
	value, err := Decode(data)
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}

	// Round-trip through JSON so callers can use normal struct tags
	// regardless of which wire codec produced the decoded value.
	intermediate, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("codec: re-marshal decoded value: %w", err)
	}
	if err := json.Unmarshal(intermediate, out); err != nil {
		return false, fmt.Errorf("codec: unmarshal into target: %w", err)
	}
	return true, nil
}
