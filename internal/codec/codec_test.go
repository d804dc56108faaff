package codec

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTripJSON(t *testing.T) {
	in := map[string]interface{}{"a": float64(1), "b": "two"}

	data, err := Encode(in, Json)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] > opcodeASCIIEnd {
		t.Fatalf("expected first byte in ASCII range, got 0x%02x", data[0])
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	outMap, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", out)
	}
	if outMap["a"] != float64(1) || outMap["b"] != "two" {
		t.Fatalf("round-trip mismatch: %#v", outMap)
	}
}

func TestEncodeDecodeRoundTripMessagePack(t *testing.T) {
	in := map[string]interface{}{"a": float64(1), "b": "two"}

	data, err := Encode(in, MessagePack)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if data[0] != opcodeMessagePack {
		t.Fatalf("expected opcode 0x80, got 0x%02x", data[0])
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	outMap, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", out)
	}
	if outMap["b"] != "two" {
		t.Fatalf("round-trip mismatch: %#v", outMap)
	}
}

func TestDecodeEmptyIsFatal(t *testing.T) {
	_, err := Decode(nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestDecodeReservedCBOROpcodeIsFatal(t *testing.T) {
	_, err := Decode([]byte{0x81, 0x00})
	if !errors.Is(err, ErrReservedOpcode) {
		t.Fatalf("expected ErrReservedOpcode, got %v", err)
	}
}

func TestDecodeUnknownOpcodeIsFatal(t *testing.T) {
	_, err := Decode([]byte{0x82, 0x00})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("expected ErrUnknownOpcode, got %v", err)
	}
}

func TestDecodeMalformedJSONBodyIsSoftFailure(t *testing.T) {
	out, err := Decode([]byte("{"))
	if err != nil {
		t.Fatalf("expected soft failure (nil error), got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil value, got %#v", out)
	}
}

func TestDecodeMalformedMessagePackBodyIsSoftFailure(t *testing.T) {
	// 0x80 prefix followed by a byte sequence that msgpack cannot parse
	// as a complete value (truncated map header).
	out, err := Decode([]byte{0x80, 0x81})
	if err != nil {
		t.Fatalf("expected soft failure (nil error), got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil value, got %#v", out)
	}
}
