// Package envelope implements the self-describing wire record exchanged
// over every Model Channel, and the Payload Descriptor records that
// locate binary side-payloads stored alongside it.
//
// An Envelope is a heterogeneous mapping — `{__timestamp, __payloads,
// ...user fields}` — not a fixed struct, because the user's value
// subtree is schema-free at the wire boundary. Envelope is therefore a
// typed wrapper around map[string]interface{}; callers that want a
// concrete Go type decode the Value() subtree themselves.
//
// Called by: public/model (BuildEnvelope, payload rehydration)
// Calls: encoding/json, time
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// FieldTimestamp is the envelope's build-time instant, ISO-8601 UTC with a trailing Z.
	FieldTimestamp = "__timestamp"
	// FieldPayloads is the ordered sequence of Payload Descriptors.
	FieldPayloads = "__payloads"

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// StorageKind tags how a payload descriptor's bytes were or will be stored.
type StorageKind string

const (
	StorageS3          StorageKind = "S3"
	StoragePassthrough StorageKind = "Passthrough"
)

// Descriptor locates one side-payload. Value is populated only on the
// receive side, after rehydration (a GET against object storage for
// storage=="S3", or the inline value for storage=="Passthrough").
//
// Decode is lenient: a descriptor missing Path or Model, as legacy
// producers may emit, decodes with those fields simply zero-valued
// rather than failing.
type Descriptor struct {
	Key     string      `json:"key"`
	Model   string      `json:"model,omitempty"`
	Path    string      `json:"path,omitempty"`
	Storage StorageKind `json:"storage,omitempty"`
	Value   interface{} `json:"value,omitempty"`
}

// Payload is caller input to a publish/request call: either a raw byte
// slice or a structured value to be JSON-encoded before upload.
type Payload interface{}

// Input is one (key, payload) pair. Model.BuildEnvelope takes a slice of
// Input rather than a Go map so that the caller's iteration order —
// which __payloads must preserve — survives as ordinary slice order
// instead of Go's unspecified map iteration order.
type Input struct {
	Key   string
	Value Payload
}

// Envelope is the wire record: __timestamp, __payloads, and the
// caller's value merged at the top level.
type Envelope map[string]interface{}

// Build assembles an envelope from an already-built descriptor list.
// Most callers go through Model.BuildEnvelope instead, which performs
// the payload PUTs and then calls Build.
func Build(value interface{}, descriptors []Descriptor) (Envelope, error) {
	merged, err := mergeValue(value)
	if err != nil {
		return nil, err
	}
	if descriptors == nil {
		descriptors = []Descriptor{}
	}

	merged[FieldTimestamp] = nowUTC()
	merged[FieldPayloads] = descriptors
	return merged, nil
}

// mergeValue normalizes the user's value: a mapping is merged at the
// top level; anything else is wrapped as {"value": v}.
func mergeValue(value interface{}) (Envelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal value: %w", err)
	}

	if looksLikeObject(raw) {
		var asMap map[string]interface{}
		if err := json.Unmarshal(raw, &asMap); err == nil {
			out := make(Envelope, len(asMap)+2)
			for k, v := range asMap {
				out[k] = v
			}
			return out, nil
		}
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("envelope: unmarshal value: %w", err)
	}
	return Envelope{"value": generic}, nil
}

// looksLikeObject reports whether raw is a JSON object, ignoring
// leading whitespace.
func looksLikeObject(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

func nowUTC() string {
	return time.Now().UTC().Format(timestampLayout)
}

// Timestamp returns the envelope's __timestamp field, parsed as UTC time.
func (e Envelope) Timestamp() (time.Time, bool) {
	raw, ok := e[FieldTimestamp]
	if !ok {
		return time.Time{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Payloads extracts and decodes __payloads into a typed slice.
func (e Envelope) Payloads() ([]Descriptor, error) {
	raw, ok := e[FieldPayloads]
	if !ok {
		return nil, nil
	}

	// raw may already be []Descriptor (built locally) or a generic
	// []interface{} (decoded off the wire); normalize via a JSON hop.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payloads: %w", err)
	}
	var descriptors []Descriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("envelope: unmarshal payloads: %w", err)
	}
	return descriptors, nil
}

// SetPayloads replaces __payloads, e.g. after rehydrating descriptor values.
func (e Envelope) SetPayloads(descriptors []Descriptor) {
	e[FieldPayloads] = descriptors
}

// Value returns the user-value subtree: every field except the two
// envelope-reserved keys. If the original value was wrapped as
// {"value": v} (a non-mapping input), that wrapping is preserved here.
func (e Envelope) Value() map[string]interface{} {
	out := make(map[string]interface{}, len(e))
	for k, v := range e {
		if k == FieldTimestamp || k == FieldPayloads {
			continue
		}
		out[k] = v
	}
	return out
}

// Get retrieves a single user-value field.
func (e Envelope) Get(key string) (interface{}, bool) {
	v, ok := e[key]
	return v, ok
}

// Set assigns a single user-value field.
func (e Envelope) Set(key string, value interface{}) {
	e[key] = value
}

// Clone returns a copy safe for independent mutation: the top-level map
// and the __payloads slice are copied; user-value subtrees are shared,
// since they are treated as immutable once an envelope is built.
func (e Envelope) Clone() Envelope {
	clone := make(Envelope, len(e))
	for k, v := range e {
		clone[k] = v
	}
	if descriptors, err := e.Payloads(); err == nil && descriptors != nil {
		cp := make([]Descriptor, len(descriptors))
		copy(cp, descriptors)
		clone.SetPayloads(cp)
	}
	return clone
}

// ToJSON serializes the envelope for JSON transport. For MessagePack,
// callers go through internal/codec.Encode directly on the underlying
// map, since Envelope is itself a map[string]interface{}.
func (e Envelope) ToJSON() ([]byte, error) {
	data, err := json.Marshal(map[string]interface{}(e))
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}
	return data, nil
}

// FromJSON deserializes an envelope previously produced by ToJSON.
func FromJSON(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("envelope: unmarshal: %w", err)
	}
	return e, nil
}

// Validate checks the minimal shape every envelope must have.
func (e Envelope) Validate() error {
	if _, ok := e[FieldTimestamp]; !ok {
		return &ValidationError{Field: FieldTimestamp, Message: "timestamp is required"}
	}
	if _, ok := e[FieldPayloads]; !ok {
		return &ValidationError{Field: FieldPayloads, Message: "payloads field is required"}
	}
	return nil
}

// ValidationError reports a single missing or malformed envelope field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
