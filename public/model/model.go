// Package model implements the Model abstraction: a named schema
// backed by an object-storage bucket (the table) and, via
// public/model's sibling Channel type, a bus topic of the same name.
//
// A Model normalizes its storage options on construction, builds
// envelopes by PUTting payloads to object storage (concurrently, order
// preserved), fetches payloads back by descriptor, and opens its
// metadata/ prefix as a Table.
//
// Called by: public/model (Channel, Function), public/namespace (model discovery)
// Calls: internal/objectstore, public/envelope
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"

	"github.com/ulagbulag/openark-go/internal/objectstore"
	"github.com/ulagbulag/openark-go/public/envelope"
)

// Sentinel errors, tested with errors.Is.
var (
	// ErrTableNotFound is returned when a Model's bucket does not exist yet.
	ErrTableNotFound = errors.New("model: table not found")
	// ErrTableEmpty is returned when a Model's bucket exists but metadata/ has no objects.
	ErrTableEmpty = errors.New("model: table is empty")
	// ErrUnsupportedStorage is returned when a payload descriptor names an unknown storage kind.
	ErrUnsupportedStorage = errors.New("model: unsupported payload storage kind")
)

const metadataPrefix = "metadata/"

// Model is immutable configuration shared by value: name, derived
// table name/URI, normalized storage options, a per-session timestamp,
// and the identity PUTs are filed under.
type Model struct {
	Name           string
	TableName      string
	TableURI       string
	StorageOptions map[string]string
	// Timestamp is the runtime session's timestamp, colons replaced with
	// dashes so it is safe as an object-storage path segment.
	Timestamp string
	UserName  string
	// Version, when set, is recorded on Table for informational purposes
	// only (no real Delta log exists to version against in this runtime).
	Version *int

	store *objectstore.Client
}

// New constructs a Model, deriving table_name/table_uri and normalizing
// storage_options per the rules in NormalizeStorageOptions.
func New(name, userName, sessionTimestamp string, storageOptions map[string]string, store *objectstore.Client) *Model {
	return &Model{
		Name:           name,
		TableName:      deriveTableName(name),
		TableURI:       fmt.Sprintf("s3a://%s/metadata/", name),
		StorageOptions: NormalizeStorageOptions(storageOptions),
		Timestamp:      strings.ReplaceAll(sessionTimestamp, ":", "-"),
		UserName:       userName,
		store:          store,
	}
}

// deriveTableName snake-cases name, with dots treated as underscore
// boundaries before case conversion.
func deriveTableName(name string) string {
	return strcase.ToSnake(strings.ReplaceAll(name, ".", "_"))
}

// NormalizeStorageOptions applies the two defaulting rules from spec
// §4.4: AWS_ALLOW_HTTP defaults from the endpoint's scheme,
// AWS_S3_ALLOW_UNSAFE_RENAME defaults to true. Caller-provided settings
// already present in opts are never overwritten. opts may be nil.
func NormalizeStorageOptions(opts map[string]string) map[string]string {
	out := make(map[string]string, len(opts)+2)
	for k, v := range opts {
		out[k] = v
	}

	if endpoint, ok := out["AWS_ENDPOINT_URL"]; ok {
		if _, set := out["AWS_ALLOW_HTTP"]; !set {
			if strings.HasPrefix(endpoint, "http://") {
				out["AWS_ALLOW_HTTP"] = "true"
			} else {
				out["AWS_ALLOW_HTTP"] = "false"
			}
		}
	}
	if _, set := out["AWS_S3_ALLOW_UNSAFE_RENAME"]; !set {
		out["AWS_S3_ALLOW_UNSAFE_RENAME"] = "true"
	}
	return out
}

// BuildEnvelope uploads every payload to this model's bucket, in
// parallel, then assembles the envelope with descriptors in the
// caller's iteration order (spec Invariant 1).
func (m *Model) BuildEnvelope(ctx context.Context, value interface{}, payloads []envelope.Input) (envelope.Envelope, error) {
	descriptors := make([]envelope.Descriptor, len(payloads))
	errs := make([]error, len(payloads))

	var wg sync.WaitGroup
	for i, p := range payloads {
		wg.Add(1)
		go func(i int, p envelope.Input) {
			defer wg.Done()
			descriptor, err := m.put(ctx, p.Key, p.Value)
			if err != nil {
				errs[i] = err
				return
			}
			descriptors[i] = descriptor
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return envelope.Build(value, descriptors)
}

// put uploads one payload under payloads/<user_name>/<timestamp>/<key>
// (spec Invariant 2) and returns its descriptor.
func (m *Model) put(ctx context.Context, key string, value envelope.Payload) (envelope.Descriptor, error) {
	data, err := payloadBytes(value)
	if err != nil {
		return envelope.Descriptor{}, fmt.Errorf("model: encode payload %q: %w", key, err)
	}

	path := fmt.Sprintf("payloads/%s/%s/%s", m.UserName, m.Timestamp, key)
	objectName, err := m.store.Put(ctx, m.Name, path, data)
	if err != nil {
		return envelope.Descriptor{}, fmt.Errorf("model: put payload %q: %w", key, err)
	}

	return envelope.Descriptor{
		Key:     key,
		Model:   m.Name,
		Path:    objectName,
		Storage: envelope.StorageS3,
	}, nil
}

// payloadBytes returns raw bytes verbatim, and JSON-encodes anything else.
func payloadBytes(value envelope.Payload) ([]byte, error) {
	if b, ok := value.([]byte); ok {
		return b, nil
	}
	return json.Marshal(value)
}

// GetPayload dispatches on descriptor.Storage: Passthrough (or unset)
// returns descriptor.Value as-is; S3 fetches bytes from
// (descriptor.Model, descriptor.Path), degenerating to a pass-through
// if either is empty; anything else fails with ErrUnsupportedStorage.
func (m *Model) GetPayload(ctx context.Context, descriptor envelope.Descriptor) (interface{}, error) {
	switch descriptor.Storage {
	case envelope.StoragePassthrough, "":
		return descriptor.Value, nil
	case envelope.StorageS3:
		if descriptor.Model == "" || descriptor.Path == "" {
			return descriptor.Value, nil
		}
		data, err := m.store.Get(ctx, descriptor.Model, descriptor.Path)
		if err != nil {
			return nil, fmt.Errorf("model: get payload %q: %w", descriptor.Key, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStorage, descriptor.Storage)
	}
}

// GetPayloadURL returns an unsigned HTTP URL for descriptor, suitable
// for external consumers; no signing is performed.
func (m *Model) GetPayloadURL(descriptor envelope.Descriptor) string {
	endpoint := strings.TrimRight(m.StorageOptions["AWS_ENDPOINT_URL"], "/")
	return fmt.Sprintf("%s/%s/%s", endpoint, descriptor.Model, descriptor.Path)
}

// ToTable opens this model's metadata/ prefix as a Table.
func (m *Model) ToTable() *Table {
	return &Table{model: m}
}
