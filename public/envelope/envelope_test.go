package envelope

import (
	"encoding/json"
	"testing"
)

func TestBuildMergesMappingValueAtTopLevel(t *testing.T) {
	value := map[string]interface{}{"images": []string{"@data:image,my-image-data.png"}}
	descriptors := []Descriptor{{Key: "my-image-data.png", Model: "image", Path: "payloads/u/t/my-image-data.png", Storage: StorageS3}}

	env, err := Build(value, descriptors)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, ok := env[FieldTimestamp]; !ok {
		t.Fatalf("expected %s field", FieldTimestamp)
	}
	images, ok := env["images"]
	if !ok {
		t.Fatalf("expected user key 'images' merged at top level, got %#v", env)
	}
	if _, ok := images.([]interface{}); !ok {
		t.Fatalf("expected images to decode as []interface{}, got %T", images)
	}

	got, err := env.Payloads()
	if err != nil {
		t.Fatalf("Payloads: %v", err)
	}
	if len(got) != 1 || got[0].Key != "my-image-data.png" {
		t.Fatalf("unexpected payloads: %#v", got)
	}
}

func TestBuildWrapsNonMappingValue(t *testing.T) {
	env, err := Build(42, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	v, ok := env.Get("value")
	if !ok {
		t.Fatalf("expected non-mapping value wrapped under 'value', got %#v", env)
	}
	if v != float64(42) {
		t.Fatalf("expected wrapped value 42, got %#v", v)
	}

	payloads, err := env.Payloads()
	if err != nil {
		t.Fatalf("Payloads: %v", err)
	}
	if len(payloads) != 0 {
		t.Fatalf("expected empty payloads slice, got %#v", payloads)
	}
}

func TestBuildEmptyPayloadsStillHasEnvelopeFields(t *testing.T) {
	env, err := Build(map[string]interface{}{"a": 1}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	payloads, err := env.Payloads()
	if err != nil {
		t.Fatalf("Payloads: %v", err)
	}
	if payloads == nil || len(payloads) != 0 {
		t.Fatalf("expected non-nil empty payloads slice, got %#v", payloads)
	}
}

func TestPayloadsPreservesOrder(t *testing.T) {
	descriptors := []Descriptor{
		{Key: "a", Storage: StorageS3},
		{Key: "b", Storage: StorageS3},
		{Key: "c", Storage: StorageS3},
	}
	env, err := Build(map[string]interface{}{}, descriptors)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := env.Payloads()
	if err != nil {
		t.Fatalf("Payloads: %v", err)
	}
	for i, d := range got {
		if d.Key != descriptors[i].Key {
			t.Fatalf("order mismatch at %d: want %s got %s", i, descriptors[i].Key, d.Key)
		}
	}
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	env, err := Build(map[string]interface{}{"a": "b"}, []Descriptor{{Key: "k", Storage: StoragePassthrough}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data, err := env.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	got, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got["a"] != "b" {
		t.Fatalf("round-trip lost user field: %#v", got)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate after round-trip: %v", err)
	}
}

func TestDescriptorDecodeLenientOnMissingPath(t *testing.T) {
	raw := []byte(`{"key":"legacy-key"}`)
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Key != "legacy-key" {
		t.Fatalf("expected key preserved, got %#v", d)
	}
	if d.Path != "" || d.Model != "" {
		t.Fatalf("expected zero-valued Path/Model, got %#v", d)
	}
}

func TestValidateFailsOnMissingTimestamp(t *testing.T) {
	env := Envelope{FieldPayloads: []Descriptor{}}
	if err := env.Validate(); err == nil {
		t.Fatalf("expected validation error for missing timestamp")
	}
}

func TestValidateFailsOnMissingPayloads(t *testing.T) {
	env := Envelope{FieldTimestamp: nowUTC()}
	if err := env.Validate(); err == nil {
		t.Fatalf("expected validation error for missing payloads")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	env, err := Build(map[string]interface{}{"a": 1}, []Descriptor{{Key: "k"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	clone := env.Clone()
	clone.Set("a", 2)

	if env["a"] != 1 {
		t.Fatalf("expected original envelope unaffected by clone mutation, got %#v", env["a"])
	}
}

func TestValueWrapsScalarConsistently(t *testing.T) {
	env, err := Build("hello", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	v := env.Value()
	if v["value"] != "hello" {
		t.Fatalf("expected scalar wrapped under 'value', got %#v", v)
	}
}
