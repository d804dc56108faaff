package model

import (
	"context"
	"testing"
	"time"

	"github.com/ulagbulag/openark-go/internal/codec"
	"github.com/ulagbulag/openark-go/public/envelope"
)

func TestFunctionInvokeSendsOnInputAndRehydratesReply(t *testing.T) {
	replyEnv, err := envelope.Build(map[string]interface{}{"label": "cat"}, []envelope.Descriptor{
		{Key: "crop", Storage: envelope.StoragePassthrough, Value: "crop-bytes"},
	})
	if err != nil {
		t.Fatalf("build reply envelope: %v", err)
	}
	replyData, err := codec.Encode(map[string]interface{}(replyEnv), codec.Json)
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}

	inputModel := &Model{Name: "classify-in"}
	outputModel := &Model{Name: "classify-out"}
	bus := &fakeMessenger{reply: replyData}

	input := NewChannel(inputModel, bus, codec.Json, "")
	output := NewChannel(outputModel, bus, codec.Json, "")
	fn := NewFunction(input, output, time.Second)

	got, err := fn.Invoke(context.Background(), map[string]interface{}{"image": "x"}, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got["label"] != "cat" {
		t.Fatalf("unexpected reply value: %v", got)
	}

	descriptors, err := got.Payloads()
	if err != nil {
		t.Fatalf("Payloads: %v", err)
	}
	if len(descriptors) != 1 || descriptors[0].Value != "crop-bytes" {
		t.Fatalf("expected rehydrated payload, got %#v", descriptors)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected one request sent on the input channel, got %d", len(bus.published))
	}
}

func TestNewFunctionRecordsEncodingFromInputChannel(t *testing.T) {
	inputModel := &Model{Name: "classify-in"}
	outputModel := &Model{Name: "classify-out"}
	bus := &fakeMessenger{}

	input := NewChannel(inputModel, bus, codec.MessagePack, "")
	output := NewChannel(outputModel, bus, codec.MessagePack, "")
	fn := NewFunction(input, output, 0)

	if fn.Encoding != codec.MessagePack {
		t.Fatalf("got encoding %q, want MessagePack", fn.Encoding)
	}
}

func TestFunctionInvokePropagatesServiceUnsupported(t *testing.T) {
	inputModel := &Model{Name: "classify-in"}
	outputModel := &Model{Name: "classify-out"}
	bus := &fakeMessenger{noService: true}

	input := NewChannel(inputModel, bus, codec.Json, "")
	output := NewChannel(outputModel, bus, codec.Json, "")
	fn := NewFunction(input, output, 0)

	_, err := fn.Invoke(context.Background(), map[string]interface{}{}, nil)
	if err == nil {
		t.Fatalf("expected error when driver lacks Service support")
	}
}
