package model

import (
	"context"
	"testing"
	"time"

	"github.com/ulagbulag/openark-go/internal/codec"
	"github.com/ulagbulag/openark-go/internal/messenger"
	"github.com/ulagbulag/openark-go/public/envelope"
)

// fakeMessenger is a minimal in-memory Messenger for exercising Channel
// without a live NATS server, mirroring the messenger package's own
// fakeBus test double.
type fakeMessenger struct {
	published [][]byte

	noPublisher bool

	noService bool
	reply     []byte
	replyErr  error

	noSubscriber bool
	subData      chan []byte
	subErr       error
}

func (f *fakeMessenger) Publisher(topic, reply string) (messenger.Publisher, error) {
	if f.noPublisher {
		return nil, nil
	}
	return &fakePublisher{f}, nil
}

func (f *fakeMessenger) Service(topic string, timeout time.Duration) (messenger.Service, error) {
	if f.noService {
		return nil, nil
	}
	return &fakeService{f}, nil
}

func (f *fakeMessenger) Subscriber(topic, queue string) (messenger.Subscriber, error) {
	if f.noSubscriber {
		return nil, nil
	}
	return &fakeSubscriber{f}, nil
}

func (f *fakeMessenger) Close() error { return nil }

type fakePublisher struct{ f *fakeMessenger }

func (p *fakePublisher) Publish(ctx context.Context, data []byte) error {
	p.f.published = append(p.f.published, data)
	return nil
}

type fakeService struct{ f *fakeMessenger }

func (s *fakeService) Request(ctx context.Context, data []byte, timeout time.Duration) ([]byte, error) {
	s.f.published = append(s.f.published, data)
	return s.f.reply, s.f.replyErr
}

type fakeSubscriber struct{ f *fakeMessenger }

func (s *fakeSubscriber) Next(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-s.f.subData:
		if !ok {
			return nil, context.Canceled
		}
		return data, s.f.subErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSubscriber) Close() error { return nil }

func TestChannelPublishSendsEncodedEnvelope(t *testing.T) {
	model := &Model{Name: "images"}
	bus := &fakeMessenger{}
	ch := NewChannel(model, bus, codec.Json, "")

	env, err := ch.Publish(context.Background(), map[string]interface{}{"hello": "world"}, nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if env["hello"] != "world" {
		t.Fatalf("unexpected envelope value: %v", env)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected exactly one published message, got %d", len(bus.published))
	}

	decoded, err := codec.Decode(bus.published[0])
	if err != nil || decoded == nil {
		t.Fatalf("decode published message: %v", err)
	}
	asMap := decoded.(map[string]interface{})
	if asMap["hello"] != "world" {
		t.Fatalf("published envelope missing value: %v", asMap)
	}
}

func TestChannelPublishUnsupportedWhenDriverLacksPublisher(t *testing.T) {
	model := &Model{Name: "images"}
	bus := &fakeMessenger{noPublisher: true}
	ch := NewChannel(model, bus, codec.Json, "")

	_, err := ch.Publish(context.Background(), map[string]interface{}{"a": 1}, nil)
	if err != messenger.ErrPublishUnsupported {
		t.Fatalf("got %v, want ErrPublishUnsupported", err)
	}
}

func TestChannelRequestDecodesReplyAndRehydratesPayloads(t *testing.T) {
	replyEnv, err := envelope.Build(map[string]interface{}{"status": "ok"}, []envelope.Descriptor{
		{Key: "frame", Storage: envelope.StoragePassthrough, Value: "inline-bytes"},
	})
	if err != nil {
		t.Fatalf("build reply envelope: %v", err)
	}
	replyData, err := codec.Encode(map[string]interface{}(replyEnv), codec.Json)
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}

	model := &Model{Name: "detections"}
	bus := &fakeMessenger{reply: replyData}
	ch := NewChannel(model, bus, codec.Json, "")

	got, err := ch.Request(context.Background(), map[string]interface{}{"query": "cats"}, nil, true)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got["status"] != "ok" {
		t.Fatalf("unexpected reply value: %v", got)
	}

	descriptors, err := got.Payloads()
	if err != nil {
		t.Fatalf("Payloads: %v", err)
	}
	if len(descriptors) != 1 || descriptors[0].Value != "inline-bytes" {
		t.Fatalf("expected rehydrated passthrough payload, got %#v", descriptors)
	}
}

func TestChannelRequestUnsupportedWhenDriverLacksService(t *testing.T) {
	model := &Model{Name: "images"}
	bus := &fakeMessenger{noService: true}
	ch := NewChannel(model, bus, codec.Json, "")

	_, err := ch.Request(context.Background(), map[string]interface{}{}, nil, false)
	if err != messenger.ErrServiceUnsupported {
		t.Fatalf("got %v, want ErrServiceUnsupported", err)
	}
}

func TestChannelNextSkipsMalformedBodiesThenReturnsValidOne(t *testing.T) {
	goodEnv, err := envelope.Build(map[string]interface{}{"frame": 1}, nil)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	goodData, err := codec.Encode(map[string]interface{}(goodEnv), codec.Json)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	model := &Model{Name: "images"}
	bus := &fakeMessenger{subData: make(chan []byte, 2)}
	bus.subData <- []byte("{not valid json")
	bus.subData <- goodData

	ch := NewChannel(model, bus, codec.Json, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := ch.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got["frame"].(float64) != 1 {
		t.Fatalf("unexpected envelope: %v", got)
	}
}

func TestChannelNextUnsupportedWhenDriverLacksSubscriber(t *testing.T) {
	model := &Model{Name: "images"}
	bus := &fakeMessenger{noSubscriber: true}
	ch := NewChannel(model, bus, codec.Json, "")

	_, err := ch.Next(context.Background())
	if err != messenger.ErrSubscribeUnsupported {
		t.Fatalf("got %v, want ErrSubscribeUnsupported", err)
	}
}
