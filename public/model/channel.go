package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ulagbulag/openark-go/internal/codec"
	"github.com/ulagbulag/openark-go/internal/messenger"
	"github.com/ulagbulag/openark-go/public/envelope"
)

// Channel binds a Model to a bus topic of the same name. The
// publisher/service/subscriber handles are opened lazily and cached,
// since a channel is typically used for only one of the three roles.
type Channel struct {
	model          *Model
	bus            messenger.Messenger
	codec          codec.Name
	queue          string
	serviceTimeout time.Duration

	pubOnce sync.Once
	pub     messenger.Publisher
	pubErr  error

	svcOnce sync.Once
	svc     messenger.Service
	svcErr  error

	subOnce sync.Once
	sub     messenger.Subscriber
	subErr  error
}

// NewChannel binds model to topic model.Name on bus. queue is the NATS
// queue group to join on Subscribe ("" for a broadcast subscription,
// non-empty for work-queue fanout across replicas — spec Invariant 3).
func NewChannel(model *Model, bus messenger.Messenger, encoding codec.Name, queue string) *Channel {
	return &Channel{
		model:          model,
		bus:            bus,
		codec:          encoding,
		queue:          queue,
		serviceTimeout: messenger.DefaultServiceTimeout,
	}
}

// Name returns the underlying model's name, the channel's topic.
func (c *Channel) Name() string {
	return c.model.Name
}

// Codec returns the wire encoding this channel publishes/requests with.
func (c *Channel) Codec() codec.Name {
	return c.codec
}

func (c *Channel) publisher() (messenger.Publisher, error) {
	c.pubOnce.Do(func() {
		c.pub, c.pubErr = c.bus.Publisher(c.model.Name, "")
	})
	return c.pub, c.pubErr
}

func (c *Channel) service() (messenger.Service, error) {
	c.svcOnce.Do(func() {
		c.svc, c.svcErr = c.bus.Service(c.model.Name, c.serviceTimeout)
	})
	return c.svc, c.svcErr
}

func (c *Channel) subscriber() (messenger.Subscriber, error) {
	c.subOnce.Do(func() {
		c.sub, c.subErr = c.bus.Subscriber(c.model.Name, c.queue)
	})
	return c.sub, c.subErr
}

// Publish builds an envelope from value/payloads and publishes it,
// fire-and-forget, returning the built envelope for the caller's records.
func (c *Channel) Publish(ctx context.Context, value interface{}, payloads []envelope.Input) (envelope.Envelope, error) {
	env, err := c.model.BuildEnvelope(ctx, value, payloads)
	if err != nil {
		return nil, err
	}

	pub, err := c.publisher()
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, messenger.ErrPublishUnsupported
	}

	data, err := c.encode(env)
	if err != nil {
		return nil, err
	}
	if err := pub.Publish(ctx, data); err != nil {
		return nil, fmt.Errorf("model: publish to %q: %w", c.model.Name, err)
	}
	return env, nil
}

// Request builds an envelope, sends it as a request, and decodes the
// reply envelope. When loadPayloads is true, the reply's payload
// descriptors are rehydrated before returning (spec Invariant 4:
// Function.Invoke rehydrates automatically).
func (c *Channel) Request(ctx context.Context, value interface{}, payloads []envelope.Input, loadPayloads bool) (envelope.Envelope, error) {
	env, err := c.model.BuildEnvelope(ctx, value, payloads)
	if err != nil {
		return nil, err
	}

	svc, err := c.service()
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, messenger.ErrServiceUnsupported
	}

	data, err := c.encode(env)
	if err != nil {
		return nil, err
	}
	reply, err := svc.Request(ctx, data, 0)
	if err != nil {
		return nil, err
	}

	replyEnv, err := c.decodeEnvelope(reply)
	if err != nil {
		return nil, err
	}
	if replyEnv == nil {
		return nil, fmt.Errorf("model: request to %q: %w", c.model.Name, codec.ErrUnknownOpcode)
	}

	if loadPayloads {
		if err := c.rehydrate(ctx, replyEnv); err != nil {
			return nil, err
		}
	}
	return replyEnv, nil
}

// Next blocks until the next message arrives, decodes and rehydrates
// it, and returns the resulting envelope. Messages with a malformed
// body are skipped (soft codec failure); a hard decode failure or a
// subscriber transport error aborts the wait.
func (c *Channel) Next(ctx context.Context) (envelope.Envelope, error) {
	sub, err := c.subscriber()
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, messenger.ErrSubscribeUnsupported
	}

	for {
		data, err := sub.Next(ctx)
		if err != nil {
			return nil, err
		}

		env, err := c.decodeEnvelope(data)
		if err != nil {
			return nil, err
		}
		if env == nil {
			continue // malformed body: skip, keep waiting
		}

		if err := c.rehydrate(ctx, env); err != nil {
			return nil, err
		}
		return env, nil
	}
}

// encode serializes env with the channel's configured codec.
func (c *Channel) encode(env envelope.Envelope) ([]byte, error) {
	data, err := codec.Encode(map[string]interface{}(env), c.codec)
	if err != nil {
		return nil, fmt.Errorf("model: encode envelope for %q: %w", c.model.Name, err)
	}
	return data, nil
}

// decodeEnvelope decodes data and re-shapes it as an Envelope. A nil,
// nil return means the body was malformed (soft codec failure); the
// caller decides whether that is skip-worthy or an error.
func (c *Channel) decodeEnvelope(data []byte) (envelope.Envelope, error) {
	decoded, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("model: decode envelope for %q: %w", c.model.Name, err)
	}
	if decoded == nil {
		return nil, nil
	}

	raw, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("model: re-marshal decoded envelope for %q: %w", c.model.Name, err)
	}
	env, err := envelope.FromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("model: decoded body for %q is not an envelope: %w", c.model.Name, err)
	}
	return env, nil
}

// rehydrate fetches every payload descriptor's value concurrently and
// writes the results back onto env, preserving descriptor order.
func (c *Channel) rehydrate(ctx context.Context, env envelope.Envelope) error {
	descriptors, err := env.Payloads()
	if err != nil {
		return fmt.Errorf("model: read payload descriptors: %w", err)
	}
	if len(descriptors) == 0 {
		return nil
	}

	errs := make([]error, len(descriptors))
	var wg sync.WaitGroup
	for i := range descriptors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := c.model.GetPayload(ctx, descriptors[i])
			if err != nil {
				errs[i] = err
				return
			}
			descriptors[i].Value = value
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	env.SetPayloads(descriptors)
	return nil
}
