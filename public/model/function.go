package model

import (
	"context"
	"time"

	"github.com/ulagbulag/openark-go/internal/codec"
	"github.com/ulagbulag/openark-go/public/envelope"
)

// Function pairs an input Channel (requests are sent here) with an
// output Channel (its model is only used for naming/discovery; replies
// arrive back over the input channel's request-reply round trip).
// Encoding records the wire codec the pair was bound with (spec §3:
// a Function holds "two Model Channels plus a timeout and an encoding
// tag"); both channels always share one encoding, so it is read off
// the input channel rather than stored independently.
type Function struct {
	Input    *Channel
	Output   *Channel
	Timeout  time.Duration
	Encoding codec.Name
}

// NewFunction binds input/output channels into a callable Function.
// input and output must share the same Codec; that shared value
// becomes Encoding.
func NewFunction(input, output *Channel, timeout time.Duration) *Function {
	return &Function{Input: input, Output: output, Timeout: timeout, Encoding: input.Codec()}
}

// Invoke sends value/payloads as a request on the input channel and
// returns the reply envelope with its payloads already rehydrated
// (spec Invariant 4).
func (f *Function) Invoke(ctx context.Context, value interface{}, payloads []envelope.Input) (envelope.Envelope, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	return f.Input.Request(ctx, value, payloads, true)
}
