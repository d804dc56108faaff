// Package messenger defines the transport-neutral bus abstraction used
// by every Model Channel: publisher (fire-and-forget), service
// (request-reply), and subscriber (ordered delivery, optionally
// queue-grouped).
//
// Drivers register themselves in an explicit name → constructor map
// (Register/New) rather than being selected by probing a method name
// built from a configuration string — see nats.go for the one driver
// implemented here. A ROS2-style driver is a documented slot only (Out
// of scope).
//
// Called by: public/model (ModelChannel, Function), public/runtime
// Calls: context, time
package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors, tested with errors.Is.
var (
	// ErrPublishUnsupported is returned when a driver has no Publisher capability.
	ErrPublishUnsupported = errors.New("messenger: publish unsupported by driver")
	// ErrServiceUnsupported is returned when a driver has no Service capability.
	ErrServiceUnsupported = errors.New("messenger: request-reply unsupported by driver")
	// ErrSubscribeUnsupported is returned when a driver has no Subscriber capability.
	ErrSubscribeUnsupported = errors.New("messenger: subscribe unsupported by driver")
	// ErrTimeout is returned when a Service.Request exceeds its deadline.
	ErrTimeout = errors.New("messenger: request timed out")
	// ErrDriverUnavailable is returned by New when no driver is registered under the given name.
	ErrDriverUnavailable = errors.New("messenger: driver unavailable")
	// ErrDriverMisconfigured is returned by a driver constructor when its Options are invalid.
	ErrDriverMisconfigured = errors.New("messenger: driver misconfigured")
)

// DefaultServiceTimeout is used by Service.Request when the caller
// passes a zero timeout.
const DefaultServiceTimeout = 10 * time.Second

// Publisher sends a byte payload without waiting for a reply.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// Service performs a single request and waits for a reply within a
// deadline, failing with ErrTimeout on expiry.
type Service interface {
	Request(ctx context.Context, data []byte, timeout time.Duration) ([]byte, error)
}

// Subscriber yields bytes in transport-arrival order.
type Subscriber interface {
	// Next blocks for the next message. Callers decode the returned
	// bytes themselves; Next never interprets the payload.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Messenger is the transport capability set bound to one connection.
// Any factory may return (nil, nil) to indicate the driver does not
// support that pattern at all (as opposed to a setup failure, which is
// a non-nil error).
type Messenger interface {
	Publisher(topic string, reply string) (Publisher, error)
	Service(topic string, timeout time.Duration) (Service, error)
	Subscriber(topic string, queue string) (Subscriber, error)
	Close() error
}

// Options configures a Messenger driver. Fields not relevant to a given
// driver are ignored by it; see nats.go for the fields the NATS driver uses.
type Options struct {
	// Addrs is a set of driver-specific connection addresses (e.g. NATS_ADDRS).
	Addrs []string
	// Account and Password authenticate to the transport, if it supports it.
	Account  string
	Password string
	// AllowDrop requests newest-wins, drop-oldest behavior on slow subscribers,
	// where the driver supports it (NATS_ALLOW_DROP).
	AllowDrop bool
}

// Constructor builds a Messenger from Options. Registered by drivers via Register.
type Constructor func(Options) (Messenger, error)

var registry = map[string]Constructor{}

// Register adds a driver constructor under name. Called from driver
// package init() functions, or directly by callers wiring in a custom
// driver (e.g. a test fake).
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// New builds a Messenger using the driver registered under name.
// ErrDriverUnavailable wraps the returned error when name has no
// registered constructor.
func New(name string, opts Options) (Messenger, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDriverUnavailable, name)
	}
	m, err := ctor(opts)
	if err != nil {
		return nil, fmt.Errorf("messenger: construct driver %q: %w", name, err)
	}
	return m, nil
}

// Registered reports the names of every currently registered driver,
// primarily useful for diagnostics and tests.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// ros2 driver slot: not implemented (Out of scope). A real
// implementation would translate topic names (dots to path separators,
// dashes to underscores) at the driver boundary and register itself
// here under the name "ros2" via Register.
