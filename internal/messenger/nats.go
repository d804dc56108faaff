package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

func init() {
	Register("nats", newNATSMessenger)
}

// natsMessenger is the NATS driver: publish maps to nc.Publish /
// nc.PublishRequest, service to nc.RequestWithContext, subscriber to
// nc.Subscribe / nc.QueueSubscribe with a channel bridge.
type natsMessenger struct {
	conn      *nats.Conn
	allowDrop bool
}

func newNATSMessenger(opts Options) (Messenger, error) {
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("%w: no NATS addresses configured", ErrDriverMisconfigured)
	}

	natsOpts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if opts.Account != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Account, opts.Password))
	}

	url := joinURLs(opts.Addrs)
	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", ErrDriverMisconfigured, url, err)
	}

	return &natsMessenger{conn: conn, allowDrop: opts.AllowDrop}, nil
}

func joinURLs(addrs []string) string {
	url := addrs[0]
	for _, a := range addrs[1:] {
		url += "," + a
	}
	return url
}

func (m *natsMessenger) Publisher(topic string, reply string) (Publisher, error) {
	return &natsPublisher{conn: m.conn, subject: topic, reply: reply}, nil
}

func (m *natsMessenger) Service(topic string, timeout time.Duration) (Service, error) {
	if timeout <= 0 {
		timeout = DefaultServiceTimeout
	}
	return &natsService{conn: m.conn, subject: topic, timeout: timeout}, nil
}

func (m *natsMessenger) Subscriber(topic string, queue string) (Subscriber, error) {
	sub := &natsSubscriber{ch: make(chan []byte, 64), errCh: make(chan error, 1)}

	handler := func(msg *nats.Msg) {
		select {
		case sub.ch <- msg.Data:
		default:
			// Channel bridge full: drop oldest to make room, matching
			// NATS_ALLOW_DROP's newest-wins semantics at the bridge too.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- msg.Data
		}
	}

	var natsSub *nats.Subscription
	var err error
	if queue != "" {
		natsSub, err = m.conn.QueueSubscribe(topic, queue, handler)
	} else {
		natsSub, err = m.conn.Subscribe(topic, handler)
	}
	if err != nil {
		return nil, fmt.Errorf("messenger: nats subscribe %q: %w", topic, err)
	}

	if m.allowDrop {
		if err := natsSub.SetPendingLimits(1, -1); err != nil {
			natsSub.Unsubscribe()
			return nil, fmt.Errorf("messenger: set pending limits: %w", err)
		}
	}

	sub.sub = natsSub
	return sub, nil
}

func (m *natsMessenger) Close() error {
	m.conn.Close()
	return nil
}

type natsPublisher struct {
	conn    *nats.Conn
	subject string
	reply   string
}

func (p *natsPublisher) Publish(ctx context.Context, data []byte) error {
	if p.reply != "" {
		return p.conn.PublishRequest(p.subject, p.reply, data)
	}
	return p.conn.Publish(p.subject, data)
}

type natsService struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

func (s *natsService) Request(ctx context.Context, data []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = s.timeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := s.conn.RequestWithContext(reqCtx, s.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("messenger: nats request %q: %w", s.subject, err)
	}
	return msg.Data, nil
}

type natsSubscriber struct {
	sub   *nats.Subscription
	ch    chan []byte
	errCh chan error
}

func (s *natsSubscriber) Next(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.ch:
		return data, nil
	case err := <-s.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *natsSubscriber) Close() error {
	return s.sub.Unsubscribe()
}
