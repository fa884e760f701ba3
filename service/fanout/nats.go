package fanout

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type NatsConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NatsBroker implements Broker on NATS core pub/sub, for deployments that
// already run NATS instead of Redis. Core mode matches the layer's
// non-durable, best-effort contract.
type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(cfg NatsConfig) (*NatsBroker, error) {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

func (b *NatsBroker) Publish(_ context.Context, channel string, payload []byte) error {
	return b.nc.Publish(subject(channel), payload)
}

func (b *NatsBroker) Subscribe(_ context.Context, channel string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(subject(channel), func(m *nats.Msg) {
		h(channel, append([]byte(nil), m.Data...))
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NatsBroker) Close() error {
	b.nc.Close()
	return nil
}

// NATS subjects use dots as separators; channel names use colons.
func subject(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
