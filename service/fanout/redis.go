package fanout

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ezmad-Ze/chat-app/logger"
	"github.com/Ezmad-Ze/chat-app/tools/safe"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisBroker implements Broker on Redis pub/sub. Redis guarantees
// per-channel ordering from a single publisher, which is exactly the
// ordering contract the gateway exposes.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(ctx context.Context, cfg RedisConfig) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBroker{client: rdb}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	// Receive forces the SUBSCRIBE round trip so a publish immediately after
	// Subscribe returns cannot be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	safe.Go(func() {
		for msg := range ps.Channel() {
			h(msg.Channel, []byte(msg.Payload))
		}
	})
	return &redisSubscription{ps: ps, channel: channel}, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps      *redis.PubSub
	channel string
}

func (s *redisSubscription) Unsubscribe() error {
	if err := s.ps.Close(); err != nil {
		logger.Warnf("[fanout] redis unsubscribe %s: %v", s.channel, err)
		return err
	}
	return nil
}
