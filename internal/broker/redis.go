package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
)

// Redis fans out with PUBLISH/SUBSCRIBE. Every subscription holds its own
// pub/sub connection.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, channel string, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Redis{client: client, channel: channel}, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Publish(ctx context.Context, _ string, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		if err == redis.ErrClosed {
			return ErrClosed
		}
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, group string, handler Handler) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	// Wait for the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}

	log := logger.WithComponent("broker_redis")
	log.Info().
		Str("channel", r.channel).
		Str("group", group).
		Msg("redis subscription active")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(ctx, []byte(msg.Payload))
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
