package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
)

// Transport errors
var (
	ErrClosed      = errors.New("transport is closed")
	ErrUnavailable = errors.New("broker unavailable")
	ErrDisabled    = errors.New("broker disabled")
)

// Handler receives one message payload. Handlers must not retain payload
// after returning.
type Handler func(ctx context.Context, payload []byte)

// Transport is a fanout publish/subscribe primitive over a single named
// channel. Every active subscription receives a copy of every message
// published after it was established. Implementations are safe for
// concurrent use.
type Transport interface {
	// Publish sends one message. key orders related messages where the
	// transport supports it.
	Publish(ctx context.Context, key string, payload []byte) error
	// Subscribe delivers messages to handler until ctx is cancelled or the
	// transport is closed. group names the subscriber role; distinct groups
	// each get every message.
	Subscribe(ctx context.Context, group string, handler Handler) error
	// Name identifies the driver in logs and stats.
	Name() string
	Close() error
}

const connectTimeout = 5 * time.Second

// Open connects the transport selected by cfg.Driver. It returns
// ErrDisabled for the "none" driver and wraps ErrUnavailable when the
// broker cannot be reached.
func Open(ctx context.Context, cfg config.BrokerConfig) (Transport, error) {
	log := logger.WithComponent("broker")

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var (
		t   Transport
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		t = NewMemory(0)
	case config.DriverKafka:
		t, err = NewKafka(ctx, cfg.Channel, cfg.Kafka)
	case config.DriverMQTT:
		t, err = NewMQTT(cfg.Channel, cfg.MQTT)
	case config.DriverRedis:
		t, err = NewRedis(ctx, cfg.Channel, cfg.Redis)
	case config.DriverNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, cfg.Driver, err)
	}

	log.Info().
		Str("driver", t.Name()).
		Str("channel", cfg.Channel).
		Msg("broker connected")
	return t, nil
}
