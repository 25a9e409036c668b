package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/kafka"
)

// Kafka fans out over a topic. Each subscriber group is a separate Kafka
// consumer group, so every group receives every message.
type Kafka struct {
	topic    string
	brokers  []string
	producer *kafka.Producer

	mu        sync.Mutex
	consumers []*kafka.Consumer
}

// NewKafka pings the cluster and creates the shared producer.
func NewKafka(ctx context.Context, topic string, cfg config.KafkaConfig) (*Kafka, error) {
	if err := kafka.Ping(ctx, cfg.Brokers); err != nil {
		return nil, err
	}
	p, err := kafka.NewProducer(cfg.Brokers, topic, cfg.Producer)
	if err != nil {
		return nil, err
	}
	return &Kafka{topic: topic, brokers: cfg.Brokers, producer: p}, nil
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, key string, payload []byte) error {
	return k.producer.Publish(ctx, key, payload)
}

func (k *Kafka) Subscribe(ctx context.Context, group string, handler Handler) error {
	c, err := kafka.NewConsumer(k.brokers, k.topic, group)
	if err != nil {
		return fmt.Errorf("kafka subscribe: %w", err)
	}

	k.mu.Lock()
	k.consumers = append(k.consumers, c)
	k.mu.Unlock()

	defer c.Close()
	return c.Run(ctx, kafka.MessageHandler(handler))
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	consumers := k.consumers
	k.consumers = nil
	k.mu.Unlock()

	for _, c := range consumers {
		_ = c.Close()
	}
	return k.producer.Close()
}
