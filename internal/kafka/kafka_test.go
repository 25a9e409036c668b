package kafka

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go/compress"

	"github.com/dymasius12/factory-motor-monitoring/internal/config"
)

// skipIfNoKafka skips the test if Kafka is not available
func skipIfNoKafka(t *testing.T) {
	if os.Getenv("KAFKA_TEST") != "1" {
		t.Skip("Skipping Kafka integration test. Set KAFKA_TEST=1 to run.")
	}
}

func TestNewProducerRequiresBrokersAndTopic(t *testing.T) {
	cfg := config.Default().Broker.Kafka.Producer

	if _, err := NewProducer(nil, "motor.alerts", cfg); !errors.Is(err, ErrNoBrokers) {
		t.Errorf("no brokers: got %v, want ErrNoBrokers", err)
	}
	if _, err := NewProducer([]string{"localhost:9092"}, "", cfg); !errors.Is(err, ErrNoTopic) {
		t.Errorf("no topic: got %v, want ErrNoTopic", err)
	}
}

func TestNewConsumerRequiresGroup(t *testing.T) {
	if _, err := NewConsumer([]string{"localhost:9092"}, "motor.alerts", ""); err == nil {
		t.Error("expected error for empty group id")
	}
}

func TestGetCompression(t *testing.T) {
	tests := map[string]compress.Compression{
		"gzip":   compress.Gzip,
		"snappy": compress.Snappy,
		"lz4":    compress.Lz4,
		"zstd":   compress.Zstd,
		"none":   compress.None,
		"":       compress.None,
	}
	for name, want := range tests {
		if got := getCompression(name); got != want {
			t.Errorf("getCompression(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPublishAfterClose(t *testing.T) {
	p, err := NewProducer([]string{"localhost:9092"}, "motor.alerts", config.Default().Broker.Kafka.Producer)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Publish(context.Background(), "motor-001", []byte("{}")); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("Publish after close: got %v, want ErrProducerClosed", err)
	}
	// Second close is a no-op.
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestProducerConsumerRoundTrip(t *testing.T) {
	skipIfNoKafka(t)

	cfg := config.Default()
	topic := "motorwatch-test-" + uuid.NewString()[:8]

	consumer, err := NewConsumer(cfg.Broker.Kafka.Brokers, topic, "test-"+uuid.NewString()[:8])
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	defer consumer.Close()

	producer, err := NewProducer(cfg.Broker.Kafka.Brokers, topic, cfg.Broker.Kafka.Producer)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	got := make(chan []byte, 1)
	go consumer.Run(ctx, func(_ context.Context, v []byte) {
		select {
		case got <- v:
		default:
		}
	})

	// The consumer starts at the newest offset; keep publishing until it
	// has joined and sees a message.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := producer.Publish(ctx, "motor-001", []byte(`{"ping":true}`)); err != nil {
			t.Logf("publish: %v", err)
		}
		select {
		case v := <-got:
			if string(v) != `{"ping":true}` {
				t.Errorf("consumed %q", v)
			}
			if producer.Stats().MessagesSent == 0 {
				t.Error("expected MessagesSent > 0")
			}
			return
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		}
	}
}
