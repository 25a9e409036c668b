package broker

import (
	"context"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
)

// MQTT fans out over a single topic. The broker delivers each message once
// to this client; local subscriptions share that delivery.
type MQTT struct {
	client mqtt.Client
	topic  string
	qos    byte

	mu         sync.RWMutex
	handlers   map[int]mqttSub
	nextID     int
	subscribed bool
	closed     bool
	done       chan struct{}
}

type mqttSub struct {
	ctx     context.Context
	handler Handler
}

// NewMQTT connects to the configured broker.
func NewMQTT(topic string, cfg config.MQTTConfig) (*MQTT, error) {
	m := &MQTT{
		topic:    topic,
		qos:      cfg.QoS,
		handlers: make(map[int]mqttSub),
		done:     make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log := logger.WithComponent("broker_mqtt")
			log.Warn().Err(err).Msg("mqtt connection lost")
		})

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return m, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Publish(ctx context.Context, _ string, payload []byte) error {
	if m.isClosed() {
		return ErrClosed
	}
	token := m.client.Publish(m.topic, m.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) Subscribe(ctx context.Context, group string, handler Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	id := m.nextID
	m.nextID++
	m.handlers[id] = mqttSub{ctx: ctx, handler: handler}
	needSubscribe := !m.subscribed
	m.subscribed = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}()

	if needSubscribe {
		if err := m.subscribe(); err != nil {
			m.mu.Lock()
			m.subscribed = false
			m.mu.Unlock()
			return err
		}
	}

	log := logger.WithComponent("broker_mqtt")
	log.Info().
		Str("topic", m.topic).
		Str("group", group).
		Msg("mqtt subscription active")

	select {
	case <-ctx.Done():
	case <-m.done:
	}
	return nil
}

func (m *MQTT) subscribe() error {
	token := m.client.Subscribe(m.topic, m.qos, m.dispatch)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt subscribe to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}
	return nil
}

// onConnect restores the topic subscription after a reconnect.
func (m *MQTT) onConnect(_ mqtt.Client) {
	m.mu.RLock()
	resubscribe := m.subscribed && !m.closed
	m.mu.RUnlock()
	if !resubscribe {
		return
	}
	if err := m.subscribe(); err != nil {
		log := logger.WithComponent("broker_mqtt")
		log.Error().Err(err).Msg("mqtt resubscribe failed")
	}
}

func (m *MQTT) dispatch(_ mqtt.Client, msg mqtt.Message) {
	m.mu.RLock()
	subs := make([]mqttSub, 0, len(m.handlers))
	for _, s := range m.handlers {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	for _, s := range subs {
		s.handler(s.ctx, msg.Payload())
	}
}

func (m *MQTT) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.client.Disconnect(250)
	return nil
}
