// Package mqtt owns the broker connection and inbound message delivery.
package mqtt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// reconnectBackoff is the fixed wait between connection attempts.
	reconnectBackoff = 5 * time.Second

	// tokenTimeout bounds every publish/subscribe token wait.
	tokenTimeout = 5 * time.Second

	// inboundBuffer sizes the channel between the network callback and
	// the router consumer.
	inboundBuffer = 256
)

// Config holds MQTT connection configuration
type Config struct {
	Broker   string // MQTT broker address (e.g., "tcp://localhost:1883")
	ClientID string // Unique client ID
	Username string // MQTT username (optional)
	Password string // MQTT password (optional)
}

// Message is one inbound broker message.
type Message struct {
	Topic   string
	Payload string
}

// TopicSource yields the full set of topics that must be subscribed.
// The device state store implements this.
type TopicSource interface {
	Topics() []string
}

// Handler consumes inbound messages. The message router implements this.
type Handler interface {
	Handle(topic, payload string)
}

// Manager owns the single logical connection to the broker. It
// reconnects with a fixed backoff forever, re-subscribes to every
// registered topic on each (re)connect, and feeds inbound messages to a
// single consumer goroutine so message processing stays ordered and
// decoupled from network I/O.
type Manager struct {
	client  mqtt.Client
	cfg     Config
	topics  TopicSource
	handler Handler
	logger  *log.Logger

	mu        sync.Mutex
	desired   map[string]struct{} // topics wanted; applied while connected
	connected bool

	inbound chan Message
	lost    chan struct{}
}

// NewManager creates a broker connection manager. Nothing connects
// until Start is called.
func NewManager(cfg Config, topics TopicSource, handler Handler, logger *log.Logger) (*Manager, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("iotview-%d", time.Now().Unix())
	}

	m := &Manager{
		cfg:     cfg,
		topics:  topics,
		handler: handler,
		logger:  logger,
		desired: make(map[string]struct{}),
		inbound: make(chan Message, inboundBuffer),
		lost:    make(chan struct{}, 1),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// The manager owns the retry loop; paho must not race it.
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Every inbound message lands here: push onto the channel drained by
	// the consumer goroutine. The callback never touches device state.
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		m.inbound <- Message{Topic: msg.Topic(), Payload: string(msg.Payload())}
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		m.onConnect()
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if m.logger != nil {
			m.logger.Printf("[MQTT] Connection lost: %v", err)
		}
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		select {
		case m.lost <- struct{}{}:
		default:
		}
	})

	m.client = mqtt.NewClient(opts)
	return m, nil
}

// Start launches the connection loop and the message consumer. The loop
// runs until ctx is cancelled; network errors are steady-state, never
// fatal.
func (m *Manager) Start(ctx context.Context) {
	go m.consume(ctx)
	go m.run(ctx)
}

// run is the connection loop: connect, wait for loss, back off, retry.
func (m *Manager) run(ctx context.Context) {
	if m.logger != nil {
		m.logger.Printf("[MQTT] Connecting to broker: %s", m.cfg.Broker)
	}
	for {
		token := m.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			if m.logger != nil {
				m.logger.Printf("[MQTT] Connect failed: %v. Retrying in %v", err, reconnectBackoff)
			}
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		// Connected; onConnect has already resubscribed. Wait for loss
		// or shutdown.
		select {
		case <-m.lost:
			if !m.sleep(ctx) {
				return
			}
		case <-ctx.Done():
			m.client.Disconnect(250)
			if m.logger != nil {
				m.logger.Printf("[MQTT] Disconnected from broker")
			}
			return
		}
	}
}

// sleep waits out the backoff interval; returns false on shutdown.
func (m *Manager) sleep(ctx context.Context) bool {
	select {
	case <-time.After(reconnectBackoff):
		return true
	case <-ctx.Done():
		return false
	}
}

// consume drains the inbound channel and invokes the router. Single
// consumer: per-topic ordering is exactly broker delivery order.
func (m *Manager) consume(ctx context.Context) {
	for {
		select {
		case msg := <-m.inbound:
			m.handler.Handle(msg.Topic, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

// onConnect re-syncs subscription state: the registry's bound topics
// are authoritative, repairing any drift accumulated across the
// disconnect.
func (m *Manager) onConnect() {
	topics := m.topics.Topics()

	m.mu.Lock()
	m.connected = true
	m.desired = make(map[string]struct{}, len(topics))
	for _, t := range topics {
		m.desired[t] = struct{}{}
	}
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Printf("[MQTT] Connected to broker: %s", m.cfg.Broker)
	}

	for _, t := range topics {
		m.subscribe(t)
	}
}

// Subscribe adds a topic to the subscription set. Safe to call at any
// time; while disconnected the topic is only recorded and picked up on
// the next connect.
func (m *Manager) Subscribe(topic string) {
	m.mu.Lock()
	m.desired[topic] = struct{}{}
	connected := m.connected
	m.mu.Unlock()

	if connected {
		m.subscribe(topic)
	}
}

// Unsubscribe removes a topic from the subscription set.
func (m *Manager) Unsubscribe(topic string) {
	m.mu.Lock()
	delete(m.desired, topic)
	connected := m.connected
	m.mu.Unlock()

	if !connected {
		return
	}
	token := m.client.Unsubscribe(topic)
	if token.WaitTimeout(tokenTimeout) && token.Error() != nil {
		if m.logger != nil {
			m.logger.Printf("[MQTT] Unsubscribe %s failed: %v", topic, token.Error())
		}
		return
	}
	if m.logger != nil {
		m.logger.Printf("[MQTT] Unsubscribed from %s", topic)
	}
}

// subscribe issues the broker subscription; failures are logged and
// repaired on the next reconnect.
func (m *Manager) subscribe(topic string) {
	token := m.client.Subscribe(topic, 0, nil)
	if token.WaitTimeout(tokenTimeout) && token.Error() != nil {
		if m.logger != nil {
			m.logger.Printf("[MQTT] Subscribe %s failed: %v", topic, token.Error())
		}
		return
	}
	if m.logger != nil {
		m.logger.Printf("[MQTT] Subscribed to %s", topic)
	}
}

// Publish sends a payload to a topic with QoS 0 and a bounded wait.
func (m *Manager) Publish(topic, payload string) error {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()

	if !connected {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	if m.logger != nil {
		m.logger.Printf("[MQTT] Published to %s: %s", topic, payload)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected && m.client.IsConnected()
}

// DesiredTopics returns a copy of the topics the manager wants
// subscribed (for diagnostics and tests).
func (m *Manager) DesiredTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	topics := make([]string, 0, len(m.desired))
	for t := range m.desired {
		topics = append(topics, t)
	}
	return topics
}
