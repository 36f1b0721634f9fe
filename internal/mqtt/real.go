package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/molding-monitor/internal/logic"
)

const bufferCapacity = 1000

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID, prefix string) (*RealPublisher, error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if clientID == "" {
		clientID = "molding-monitor"
	}
	p := &RealPublisher{prefix: prefix, buf: newRingBuffer(bufferCapacity)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(SystemTopic(prefix), WillPayload(), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.replay() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Publish sends a machine event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: EventTopic(p.prefix, event), payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: SystemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) replay() {
	p.mu.Lock()
	dropped := p.buf.dropped
	msgs := p.buf.drainAll()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: connected, replaying %d buffered messages (%d dropped)", len(msgs), dropped)
	for _, m := range msgs {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
