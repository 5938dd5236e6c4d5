package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/press-logger/internal/logic"
)

// bufferCapacity is how many messages are held while the broker is away.
const bufferCapacity = 500

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and flushed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. It does not
// fail when the broker is unreachable: the client keeps retrying in the
// background and messages are buffered meanwhile.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{buf: newRingBuffer(bufferCapacity)}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "connection lost",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", broker)
	} else if err := token.Error(); err != nil {
		log.Printf("mqtt: connect to broker: %v", err)
	}

	return p
}

// flush announces the reconnection and replays buffered messages.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.buf.drainAll()
	p.mu.Unlock()

	reconnected, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "RECONNECTED",
		Retained:  true,
	})
	if err := p.send(bufferedMsg{topic: TopicSystem, payload: reconnected, qos: 1, retained: true}); err != nil {
		log.Printf("mqtt: publish reconnected: %v", err)
	}

	if len(msgs) > 0 || dropped > 0 {
		log.Printf("mqtt: flushing %d buffered messages (%d dropped)", len(msgs), dropped)
	}
	for i, msg := range msgs {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: flush: %v", err)
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.buf.push(rest)
			}
			p.mu.Unlock()
			return
		}
	}
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// publish sends msg now, or buffers it when the client is offline or the
// send fails.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	if err := p.send(msg); err != nil {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

// Publish sends a press record to the MQTT broker.
func (p *RealPublisher) Publish(ev logic.PressEvent) error {
	payload, err := FormatPayload(ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1 (at-least-once), not retained
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Buffered returns the number of messages waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
