package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/srg/bleproxy/internal/device"
)

// Message is one publish recorded by RecordingPublisher.
type Message struct {
	Topic   string
	Payload string
	QoS     byte
	Retain  bool
}

// RecordingPublisher is an in-memory message bus. Publishes fail with
// device.ErrNotConnected while Connected is false.
type RecordingPublisher struct {
	mu        sync.Mutex
	connected bool
	failNext  int
	messages  []Message
}

// NewRecordingPublisher returns a connected publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{connected: true}
}

func (p *RecordingPublisher) Publish(_ context.Context, topic string, payload []byte, qos byte, retain bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return fmt.Errorf("%w: publish %s", device.ErrNotConnected, topic)
	}
	if p.failNext > 0 {
		p.failNext--
		return fmt.Errorf("publish %s: broker rejected", topic)
	}
	p.messages = append(p.messages, Message{Topic: topic, Payload: string(payload), QoS: qos, Retain: retain})
	return nil
}

func (p *RecordingPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SetConnected toggles the simulated broker connection.
func (p *RecordingPublisher) SetConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = connected
}

// FailNext makes the next n publishes fail while still reporting connected.
func (p *RecordingPublisher) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
}

// Messages returns a copy of everything published so far.
func (p *RecordingPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Find returns the last message published to topic.
func (p *RecordingPublisher) Find(topic string) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].Topic == topic {
			return p.messages[i], true
		}
	}
	return Message{}, false
}

// Reset forgets recorded messages.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

// Transcript renders recorded messages one per line as "topic = payload".
// Discovery payloads are abbreviated to "<discovery>" when skipDiscovery is set.
func (p *RecordingPublisher) Transcript(skipDiscovery bool) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	for _, m := range p.messages {
		payload := m.Payload
		if skipDiscovery && strings.HasPrefix(m.Topic, "homeassistant/") {
			payload = "<discovery>"
		}
		fmt.Fprintf(&sb, "%s = %s\n", m.Topic, payload)
	}
	return sb.String()
}
