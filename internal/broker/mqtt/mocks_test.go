package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

func NewMockToken() *MockToken {
	return &MockToken{
		done: make(chan struct{}),
	}
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// MockClient implements mqtt.Client for testing
type MockClient struct {
	connected       atomic.Bool
	subscribeFunc   func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	unsubscribeFunc func(topics ...string) mqtt.Token
	mu              sync.RWMutex
}

func NewMockClient() *MockClient {
	return &MockClient{
		subscribeFunc: func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
			return NewMockToken()
		},
		unsubscribeFunc: func(topics ...string) mqtt.Token {
			return NewMockToken()
		},
	}
}

func (m *MockClient) Connect() mqtt.Token     { return NewMockToken() }
func (m *MockClient) Disconnect(quiesce uint) {}
func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return NewMockToken()
}
func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.subscribeFunc(topic, qos, callback)
}
func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken()
}
func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	return m.unsubscribeFunc(topics...)
}
func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                   { return m.connected.Load() }
func (m *MockClient) IsConnectionOpen() bool                              { return true }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader             { return mqtt.ClientOptionsReader{} }

// MockMessage implements mqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func NewMockMessage(topic string, payload []byte) *MockMessage {
	return &MockMessage{topic: topic, payload: payload}
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 0 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

// MockHandler implements broker.ObservationHandler for testing
type MockHandler struct {
	mu       sync.Mutex
	topics   []string
	received []MockObservation
}

type MockObservation struct {
	Topic   string
	Payload []byte
}

func NewMockHandler(topics ...string) *MockHandler {
	return &MockHandler{topics: topics}
}

func (h *MockHandler) HandleObservation(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, MockObservation{Topic: topic, Payload: payload})
}

func (h *MockHandler) Topics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.topics...)
}

func (h *MockHandler) SetTopics(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics = topics
}

func (h *MockHandler) Received() []MockObservation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]MockObservation(nil), h.received...)
}
