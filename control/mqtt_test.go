package control

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// mockClient records subscriptions and publishes. Methods the bridge does
// not call panic through the nil embedded interface.
type mockClient struct {
	paho.Client

	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     chan publishedMessage
	unsubscribed  []string
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func newMockClient() *mockClient {
	return &mockClient{
		subscriptions: make(map[string]paho.MessageHandler),
		published:     make(chan publishedMessage, 16),
	}
}

func (m *mockClient) Subscribe(topic string, _ byte, handler paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return &mockToken{}
}

func (m *mockClient) Unsubscribe(topics ...string) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, topic := range topics {
		delete(m.subscriptions, topic)
		m.unsubscribed = append(m.unsubscribed, topic)
	}
	return &mockToken{}
}

func (m *mockClient) Publish(topic string, qos byte, _ bool, payload any) paho.Token {
	m.published <- publishedMessage{topic: topic, payload: payload.([]byte), qos: qos}
	return &mockToken{}
}

func (m *mockClient) simulate(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if ok {
		handler(m, &mockMessage{topic: topic, payload: payload})
	}
	return ok
}

func (m *mockClient) next(t *testing.T) publishedMessage {
	t.Helper()
	select {
	case msg := <-m.published:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
		return publishedMessage{}
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

type mockToken struct{}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{}            { ch := make(chan struct{}); close(ch); return ch }
func (t *mockToken) Error() error                     { return nil }

// pendingToken never completes.
type pendingToken struct{ mockToken }

func (t *pendingToken) Done() <-chan struct{} { return make(chan struct{}) }

func TestBridge_Topics(t *testing.T) {
	b := NewBridge(newMockClient(), nil, BridgeOptions{Topic: "studio/lt"})
	if b.RequestTopic() != "studio/lt/request" {
		t.Errorf("RequestTopic = %q", b.RequestTopic())
	}
	if b.ResponseTopic() != "studio/lt/response" {
		t.Errorf("ResponseTopic = %q", b.ResponseTopic())
	}
}

func TestBridge_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newMockClient()
	d, scene := newDispatcher(t)
	b := NewBridge(client, d.api, BridgeOptions{Topic: "studio/lt", QoS: 1})
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	requests := []string{
		`{"id":"a","action":"load","params":{"renderType":"realtime","data":{"title":"One"}}}`,
		`{"id":"b","action":"updateAction","params":{"data":{"title":"Two"}}}`,
		`{"id":"c","action":"playAction"}`,
	}
	for _, r := range requests {
		if !client.simulate("studio/lt/request", []byte(r)) {
			t.Fatal("bridge did not subscribe to the request topic")
		}
	}

	for _, wantID := range []string{"a", "b", "c"} {
		msg := client.next(t)
		if msg.topic != "studio/lt/response" || msg.qos != 1 {
			t.Errorf("published to %s qos %d", msg.topic, msg.qos)
		}
		var resp Response
		if err := json.Unmarshal(msg.payload, &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.ID != wantID {
			t.Errorf("response id = %q, want %q", resp.ID, wantID)
		}
		if resp.Result.StatusCode != 200 {
			t.Errorf("%s status = %d (%s)", wantID, resp.Result.StatusCode, resp.Result.Message)
		}
	}

	if v, _ := scene.Instances()[0].Values().Value("title"); v != "Two" {
		t.Errorf("title = %v, want Two", v)
	}

	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if len(client.unsubscribed) != 1 || client.unsubscribed[0] != "studio/lt/request" {
		t.Errorf("unsubscribed = %v", client.unsubscribed)
	}
}

func TestBridge_MalformedRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newMockClient()
	d, _ := newDispatcher(t)
	b := NewBridge(client, d.api, BridgeOptions{Topic: "g"})
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Stop(ctx)

	client.simulate("g/request", []byte("not json"))

	var resp Response
	if err := json.Unmarshal(client.next(t).payload, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.Result.StatusCode)
	}
}

type stuckClient struct {
	*mockClient
}

func (c stuckClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return &pendingToken{}
}

func TestBridge_SubscribeTimeout(t *testing.T) {
	b := NewBridge(stuckClient{newMockClient()}, nil, BridgeOptions{Topic: "g", Timeout: 20 * time.Millisecond})
	if err := b.Start(context.Background()); err == nil {
		t.Error("expected subscribe timeout")
	}
}

func TestBridge_QueueFull(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	client := newMockClient()
	// not started, so nothing drains the queue
	b := NewBridge(client, nil, BridgeOptions{Topic: "g"})
	for i := 0; i < queueSize; i++ {
		b.onMessage(client, &mockMessage{topic: "g/request", payload: []byte(`{"id":"queued","action":"playAction"}`)})
	}

	b.onMessage(client, &mockMessage{topic: "g/request", payload: []byte(`{"id":"late","action":"playAction"}`)})
	var resp Response
	if err := json.Unmarshal(client.next(t).payload, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "late" || resp.Result.StatusCode != 500 || resp.Error != "control queue full" {
		t.Errorf("response = %+v", resp)
	}
	if n := logs.FilterMessageSnippet("not valid JSON").Len(); n != 0 {
		t.Errorf("well-formed request logged %d decode errors", n)
	}

	b.onMessage(client, &mockMessage{topic: "g/request", payload: []byte("not json")})
	resp = Response{}
	if err := json.Unmarshal(client.next(t).payload, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "" || resp.Result.StatusCode != 500 {
		t.Errorf("response = %+v", resp)
	}
	decode := logs.FilterMessageSnippet("not valid JSON").AllUntimed()
	if len(decode) != 1 || decode[0].Level != zapcore.DebugLevel {
		t.Fatalf("decode log entries = %+v, want one at debug", decode)
	}
	if _, ok := decode[0].ContextMap()["error"]; !ok {
		t.Error("decode log entry has no error field")
	}
}
