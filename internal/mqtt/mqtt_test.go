package mqtt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"nia-backend/internal/models"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type doneToken struct{ err error }

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *doneToken) Error() error { return t.err }

// fakeClient records publishes; other methods panic through the nil embed
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	published    map[string][]byte
	subscribed   []string
	unsubscribed []string
}

func (c *fakeClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &doneToken{}
}

func (c *fakeClient) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = map[string][]byte{}
	}
	c.published[topic] = payload.([]byte)
	return &doneToken{}
}

func (c *fakeClient) get(topic string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.published[topic]
	return b, ok
}

func TestHandlePacketRawAndJSON(t *testing.T) {
	packets := make(chan []byte, 2)
	s := NewSubscriber(nil, SubscriberConfig{}, packets, nil, zap.NewNop().Sugar())

	raw := make([]byte, 64)
	raw[0] = 9
	s.handlePacket(nil, &fakeMessage{topic: "nia/desk/raw", payload: raw})

	doc := `{"session_id":"desk","data":"` + base64.StdEncoding.EncodeToString(raw) + `"}`
	s.handlePacket(nil, &fakeMessage{topic: "nia/desk/raw", payload: []byte(doc)})

	for i := 0; i < 2; i++ {
		got := <-packets
		if len(got) != 64 || got[0] != 9 {
			t.Fatalf("packet %d = %v", i, got[:4])
		}
	}
}

func TestHandlePacketRejectsBadPayload(t *testing.T) {
	packets := make(chan []byte, 1)
	s := NewSubscriber(nil, SubscriberConfig{}, packets, nil, zap.NewNop().Sugar())

	s.handlePacket(nil, &fakeMessage{topic: "nia/x/raw", payload: []byte("garbage")})
	s.handlePacket(nil, &fakeMessage{topic: "nia/x/raw", payload: []byte(`{"data":"AAEC"}`)})

	select {
	case p := <-packets:
		t.Fatalf("unexpected packet %v", p)
	default:
	}
}

func TestHandlePacketDropsWhenFull(t *testing.T) {
	packets := make(chan []byte)
	s := NewSubscriber(nil, SubscriberConfig{}, packets, nil, zap.NewNop().Sugar())
	s.sendTimeout = time.Millisecond

	done := make(chan struct{})
	go func() {
		s.handlePacket(nil, &fakeMessage{topic: "nia/x/raw", payload: make([]byte, 64)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked on a full channel")
	}
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{"shutdown", "shutdown", false},
		{"  SHUTDOWN\n", "shutdown", false},
		{`{"command":"shutdown"}`, "shutdown", false},
		{"", "", true},
		{"{not json", "", true},
	}
	for _, tt := range tests {
		cmd, err := parseControl([]byte(tt.payload))
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseControl(%q) err = %v", tt.payload, err)
		}
		if err == nil && cmd.Command != tt.want {
			t.Fatalf("parseControl(%q) = %q, want %q", tt.payload, cmd.Command, tt.want)
		}
	}
}

func TestHandleControlSetsSource(t *testing.T) {
	control := make(chan *models.ControlCommand, 1)
	s := NewSubscriber(nil, SubscriberConfig{}, nil, control, zap.NewNop().Sugar())

	s.handleControl(nil, &fakeMessage{topic: "nia/control", payload: []byte("shutdown")})

	cmd := <-control
	if cmd.Command != "shutdown" || cmd.Source != "mqtt:nia/control" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestPublisherFormatsTopic(t *testing.T) {
	client := &fakeClient{}
	cycles := make(chan *models.CycleRecord, 1)
	p := NewPublisher(client, PublisherConfig{ResultTopic: "nia/{session_id}/cycle"}, cycles, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	cycles <- &models.CycleRecord{SessionID: "abc", BrainState: "Calm"}

	deadline := time.Now().Add(2 * time.Second)
	var payload []byte
	for {
		if b, ok := client.get("nia/abc/cycle"); ok {
			payload = b
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cycle never published")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	var rec models.CycleRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.BrainState != "Calm" {
		t.Fatalf("brain_state = %q", rec.BrainState)
	}
}

func TestExtractSessionID(t *testing.T) {
	if got := extractSessionID("nia/desk-1/raw"); got != "desk-1" {
		t.Fatalf("got %q", got)
	}
	if got := extractSessionID("flat"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestResubscribeSkipsReleasedRawTopic(t *testing.T) {
	client := &fakeClient{}
	sub := NewSubscriber(client, SubscriberConfig{RawTopic: "nia/+/raw", ControlTopic: "nia/control"},
		make(chan []byte, 1), make(chan *models.ControlCommand, 1), zap.NewNop().Sugar())

	if err := sub.SubscribeAll(); err != nil {
		t.Fatalf("SubscribeAll: %v", err)
	}
	sub.Resubscribe()
	if got := client.subscriptions(); len(got) != 4 {
		t.Fatalf("subscriptions after reconnect = %v", got)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	sub.Resubscribe()
	got := client.subscriptions()
	if len(got) != 5 || got[4] != "nia/control" {
		t.Fatalf("released raw topic came back: %v", got)
	}
}

func TestClientRunsHooksOnReconnectOnly(t *testing.T) {
	c := &Client{logger: zap.NewNop().Sugar()}
	ran := make(chan struct{}, 2)
	c.OnReconnect(func() { ran <- struct{}{} })

	c.handleConnect(nil)
	select {
	case <-ran:
		t.Fatal("hook ran on the initial connection")
	case <-time.After(50 * time.Millisecond):
	}

	c.handleConnect(nil)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("hook did not run after reconnect")
	}
}
