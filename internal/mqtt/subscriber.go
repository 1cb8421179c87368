package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"nia-backend/internal/device"
	"nia-backend/internal/models"
)

// Subscriber handles MQTT subscriptions and writes messages to channels
type Subscriber struct {
	client mqtt.Client
	logger *zap.SugaredLogger

	// Output channels (written by subscriber, read by transport and main)
	PacketChan  chan []byte
	ControlChan chan *models.ControlCommand

	// Topic patterns
	rawTopic     string
	controlTopic string

	sendTimeout time.Duration

	mu       sync.Mutex
	released bool // raw topic handed back by the transport
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	RawTopic     string // e.g., "nia/+/raw"
	ControlTopic string // e.g., "nia/control"
}

// NewSubscriber creates a new MQTT subscriber with channels
func NewSubscriber(
	client mqtt.Client,
	config SubscriberConfig,
	packetChan chan []byte,
	controlChan chan *models.ControlCommand,
	logger *zap.SugaredLogger,
) *Subscriber {
	return &Subscriber{
		client:       client,
		logger:       logger,
		PacketChan:   packetChan,
		ControlChan:  controlChan,
		rawTopic:     config.RawTopic,
		controlTopic: config.ControlTopic,
		sendTimeout:  time.Second,
	}
}

// SubscribeAll subscribes to the raw packet and control topics that are configured
func (s *Subscriber) SubscribeAll() error {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()

	if s.rawTopic != "" && s.PacketChan != nil && !released {
		if err := s.subscribeToTopic(s.rawTopic, s.handlePacket); err != nil {
			return fmt.Errorf("failed to subscribe to raw packet topic: %w", err)
		}
		s.logger.Infof("Subscribed to raw packet topic: %s", s.rawTopic)
	}

	if s.controlTopic != "" && s.ControlChan != nil {
		if err := s.subscribeToTopic(s.controlTopic, s.handleControl); err != nil {
			return fmt.Errorf("failed to subscribe to control topic: %w", err)
		}
		s.logger.Infof("Subscribed to control topic: %s", s.controlTopic)
	}

	return nil
}

// Resubscribe restores the subscriptions after a reconnect
func (s *Subscriber) Resubscribe() {
	if err := s.SubscribeAll(); err != nil {
		s.logger.Errorf("Failed to restore MQTT subscriptions: %v", err)
	}
}

// Unsubscribe drops the raw packet subscription for good. Used as the
// transport release hook.
func (s *Subscriber) Unsubscribe() error {
	if s.rawTopic == "" {
		return nil
	}
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()

	token := s.client.Unsubscribe(s.rawTopic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", s.rawTopic, token.Error())
	}
	return nil
}

func (s *Subscriber) subscribeToTopic(topic string, handler mqtt.MessageHandler) error {
	token := s.client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handlePacket accepts either the bare 64-byte packet or a PacketPayload JSON
// document and forwards the packet bytes
func (s *Subscriber) handlePacket(_ mqtt.Client, msg mqtt.Message) {
	packet, err := parsePacket(msg.Payload())
	if err != nil {
		s.logger.Warnf("Error parsing packet from %s: %v", msg.Topic(), err)
		return
	}

	select {
	case s.PacketChan <- packet:
	case <-time.After(s.sendTimeout):
		s.logger.Warnf("Warning: Packet channel full, dropping packet from %s", extractSessionID(msg.Topic()))
	}
}

// handleControl accepts "shutdown" as plain text or {"command":"shutdown"}
func (s *Subscriber) handleControl(_ mqtt.Client, msg mqtt.Message) {
	cmd, err := parseControl(msg.Payload())
	if err != nil {
		s.logger.Warnf("Error parsing control message: %v", err)
		return
	}
	cmd.Source = "mqtt:" + msg.Topic()

	s.logger.Infof("Received control command %q on %s", cmd.Command, msg.Topic())

	select {
	case s.ControlChan <- cmd:
	case <-time.After(s.sendTimeout):
		s.logger.Warnf("Warning: Control channel full, dropping %q", cmd.Command)
	}
}

func parsePacket(payload []byte) ([]byte, error) {
	if len(payload) == device.PacketLength {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}

	var p models.PacketPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("payload is neither a %d-byte packet nor JSON: %w", device.PacketLength, err)
	}
	if len(p.Data) != device.PacketLength {
		return nil, fmt.Errorf("packet data is %d bytes, want %d", len(p.Data), device.PacketLength)
	}
	return p.Data, nil
}

func parseControl(payload []byte) (*models.ControlCommand, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, fmt.Errorf("empty control payload")
	}

	cmd := &models.ControlCommand{}
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), cmd); err != nil {
			return nil, fmt.Errorf("failed to unmarshal control command: %w", err)
		}
	} else {
		cmd.Command = text
	}
	cmd.Command = strings.ToLower(cmd.Command)
	return cmd, nil
}

// extractSessionID extracts the session or headset id from a topic
// Example: "nia/desk-1/raw" -> "desk-1"
func extractSessionID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
