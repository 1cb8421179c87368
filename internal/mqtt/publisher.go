package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"nia-backend/internal/models"
)

// Publisher publishes cycle records read from a channel
type Publisher struct {
	client mqtt.Client
	logger *zap.SugaredLogger

	// Input channel (read by publisher, written by processing service)
	CycleChan chan *models.CycleRecord

	// Topic pattern
	resultTopic string // e.g., "nia/{session_id}/cycle"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	ResultTopic string // e.g., "nia/{session_id}/cycle"
}

// NewPublisher creates a new MQTT publisher with channels
func NewPublisher(
	client mqtt.Client,
	config PublisherConfig,
	cycleChan chan *models.CycleRecord,
	logger *zap.SugaredLogger,
) *Publisher {
	return &Publisher{
		client:      client,
		logger:      logger,
		CycleChan:   cycleChan,
		resultTopic: config.ResultTopic,
	}
}

// Start begins publishing cycle records from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("MQTT Publisher: Context cancelled, shutting down...")
			return

		case rec, ok := <-p.CycleChan:
			if !ok {
				p.logger.Info("MQTT Publisher: Cycle channel closed, shutting down...")
				return
			}

			if err := p.publishCycle(rec); err != nil {
				p.logger.Errorf("Error publishing cycle record: %v", err)
			}
		}
	}
}

func (p *Publisher) publishCycle(rec *models.CycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle record: %w", err)
	}

	topic := formatTopic(p.resultTopic, rec.SessionID)

	token := p.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish cycle record: %w", token.Error())
	}

	p.logger.Debugf("Published cycle for session %s to topic: %s", rec.SessionID, topic)
	return nil
}

// formatTopic replaces the {session_id} placeholder with the session id
func formatTopic(topicPattern, sessionID string) string {
	return strings.ReplaceAll(topicPattern, "{session_id}", sessionID)
}
