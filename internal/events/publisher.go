package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"saferental-service/internal/client"
	"saferental-service/internal/util"
)

// Lifecycle event types published to the agreement topic.
const (
	TypeAgreementCreated = "agreement.created"
	TypePartyVerified    = "agreement.party_verified"
	TypeDelivered        = "agreement.delivered"
	TypeDeliveryFailed   = "agreement.delivery_failed"
)

type Event struct {
	Type            string    `json:"type"`
	AgreementID     string    `json:"agreement_id"`
	AgreementNumber string    `json:"agreement_number,omitempty"`
	UserType        string    `json:"user_type,omitempty"`
	Detail          string    `json:"detail,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher emits agreement lifecycle events to Kafka. A nil Publisher is
// valid and drops everything, so the service runs without a broker.
type Publisher struct {
	producer *client.KafkaProducer
}

func NewPublisher(producer *client.KafkaProducer) *Publisher {
	if producer == nil {
		return nil
	}
	return &Publisher{producer: producer}
}

// Publish writes the event keyed by agreement id. Failures are logged, never
// propagated; the event stream is observability, not state.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal lifecycle event", zap.Error(err))
		return
	}

	if err := p.producer.Publish(ctx, []byte(event.AgreementID), payload); err != nil {
		util.Error("Failed to publish lifecycle event",
			zap.String("type", event.Type),
			zap.String("agreement_id", event.AgreementID),
			zap.Error(err))
		return
	}

	util.Debug("Lifecycle event published",
		zap.String("type", event.Type),
		zap.String("agreement_id", event.AgreementID))
}
