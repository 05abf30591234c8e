package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// OutboxEnvelope: формат записи в topic событий оформления.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher пишет outbox-сообщения в один topic.
// Ключ записи: id сессии, поэтому события одной сессии попадают в одну партицию по порядку.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher; пустой topic заменяется на TopicCheckoutEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicCheckoutEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string { return p.topic }

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errProducerClosed
	}

	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		return fmt.Errorf("outbox message %s: payload is not valid json", event.ID)
	}

	value, err := json.Marshal(OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   p.now(),
	})
	if err != nil {
		return fmt.Errorf("encode outbox envelope %s: %w", event.ID, err)
	}

	return p.producer.Send(Message{
		Topic: p.topic,
		Key:   partitionKey(event),
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     event.EventType,
			HeaderAggregateType: event.AggregateType,
			HeaderMessageID:     event.ID,
		},
	})
}

func partitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
