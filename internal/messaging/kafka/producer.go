package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Заголовки записи, по которым потребители маршрутизируют события без разбора JSON.
const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderMessageID     = "message_id"
)

var errProducerClosed = errors.New("kafka producer is not initialized")

// Message: одна запись для отправки.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer: синхронный producer событий оформления.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

// newSaramaConfig: acks=all, идемпотентная запись, snappy.
// Idempotent требует MaxOpenRequests=1.
func newSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, clientID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers configured")
	}

	sp, err := sarama.NewSyncProducer(brokers, newSaramaConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return newProducer(sp, nil), nil
}

func newProducer(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{
		sync:   sp,
		logger: logger,
		now:    time.Now,
	}
}

// Send отправляет запись и ждёт подтверждения брокеров.
func (p *Producer) Send(msg Message) error {
	if p == nil || p.sync == nil {
		return errProducerClosed
	}

	record := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Value),
		Timestamp: p.now(),
	}
	for name, value := range msg.Headers {
		record.Headers = append(record.Headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(value)})
	}

	fields := log.Fields{"topic": msg.Topic, "key": msg.Key}
	partition, offset, err := p.sync.SendMessage(record)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka record acknowledged")
	return nil
}

// PublishEvent сериализует event в JSON и отправляет с ключом партиционирования.
func (p *Producer) PublishEvent(topic, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}
	return p.Send(Message{Topic: topic, Key: key, Value: value})
}

// Close дожидается отправки буфера и закрывает соединения.
func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
