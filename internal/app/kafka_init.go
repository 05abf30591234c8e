package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
)

const kafkaClientID = "checkout-service"

// initKafkaProducer создаёт producer, если брокеры заданы.
// Без брокеров возвращает nil, nil: события копятся в outbox до включения Kafka.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, kafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafkaProducer закрывает producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startOutboxWorker запускает публикацию outbox в Kafka. Возвращает cancel и канал завершения,
// оба nil, если producer не создан.
func startOutboxWorker(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	if producer == nil || repo == nil {
		return nil, nil
	}

	workerCfg := outbox.DefaultConfig()
	workerCfg.PollInterval = cfg.OutboxPollInterval
	workerCfg.BatchSize = cfg.OutboxBatchSize
	workerCfg.MaxAttempts = cfg.OutboxMaxAttempts

	options := []outbox.Option{outbox.WithLogger(logger.WithField("component", "outbox-worker"))}
	if cfg.KafkaDLQTopic != "" {
		options = append(options, outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)))
	}
	worker := outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), workerCfg, options...)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

// shutdownOutboxWorker останавливает воркер и ждёт завершения текущего цикла.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
	logger.Info("outbox worker stopped")
}
