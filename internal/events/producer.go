package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"estate-access-backend/internal/services/billing"

	"github.com/IBM/sarama"
)

var _ billing.Publisher = (*Producer)(nil)

// Producer announces issued receipts.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewProducer(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	sp, err := connect(ctx, logger, "producer", func() (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(brokers, cfg)
	})
	if err != nil {
		return nil, err
	}
	return NewProducerFromClient(sp, topic, logger), nil
}

func NewProducerFromClient(sp sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{producer: sp, topic: topic, logger: logger.With("component", "kafka-producer")}
}

// PublishReceiptIssued keys by tenant so a tenant's receipts stay ordered.
func (p *Producer) PublishReceiptIssued(_ context.Context, r billing.ReceiptIssued) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{EventType: billing.EventReceiptIssued, Data: body})
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(r.TenantID.String()),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return err
	}
	p.logger.Debug("receipt issued published", "payment_id", r.PaymentID, "partition", partition, "offset", offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
