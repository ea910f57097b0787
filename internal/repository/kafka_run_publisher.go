package repository

import (
	"context"
	"fmt"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
)

// runProducer is satisfied by *pkg/kafka.Producer.
type runProducer interface {
	Publish(ctx context.Context, key []byte, value interface{}) error
	Close() error
}

// KafkaRunPublisher emits one JSON RunReport per finished run, keyed by run id.
type KafkaRunPublisher struct {
	producer runProducer
}

func NewKafkaRunPublisher(p runProducer) *KafkaRunPublisher {
	return &KafkaRunPublisher{producer: p}
}

var _ domrepo.RunPublisher = (*KafkaRunPublisher)(nil)

func (p *KafkaRunPublisher) PublishRun(ctx context.Context, report *models.RunReport) error {
	if report == nil {
		return nil
	}
	if err := p.producer.Publish(ctx, []byte(report.RunID), report); err != nil {
		return fmt.Errorf("publish run %s: %w", report.RunID, err)
	}
	return nil
}

func (p *KafkaRunPublisher) Close() error {
	return p.producer.Close()
}
