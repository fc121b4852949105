package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// logPublisher печатает события outbox в лог. Используется, когда Kafka
// не настроен: воркер продолжает разгребать backlog, а события остаются
// видимыми в логах.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) domain.OutboxPublisher {
	if logger == nil {
		logger = log.WithField("component", "log-publisher")
	}
	return &logPublisher{logger: logger.WithField("component", "log-publisher")}
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"id":           event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Info("outbox event published to log")
	return nil
}

var _ domain.OutboxPublisher = (*logPublisher)(nil)
