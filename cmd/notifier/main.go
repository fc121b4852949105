package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const defaultGroupID = "storefront-notifier"

// notifier подписывается на события заказов и печатает их в лог.
// Сообщения, которые не удалось разобрать после нескольких попыток,
// уходят в DLQ.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	logger := log.WithField("component", "notifier")

	var (
		brokersFlag string
		groupID     string
		maxRetries  int
	)
	flag.StringVar(&brokersFlag, "brokers", "", "comma-separated Kafka brokers (fallback: KAFKA_BROKERS)")
	flag.StringVar(&groupID, "group", defaultGroupID, "consumer group id")
	flag.IntVar(&maxRetries, "max-retries", 3, "redeliveries before a message goes to the DLQ")
	flag.Parse()

	if brokersFlag == "" {
		brokersFlag = os.Getenv("KAFKA_BROKERS")
	}
	brokers := splitBrokers(brokersFlag)
	if len(brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS (or -brokers) is required")
	}

	dlqProducer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Fatal("failed to create dlq producer")
	}
	defer func() { _ = dlqProducer.Close() }()

	handler := func(_ context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseOrderEvent(message)
		if err != nil {
			return err
		}
		logger.WithFields(log.Fields{
			"event_type":   event.EventType,
			"order_id":     event.OrderID,
			"user_id":      event.UserID,
			"status":       event.Status,
			"amount_minor": event.AmountMinor,
		}).Info("order event received")
		return nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		groupID,
		[]string{kafka.TopicOrderEvents},
		handler,
		dlqProducer,
		maxRetries,
	)
	if err != nil {
		logger.WithError(err).Fatal("failed to create consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(log.Fields{
		"brokers": brokers,
		"group":   groupID,
		"topic":   kafka.TopicOrderEvents,
	}).Info("notifier started")

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Fatal("consumer failed")
	}

	<-ctx.Done()
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("consumer stopped with error")
	}
	logger.Info("notifier stopped")
}

func splitBrokers(value string) []string {
	parts := strings.Split(value, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			brokers = append(brokers, part)
		}
	}
	return brokers
}
