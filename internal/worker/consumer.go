package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errDeliveriesClosed = errors.New("delivery channel closed by broker")

// setupConsumer subscribes to the export queue and returns the delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.broker.Consume(w.workerID, w.prefetch, w.autoAck)
	if err != nil {
		w.logger.Error("Failed to start consuming",
			slog.String("worker_id", w.workerID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetch),
	)

	return deliveries, nil
}

// startMessageDispatcher hands deliveries to the worker pool until ctx is
// canceled or the broker closes the delivery channel
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("RabbitMQ delivery channel closed",
					slog.String("worker_id", w.workerID),
				)
				return errDeliveriesClosed
			}

			messagesReceived.Inc()

			select {
			case w.jobsChan <- delivery:
				w.logger.Debug("Message dispatched to worker pool",
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching message")
				if !w.autoAck {
					if err := delivery.Nack(false, true); err != nil {
						w.logger.Error("Failed to NACK message on shutdown",
							slog.Any("error", err),
						)
					}
				}
				return nil
			}
		}
	}
}
