package worker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sourcegraph/conc/panics"
)

// ackAction is what happens to a delivery once handling is over
type ackAction int

const (
	ackNone ackAction = iota
	ackAck
	ackRequeue
	ackReject
)

func (a ackAction) String() string {
	switch a {
	case ackAck:
		return "ack"
	case ackRequeue:
		return "requeue"
	case ackReject:
		return "reject"
	default:
		return "none"
	}
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		workerNum := i
		w.wg.Go(func() {
			w.workerLoop(ctx, workerNum)
		})
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop handles deliveries until jobsChan is closed. In-flight messages
// run on a context detached from ctx so shutdown lets them finish.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	jobCtx := context.WithoutCancel(ctx)

	for delivery := range w.jobsChan {
		var action ackAction
		recovered := panics.Try(func() {
			action = w.processDelivery(jobCtx, delivery)
		})
		if recovered != nil {
			w.logger.Error("Panic while processing message",
				slog.String("worker_name", workerName),
				slog.Any("error", recovered.AsError()),
			)
			messagesProcessed.WithLabelValues(labelUnknown, resultPanic).Inc()
			action = w.decide(recovered.AsError(), true)
		}

		w.acknowledge(workerName, delivery, action)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// decide maps a handling error to an ack action. nil acks. Retryable errors
// are requeued once; a redelivered message that fails again is rejected.
func (w *Worker) decide(err error, redelivered bool) ackAction {
	if w.autoAck {
		return ackNone
	}
	if err == nil {
		return ackAck
	}
	if isRetryable(err) && !redelivered {
		return ackRequeue
	}
	return ackReject
}

func (w *Worker) acknowledge(workerName string, delivery amqp.Delivery, action ackAction) {
	var err error
	switch action {
	case ackAck:
		err = delivery.Ack(false)
	case ackRequeue:
		err = delivery.Nack(false, true)
	case ackReject:
		err = delivery.Nack(false, false)
	default:
		return
	}

	if err != nil {
		w.logger.Error("Failed to acknowledge message",
			slog.String("worker_name", workerName),
			slog.String("action", action.String()),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", err),
		)
		return
	}

	w.logger.Debug("Message acknowledged",
		slog.String("worker_name", workerName),
		slog.String("action", action.String()),
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
	)
}
