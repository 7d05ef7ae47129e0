// Package publisher enqueues export job messages onto the export queue.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/report-export/internal/domain"
)

// ContentType of every published export message
const ContentType = "application/json"

// Broker delivers an encoded message to the export queue
type Broker interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Publisher validates, encodes and hands export messages to the broker.
// It never retries; broker failures surface as *domain.PublishError.
type Publisher struct {
	broker Broker
	queue  string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a publisher for the named queue
func New(broker Broker, queue string, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Publish enqueues msg. A zero RequestedAt is filled on a copy, the caller's
// message is left untouched.
func (p *Publisher) Publish(ctx context.Context, msg *domain.ExportMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	out := *msg
	if out.RequestedAt.IsZero() {
		out.RequestedAt = p.now().UTC()
	}

	body, err := domain.Encode(&out)
	if err != nil {
		return err
	}

	if err := p.broker.Publish(ctx, body, ContentType); err != nil {
		p.logger.Error("Failed to publish export message",
			slog.String("queue", p.queue),
			slog.String("export_type", out.ExportType),
			slog.String("job_id", out.JobID),
			slog.Any("error", err),
		)
		return &domain.PublishError{Queue: p.queue, Err: err}
	}

	p.logger.Info("Export message published",
		slog.String("queue", p.queue),
		slog.String("export_type", out.ExportType),
		slog.String("job_id", out.JobID),
	)

	return nil
}
