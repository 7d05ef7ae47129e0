package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/report-export/internal/domain"
	"github.com/cuongbtq/report-export/internal/render"
	"github.com/cuongbtq/report-export/internal/report"
	amqp "github.com/rabbitmq/amqp091-go"
)

// processDelivery decodes and runs one message and returns its ack action
func (w *Worker) processDelivery(ctx context.Context, delivery amqp.Delivery) ackAction {
	msg, err := domain.Decode(delivery.Body)
	if err != nil {
		w.logger.Error("Dropping invalid export message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("body", string(delivery.Body)),
			slog.Any("error", err),
		)
		messagesProcessed.WithLabelValues(labelUnknown, resultInvalid).Inc()
		// never requeued
		return w.decide(err, true)
	}

	logger := w.logger.With(
		slog.String("export_type", msg.ExportType),
		slog.String("job_id", msg.JobID),
		slog.Bool("redelivered", delivery.Redelivered),
	)

	family, ok := w.registry.Lookup(msg.ExportType)
	if !ok {
		logger.Warn("Unknown export type, message ignored")
		messagesProcessed.WithLabelValues(labelUnknown, resultUnknownType).Inc()
		w.recordStatus(ctx, logger, msg, domain.JobStatusFailed, "", domain.ErrUnknownExportType)
		return w.decide(nil, delivery.Redelivered)
	}

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	logger.Info("Processing export job")
	w.recordStatus(ctx, logger, msg, domain.JobStatusRunning, "", nil)

	start := time.Now()
	name, err := w.execute(ctx, family, msg)
	if err != nil {
		action := w.decide(err, delivery.Redelivered)
		logger.Error("Export job failed",
			slog.String("action", action.String()),
			slog.Any("error", err),
		)
		messagesProcessed.WithLabelValues(family.Kind(), resultFailed).Inc()

		status := domain.JobStatusFailed
		if action == ackRequeue {
			status = domain.JobStatusPending
		}
		w.recordStatus(context.WithoutCancel(ctx), logger, msg, status, "", err)
		return action
	}

	jobDuration.WithLabelValues(family.Kind()).Observe(time.Since(start).Seconds())
	messagesProcessed.WithLabelValues(family.Kind(), resultCompleted).Inc()
	logger.Info("Export job completed",
		slog.String("artifact", name),
		slog.Duration("duration", time.Since(start)),
	)

	w.recordStatus(context.WithoutCancel(ctx), logger, msg, domain.JobStatusCompleted, name, nil)
	return w.decide(nil, delivery.Redelivered)
}

// execute builds, renders and persists one report and returns the artifact name
func (w *Worker) execute(ctx context.Context, family report.Family, msg *domain.ExportMessage) (string, error) {
	req := report.Request{
		Filters: msg.Filters,
		Columns: msg.Columns,
	}
	if msg.Sort != nil {
		req.SortKey = msg.Sort.Key
		req.SortDirection = msg.Sort.Direction
	}

	table, err := family.Build(ctx, req)
	if err != nil {
		return "", err
	}

	format := msg.Format
	if format == "" {
		format = w.defaultFormat
	}

	renderer, err := render.New(format, w.sheetName)
	if err != nil {
		return "", &domain.ProcessingError{Stage: "render", ExportType: family.Kind(), Err: err}
	}

	data, err := renderer.Bytes(table.Columns, table.Rows)
	if err != nil {
		return "", &domain.ProcessingError{Stage: "render", ExportType: family.Kind(), Err: err}
	}

	name, err := w.artifacts.Save(family.Kind(), renderer.Extension(), data)
	if err != nil {
		return "", &domain.ProcessingError{Stage: "persist", ExportType: family.Kind(), Err: err}
	}

	return name, nil
}

// recordStatus writes the job status when the message carries a job id.
// Failures are logged only; status is a side-channel.
func (w *Worker) recordStatus(ctx context.Context, logger *slog.Logger, msg *domain.ExportMessage, status, artifact string, cause error) {
	if w.status == nil || msg.JobID == "" {
		return
	}

	js := &domain.JobStatus{
		JobID:      msg.JobID,
		ExportType: msg.ExportType,
		Status:     status,
		Artifact:   artifact,
		UpdatedAt:  time.Now().UTC(),
	}
	if cause != nil {
		js.Error = cause.Error()
	}

	if err := w.status.SetJobStatus(ctx, js); err != nil {
		logger.Warn("Failed to record job status",
			slog.String("status", status),
			slog.Any("error", err),
		)
	}
}

// isRetryable covers explicitly retryable errors and job timeouts
func isRetryable(err error) bool {
	return domain.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}
