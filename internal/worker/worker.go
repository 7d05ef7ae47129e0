package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/report-export/internal/domain"
	"github.com/cuongbtq/report-export/internal/report"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
)

// State is the lifecycle state of a worker
type State int32

// Lifecycle states, in order
const (
	StateStarting State = iota
	StateConnecting
	StateListening
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Broker is the consuming side of the broker client
type Broker interface {
	Consume(consumerTag string, prefetch int, autoAck bool) (<-chan amqp.Delivery, error)
	CancelConsumer(consumerTag string) error
}

// StatusRecorder stores job status for messages that carry a job id
type StatusRecorder interface {
	SetJobStatus(ctx context.Context, status *domain.JobStatus) error
}

// ArtifactSaver persists rendered artifacts and returns their name
type ArtifactSaver interface {
	Save(kind, ext string, data []byte) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	Broker    Broker
	Registry  *report.Registry
	Artifacts ArtifactSaver
	// Status is optional
	Status StatusRecorder

	WorkerID      string
	Concurrency   int
	Prefetch      int
	AutoAck       bool
	JobTimeout    time.Duration
	DefaultFormat string
	SheetName     string
}

// Worker consumes export messages and turns them into artifacts
type Worker struct {
	logger    *slog.Logger
	broker    Broker
	registry  *report.Registry
	artifacts ArtifactSaver
	status    StatusRecorder

	workerID      string
	concurrency   int
	prefetch      int
	autoAck       bool
	jobTimeout    time.Duration
	defaultFormat string
	sheetName     string

	state    atomic.Int32
	jobsChan chan amqp.Delivery
	wg       conc.WaitGroup
	done     chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = concurrency
	}

	defaultFormat := cfg.DefaultFormat
	if defaultFormat == "" {
		defaultFormat = domain.FormatXLSX
	}

	return &Worker{
		logger:        cfg.Logger,
		broker:        cfg.Broker,
		registry:      cfg.Registry,
		artifacts:     cfg.Artifacts,
		status:        cfg.Status,
		workerID:      cfg.WorkerID,
		concurrency:   concurrency,
		prefetch:      prefetch,
		autoAck:       cfg.AutoAck,
		jobTimeout:    cfg.JobTimeout,
		defaultFormat: defaultFormat,
		sheetName:     cfg.SheetName,
		jobsChan:      make(chan amqp.Delivery),
		done:          make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.logger.Debug("Worker state changed",
		slog.String("worker_id", w.workerID),
		slog.String("state", s.String()),
	)
}

// Start consumes until ctx is canceled, then drains in-flight messages and
// returns nil. A failed subscription or a delivery channel closed by the
// broker is returned as *domain.ConnectionError.
func (w *Worker) Start(ctx context.Context) error {
	defer close(w.done)

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch", w.prefetch),
		slog.Bool("auto_ack", w.autoAck),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Any("export_types", w.registry.Kinds()),
	)

	w.setState(StateConnecting)
	deliveries, err := w.setupConsumer()
	if err != nil {
		w.setState(StateStopped)
		return &domain.ConnectionError{Err: err}
	}

	w.setState(StateListening)
	w.spawnWorkerPool(ctx)

	dispatchErr := w.startMessageDispatcher(ctx, deliveries)

	w.setState(StateStopping)
	if err := w.broker.CancelConsumer(w.workerID); err != nil {
		w.logger.Warn("Failed to cancel consumer",
			slog.String("worker_id", w.workerID),
			slog.Any("error", err),
		)
	}
	close(w.jobsChan)

	if recovered := w.wg.WaitAndRecover(); recovered != nil {
		w.logger.Error("Worker goroutine panicked",
			slog.String("worker_id", w.workerID),
			slog.Any("error", recovered.AsError()),
		)
	}

	w.setState(StateStopped)
	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))

	if dispatchErr != nil {
		return &domain.ConnectionError{Err: dispatchErr}
	}
	return nil
}

// Stop waits for Start to drain in-flight messages. It returns ctx.Err() if
// the grace period ends first. Cancel the Start context to begin stopping.
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping worker...", slog.String("worker_id", w.workerID))

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("Worker did not stop within grace period",
			slog.String("worker_id", w.workerID),
		)
		return ctx.Err()
	}
}

// Done is closed once Start has returned
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// IsConnectionError reports whether the worker stopped because the broker went away
func IsConnectionError(err error) bool {
	var connErr *domain.ConnectionError
	return errors.As(err, &connErr)
}
