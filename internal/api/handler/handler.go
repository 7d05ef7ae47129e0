package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/report-export/internal/artifact"
	"github.com/cuongbtq/report-export/internal/domain"
)

// ExportPublisher enqueues export messages
type ExportPublisher interface {
	Publish(ctx context.Context, msg *domain.ExportMessage) error
}

// StatusStore reads and writes job status
type StatusStore interface {
	SetJobStatus(ctx context.Context, status *domain.JobStatus) error
	GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error)
}

// ArtifactStore lists and resolves persisted artifacts
type ArtifactStore interface {
	List(cursor *artifact.Cursor, limit int) ([]artifact.Info, error)
	Stat(name string) (*artifact.Info, error)
	Path(name string) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Publisher ExportPublisher
	// Status is nil when job status tracking is disabled
	Status    StatusStore
	Artifacts ArtifactStore
}

// ExportHandler handles export-related HTTP requests
type ExportHandler struct {
	logger    *slog.Logger
	publisher ExportPublisher
	status    StatusStore
	artifacts ArtifactStore
}

// NewExportHandler creates a new ExportHandler instance
func NewExportHandler(deps *Dependencies) *ExportHandler {
	return &ExportHandler{
		logger:    deps.Logger,
		publisher: deps.Publisher,
		status:    deps.Status,
		artifacts: deps.Artifacts,
	}
}
