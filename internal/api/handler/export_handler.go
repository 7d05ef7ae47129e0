package handler

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/report-export/internal/api/dto"
	"github.com/cuongbtq/report-export/internal/artifact"
	"github.com/cuongbtq/report-export/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TestExportType is published by the queue smoke test; no family handles it
const TestExportType = "test"

// CreateExport handles POST /api/v1/exports
// Assigns a job id and enqueues the export
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	msg := &domain.ExportMessage{
		JobID:       uuid.New().String(),
		ExportType:  req.ExportType,
		RequestedBy: req.RequestedBy,
		RequestedAt: time.Now().UTC(),
		Filters:     req.Filters,
		Columns:     req.Columns,
		Format:      req.Format,
	}
	if req.Sort != nil {
		msg.Sort = &domain.Sort{Key: req.Sort.Key, Direction: req.Sort.Direction}
	}

	if err := msg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	// PENDING is written before publishing so it never overwrites a worker update
	h.recordStatus(c.Request.Context(), msg, domain.JobStatusPending, nil)

	if err := h.publisher.Publish(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to publish export",
			slog.String("job_id", msg.JobID),
			slog.Any("error", err),
		)
		h.recordStatus(c.Request.Context(), msg, domain.JobStatusFailed, err)

		var publishErr *domain.PublishError
		var validationErr *domain.ValidationError
		switch {
		case errors.As(err, &publishErr):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Export queue unavailable, retry later",
			})
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": validationErr.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create export",
			})
		}
		return
	}

	h.logger.Info("Export requested",
		slog.String("job_id", msg.JobID),
		slog.String("export_type", msg.ExportType),
		slog.String("requested_by", msg.RequestedBy),
	)

	c.JSON(http.StatusAccepted, dto.CreateExportResponse{
		JobID:  msg.JobID,
		Status: domain.JobStatusPending,
	})
}

func (h *ExportHandler) recordStatus(ctx context.Context, msg *domain.ExportMessage, status string, cause error) {
	if h.status == nil {
		return
	}

	js := &domain.JobStatus{
		JobID:      msg.JobID,
		ExportType: msg.ExportType,
		Status:     status,
		UpdatedAt:  time.Now().UTC(),
	}
	if cause != nil {
		js.Error = cause.Error()
	}

	if err := h.status.SetJobStatus(ctx, js); err != nil {
		h.logger.Warn("Failed to record job status",
			slog.String("job_id", msg.JobID),
			slog.String("status", status),
			slog.Any("error", err),
		)
	}
}

// GetExportStatus handles GET /api/v1/exports/:job_id
func (h *ExportHandler) GetExportStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if h.status == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "Job status tracking is disabled",
		})
		return
	}

	status, err := h.status.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job status", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusDTO{
		JobID:      status.JobID,
		ExportType: status.ExportType,
		Status:     status.Status,
		Artifact:   status.Artifact,
		Error:      status.Error,
		UpdatedAt:  status.UpdatedAt.Format(time.RFC3339),
	})
}

// ListArtifacts handles GET /api/v1/exports/files
// Lists artifacts newest first with cursor pagination
func (h *ExportHandler) ListArtifacts(c *gin.Context) {
	var req dto.ListArtifactsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeArtifactCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	// one extra entry tells whether another page exists
	infos, err := h.artifacts.List(cursor, req.PageSize+1)
	if err != nil {
		h.logger.Error("Failed to list artifacts", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list artifacts",
		})
		return
	}

	hasMore := len(infos) > req.PageSize
	if hasMore {
		infos = infos[:req.PageSize]
	}

	artifacts := make([]dto.ArtifactDTO, len(infos))
	for i, info := range infos {
		artifacts[i] = dto.ArtifactDTO{
			Name:      info.Name,
			Size:      info.Size,
			CreatedAt: info.ModTime.UTC().Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		nextCursor = EncodeArtifactCursor(infos[len(infos)-1])
	}

	c.JSON(http.StatusOK, dto.ListArtifactsResponse{
		Artifacts:  artifacts,
		NextCursor: nextCursor,
	})
}

// DownloadArtifact handles GET /api/v1/exports/files/:name
func (h *ExportHandler) DownloadArtifact(c *gin.Context) {
	name := c.Param("name")

	info, err := h.artifacts.Stat(name)
	if err != nil {
		switch {
		case errors.Is(err, artifact.ErrInvalidName):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid artifact name",
			})
		case errors.Is(err, fs.ErrNotExist):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Artifact not found",
			})
		default:
			h.logger.Error("Failed to stat artifact", slog.String("name", name), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read artifact",
			})
		}
		return
	}

	path, err := h.artifacts.Path(info.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid artifact name",
		})
		return
	}

	c.FileAttachment(path, info.Name)
}

// PublishTest handles POST /api/v1/exports/test
// Publishes a message no report family handles, to smoke-test the queue
func (h *ExportHandler) PublishTest(c *gin.Context) {
	msg := &domain.ExportMessage{
		ExportType:  TestExportType,
		RequestedBy: "api-smoke-test",
		RequestedAt: time.Now().UTC(),
	}

	if err := h.publisher.Publish(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to publish test message", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Export queue unavailable, retry later",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Test message published",
	})
}
