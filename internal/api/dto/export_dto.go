package dto

type SortDTO struct {
	Key       string `json:"key"`
	Direction string `json:"direction,omitempty"`
}

type CreateExportRequest struct {
	ExportType  string            `json:"export_type" binding:"required"`
	RequestedBy string            `json:"requested_by"`
	Filters     map[string]string `json:"filters"`
	Columns     []string          `json:"columns"`
	Sort        *SortDTO          `json:"sort"`
	Format      string            `json:"format"`
}

type CreateExportResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobStatusDTO struct {
	JobID      string `json:"job_id"`
	ExportType string `json:"export_type"`
	Status     string `json:"status"`
	Artifact   string `json:"artifact,omitempty"`
	Error      string `json:"error,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

type ListArtifactsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListArtifactsResponse struct {
	Artifacts  []ArtifactDTO `json:"artifacts"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type ArtifactDTO struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}
