package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Sort directions understood by the report projector
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Artifact formats
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// ExportMessage is the job description carried over the export queue.
// Once published it is never modified or re-published by the consumer.
type ExportMessage struct {
	JobID       string            `json:"job_id,omitempty"`
	ExportType  string            `json:"export_type"`
	RequestedBy string            `json:"requested_by,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
	Filters     map[string]string `json:"filters,omitempty"`
	Columns     []string          `json:"columns,omitempty"`
	Sort        *Sort             `json:"sort,omitempty"`
	Format      string            `json:"format,omitempty"`
}

// Sort is the optional sort instruction of an export
type Sort struct {
	Key       string `json:"key"`
	Direction string `json:"direction,omitempty"`
}

// wireMessage distinguishes an absent requested_at from a zero one
type wireMessage struct {
	JobID       string            `json:"job_id,omitempty"`
	ExportType  string            `json:"export_type"`
	RequestedBy string            `json:"requested_by,omitempty"`
	RequestedAt *time.Time        `json:"requested_at,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	Columns     []string          `json:"columns,omitempty"`
	Sort        *Sort             `json:"sort,omitempty"`
	Format      string            `json:"format,omitempty"`
}

// Validate checks the semantic requirements of the message
func (m *ExportMessage) Validate() error {
	if strings.TrimSpace(m.ExportType) == "" {
		return &ValidationError{Field: "export_type", Reason: "is required"}
	}

	switch m.Format {
	case "", FormatXLSX, FormatCSV:
	default:
		return &ValidationError{Field: "format", Reason: "must be xlsx or csv"}
	}

	return nil
}

// Normalized returns a copy with defaults applied: a sort without key is
// dropped and a keyed sort without direction becomes ascending.
func (m *ExportMessage) Normalized() *ExportMessage {
	out := *m
	if len(out.Filters) == 0 {
		out.Filters = nil
	}
	if len(out.Columns) == 0 {
		out.Columns = nil
	}
	if m.Sort != nil {
		if strings.TrimSpace(m.Sort.Key) == "" {
			out.Sort = nil
		} else {
			s := *m.Sort
			if s.Direction == "" {
				s.Direction = SortAsc
			}
			out.Sort = &s
		}
	}
	return &out
}

// ArtifactFormat returns the requested format, xlsx when unset
func (m *ExportMessage) ArtifactFormat() string {
	if m.Format == "" {
		return FormatXLSX
	}
	return m.Format
}

// Encode serializes a message to its JSON wire form
func Encode(m *ExportMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	n := m.Normalized()
	requestedAt := n.RequestedAt.UTC()

	return json.Marshal(wireMessage{
		JobID:       n.JobID,
		ExportType:  n.ExportType,
		RequestedBy: n.RequestedBy,
		RequestedAt: &requestedAt,
		Filters:     n.Filters,
		Columns:     n.Columns,
		Sort:        n.Sort,
		Format:      n.Format,
	})
}

// Decode parses a wire payload. Malformed JSON yields a *DecodeError,
// a well-formed but incomplete message yields a *ValidationError.
func Decode(body []byte) (*ExportMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, &DecodeError{Err: err}
	}

	m := &ExportMessage{
		JobID:       w.JobID,
		ExportType:  w.ExportType,
		RequestedBy: w.RequestedBy,
		Filters:     w.Filters,
		Columns:     w.Columns,
		Sort:        w.Sort,
		Format:      w.Format,
	}
	if w.RequestedAt != nil {
		m.RequestedAt = *w.RequestedAt
	} else {
		m.RequestedAt = time.Now().UTC()
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m.Normalized(), nil
}
