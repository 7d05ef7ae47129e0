// Package render writes tabular rows to spreadsheet artifacts.
package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// Supported formats
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// DefaultSheetName is used when the renderer has no sheet name
const DefaultSheetName = "Report"

// Renderer serializes a header row plus body rows. Column order is taken as
// given; rows are never reordered.
type Renderer struct {
	Format    string
	SheetName string
	// ColumnWidth is the xlsx column width, 0 leaves the default
	ColumnWidth float64
}

// New creates a renderer for a format
func New(format, sheetName string) (*Renderer, error) {
	switch format {
	case FormatXLSX, FormatCSV:
	default:
		return nil, fmt.Errorf("unsupported artifact format %q", format)
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &Renderer{Format: format, SheetName: sheetName, ColumnWidth: 24}, nil
}

// Extension returns the file extension without dot
func (r *Renderer) Extension() string {
	return r.Format
}

// Render writes the artifact to w
func (r *Renderer) Render(w io.Writer, headers []string, rows [][]any) error {
	switch r.Format {
	case FormatCSV:
		return r.renderCSV(w, headers, rows)
	case FormatXLSX:
		return r.renderXLSX(w, headers, rows)
	default:
		return fmt.Errorf("unsupported artifact format %q", r.Format)
	}
}

// Bytes renders into an in-memory buffer
func (r *Renderer) Bytes(headers []string, rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, headers, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders into dir/name, creating dir when absent, and returns the full path
func (r *Renderer) WriteFile(dir, name string, headers []string, rows [][]any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}

	if err := r.Render(f, headers, rows); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact file: %w", err)
	}

	return path, nil
}

func (r *Renderer) renderXLSX(w io.Writer, headers []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", r.SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D3D3D3"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(r.SheetName)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	if r.ColumnWidth > 0 && len(headers) > 0 {
		if err := sw.SetColWidth(1, len(headers), r.ColumnWidth); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = xlsxValue(v)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (r *Renderer) renderCSV(w io.Writer, headers []string, rows [][]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	record := make([]string, 0, len(headers))
	for i, row := range rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, FormatValue(v))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// xlsxValue keeps numbers numeric and turns absent values into empty cells
func xlsxValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case *int64:
		if t == nil {
			return ""
		}
		return *t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return v
	}
}

// FormatValue renders a cell as text, absent values as the empty string
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case *int64:
		if t == nil {
			return ""
		}
		return strconv.FormatInt(*t, 10)
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
