package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/report-export/internal/artifact"
)

// DecodeArtifactCursor parses an opaque listing cursor, nil when empty
func DecodeArtifactCursor(cursorStr string) (*artifact.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	modTime, name, ok := strings.Cut(string(decoded), "|")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var nanos int64
	if _, err := fmt.Sscanf(modTime, "%d", &nanos); err != nil {
		return nil, fmt.Errorf("invalid modTime in cursor: %w", err)
	}

	return &artifact.Cursor{
		ModTime: time.Unix(0, nanos),
		Name:    name,
	}, nil
}

// EncodeArtifactCursor marks the position after info
func EncodeArtifactCursor(info artifact.Info) string {
	cs := fmt.Sprintf("%d|%s", info.ModTime.UnixNano(), info.Name)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
