// Package artifact persists rendered exports in the exports directory.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// TimestampLayout is the UTC, seconds precision part of artifact names
const TimestampLayout = "20060102150405"

// ErrInvalidName is returned for names that would escape the exports directory
var ErrInvalidName = errors.New("invalid artifact name")

// Info describes a stored artifact
type Info struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store writes artifacts as <kind>-<timestamp>.<ext> into one directory
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the exports directory
func (s *Store) Dir() string {
	return s.dir
}

// Name builds the artifact file name for a kind at t
func Name(kind, ext string, t time.Time) string {
	return fmt.Sprintf("%s-%s.%s", kind, t.UTC().Format(TimestampLayout), ext)
}

// Save writes data under a fresh name and returns that name. A same-second
// collision gets a ULID suffix instead of overwriting the earlier artifact.
func (s *Store) Save(kind, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	now := s.now()
	name := Name(kind, ext, now)

	err := s.writeExclusive(name, data)
	if errors.Is(err, fs.ErrExist) {
		suffixed := fmt.Sprintf("%s-%s-%s.%s", kind, now.UTC().Format(TimestampLayout), ulid.Make().String(), ext)
		s.logger.Warn("Artifact name already taken, using suffixed name",
			slog.String("name", name),
			slog.String("suffixed_name", suffixed),
		)
		name = suffixed
		err = s.writeExclusive(name, data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to persist artifact: %w", err)
	}

	s.logger.Info("Artifact persisted",
		slog.String("name", name),
		slog.Int("size", len(data)),
	)

	return name, nil
}

func (s *Store) writeExclusive(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Path resolves a bare artifact name inside the exports directory
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// Stat returns information about one artifact
func (s *Store) Stat(name string) (*Info, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fs.ErrNotExist
	}

	return &Info{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Cursor marks the last artifact of a listing page
type Cursor struct {
	ModTime time.Time
	Name    string
}

// List returns up to limit artifacts, newest first, strictly after cursor.
// A missing directory lists as empty.
func (s *Store) List(cursor *Cursor, limit int) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}

	sort.Slice(infos, func(i, j int) bool {
		return newer(infos[i].ModTime, infos[i].Name, infos[j].ModTime, infos[j].Name)
	})

	if limit <= 0 {
		limit = len(infos)
	}

	out := make([]Info, 0, limit)
	for _, info := range infos {
		if cursor != nil && !newer(cursor.ModTime, cursor.Name, info.ModTime, info.Name) {
			continue
		}
		out = append(out, info)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// newer reports whether (t1, n1) comes before (t2, n2) in newest-first order
func newer(t1 time.Time, n1 string, t2 time.Time, n2 string) bool {
	if !t1.Equal(t2) {
		return t1.After(t2)
	}
	return n1 > n2
}
