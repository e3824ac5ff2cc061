package pipeline

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Job tracks the transient files of one upload. Input and output names derive
// from a fresh UUID so concurrent requests never share a path.
type Job struct {
	ID           string
	InputPath    string
	OutputPath   string
	OriginalName string
	MimeType     string
	Size         int64

	disposeOnce sync.Once
	removed     int
	disposeErr  error
}

// NewJob allocates paths under dir. The output carries ext, e.g. "mp3".
func NewJob(dir, originalName, ext string) *Job {
	id := uuid.NewString()
	if dir == "" {
		dir = os.TempDir()
	}
	input := filepath.Join(dir, id)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp3"
	}
	return &Job{
		ID:           id,
		InputPath:    input,
		OutputPath:   input + "." + ext,
		OriginalName: originalName,
	}
}

// Dispose removes the input and output files exactly once. Missing files are
// not errors. Later calls return the first call's result.
func (j *Job) Dispose(logger *slog.Logger) (int, error) {
	j.disposeOnce.Do(func() {
		var errs []error
		for _, path := range []string{j.InputPath, j.OutputPath} {
			err := os.Remove(path)
			switch {
			case err == nil:
				j.removed++
			case errors.Is(err, fs.ErrNotExist):
			default:
				if logger != nil {
					logger.Warn("failed to delete transient file",
						slog.String("request_id", j.ID),
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
				errs = append(errs, err)
			}
		}
		j.disposeErr = errors.Join(errs...)
	})
	return j.removed, j.disposeErr
}

func uuidString() string { return uuid.NewString() }
