package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileAudit stores payloads as <dir>/<job_id>/page-NNNN.json. Files are
// created with O_EXCL so a second write for the same page fails.
type FileAudit struct {
	dir string
}

func NewFileAudit(dir string) (*FileAudit, error) {
	if dir == "" {
		dir = ".audit"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileAudit{dir: dir}, nil
}

func (s *FileAudit) Path(jobID string, page int) string {
	return filepath.Join(s.dir, jobID, fmt.Sprintf("page-%04d.json", page))
}

func (s *FileAudit) Put(ctx context.Context, jobID string, page int, payload []byte) error {
	if err := checkPut(jobID, page, payload); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Base(jobID) != jobID {
		return fmt.Errorf("audit: job id %q is not a plain name", jobID)
	}

	path := s.Path(jobID, page)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s page %d", ErrAlreadyWritten, jobID, page)
		}
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("write audit file: %w", err)
	}
	return f.Close()
}
