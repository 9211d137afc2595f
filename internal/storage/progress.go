package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ProgressStore persists the last processed position of a job (a block
// number or a unix timestamp, depending on the job).
type ProgressStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, last uint64) error
}

// FileProgress stores progress in a local JSON file. An empty path disables it.
type FileProgress struct {
	Path string
}

type progressRecord struct {
	LastProcessed uint64 `json:"last_processed"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *FileProgress) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat progress: %w", err)
	}
	if stat.IsDir() {
		return 0, false, fmt.Errorf("progress path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, false, fmt.Errorf("read progress: %w", err)
	}
	var rec progressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("parse progress: %w", err)
	}
	return rec.LastProcessed, true, nil
}

func (s *FileProgress) Save(ctx context.Context, last uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create progress dir: %w", err)
		}
	}

	data, err := json.Marshal(progressRecord{
		LastProcessed: last,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename progress: %w", err)
	}
	return nil
}
