// Package snapshot writes timestamped JSON snapshots of pipeline context.
// Snapshots are a debugging aid; writes are best-effort and never block the
// run.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"taskforge/pkg/logx"
)

// Writer persists named snapshots into a single directory.
type Writer struct {
	dir    string
	logger *logx.Logger
	now    func() time.Time
}

// NewWriter creates a snapshot writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Writer{
		dir:    dir,
		logger: logx.NewLogger("snapshot"),
		now:    time.Now,
	}, nil
}

// Write stores the payload as <name>_<timestamp>.json and returns the path.
func (w *Writer) Write(name string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot %q: %w", name, err)
	}

	timestamp := w.now().UTC().Format("20060102T150405.000000000")
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", name, timestamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %q: %w", name, err)
	}
	return path, nil
}

// WriteBestEffort stores the payload and logs instead of failing. Used on the
// hot path where a snapshot problem must not abort the pipeline.
func (w *Writer) WriteBestEffort(name string, payload any) {
	if _, err := w.Write(name, payload); err != nil {
		w.logger.Warn("snapshot %q not written: %v", name, err)
	}
}
