package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteCreatesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	path, err := w.Write("task", map[string]any{"task_id": "t1"})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "task_") || !strings.HasSuffix(base, ".json") {
		t.Errorf("unexpected snapshot name: %s", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not readable: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if decoded["task_id"] != "t1" {
		t.Errorf("payload = %v", decoded)
	}
}

func TestWriteDistinctNamesForRapidCalls(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// Drive the clock manually so consecutive snapshots cannot collide.
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time {
		tick = tick.Add(time.Nanosecond)
		return tick
	}

	first, err := w.Write("plan", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := w.Write("plan", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("consecutive snapshots collided on the same path")
	}
}

func TestWriteBestEffortSwallowsErrors(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// A channel cannot be marshaled; WriteBestEffort must not panic.
	w.WriteBestEffort("bad", map[string]any{"ch": make(chan int)})
}
