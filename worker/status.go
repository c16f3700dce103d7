package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// StatusFilePath names the snapshot file for a slot. Workers write it and
// the supervisor reads it, so both sides share the naming.
func StatusFilePath(dir string, slot int) string {
	return filepath.Join(dir, fmt.Sprintf("worker-%d.json", slot))
}

// Status is one worker's telemetry snapshot. The supervisor reads these
// files to log its periodic summary; they carry no authoritative state.
type Status struct {
	Address   string  `json:"address"`
	Current   string  `json:"current_challenge"`
	Attempts  int64   `json:"attempts"`
	HashRate  float64 `json:"hash_rate"`
	UpdatedAt string  `json:"last_update"`
}

// StatusWriter publishes snapshots by atomically replacing a per-slot JSON
// file. Writes are best effort; telemetry must never fail the mining loop.
type StatusWriter struct {
	path string

	mu  sync.Mutex
	cur Status
}

func NewStatusWriter(path, address string) *StatusWriter {
	return &StatusWriter{
		path: path,
		cur:  Status{Address: address, Current: "starting"},
	}
}

func (sw *StatusWriter) Set(mutate func(*Status)) {
	if sw.path == "" {
		return
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	mutate(&sw.cur)
	sw.cur.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(sw.cur, "", "  ")
	if err != nil {
		return
	}
	_ = atomic.WriteFile(sw.path, bytes.NewReader(data))
}

// ReadStatus loads a snapshot written by another process.
func ReadStatus(path string) (Status, error) {
	var s Status
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}
