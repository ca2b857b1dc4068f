package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotMeta is stored as the first line of the JSONL file
type snapshotMeta struct {
	Version int    `json:"version"`
	SavedAt string `json:"saved_at"`
	Count   int    `json:"count"`
}

// record is one session line. Memory is never written.
type record struct {
	Key       string   `json:"key"`
	StatusSet bool     `json:"status_set"`
	Active    bool     `json:"active"`
	Model     ModelKey `json:"model"`
	UpdatedAt string   `json:"updated_at"`
}

// SaveFile writes activation and model state of every session to path.
func (s *Store) SaveFile(path string) error {
	s.mu.Lock()
	recs := make([]record, 0, len(s.entries))
	for key, e := range s.entries {
		recs = append(recs, record{
			Key:       key,
			StatusSet: e.statusSet,
			Active:    e.active,
			Model:     e.model,
			UpdatedAt: e.updatedAt.UTC().Format(time.RFC3339),
		})
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	meta := snapshotMeta{Version: 1, SavedAt: s.now().UTC().Format(time.RFC3339), Count: len(recs)}
	if err := enc.Encode(meta); err != nil {
		f.Close()
		return fmt.Errorf("failed to write session meta: %w", err)
	}
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return fmt.Errorf("failed to write session %s: %w", r.Key, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush session file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFile restores sessions from path. A missing file is not an error.
// Malformed lines are skipped.
func (s *Store) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, scanner.Err()
	}
	var meta snapshotMeta
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
		return 0, fmt.Errorf("failed to parse session meta: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		if !r.Model.Valid() {
			r.Model = s.defaultModel
		}
		updated, _ := time.Parse(time.RFC3339, r.UpdatedAt)
		s.entries[r.Key] = &entry{
			statusSet: r.StatusSet,
			active:    r.Active,
			model:     r.Model,
			updatedAt: updated,
		}
		n++
	}
	return n, scanner.Err()
}
