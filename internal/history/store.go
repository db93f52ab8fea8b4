// Package history keeps a bounded log of finished preview sessions, persisted
// as a JSON file under the state directory.
package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/schema"
)

const fileName = "sessions.json"

type fileFormat struct {
	Records []schema.SessionRecord `json:"records"`
}

// Store holds session records oldest first. A Store without a directory keeps
// records in memory only.
type Store struct {
	dir   string
	limit int
	log   pslog.Logger

	mu      sync.Mutex
	records []schema.SessionRecord
}

// Open loads the store from dir, creating the directory when needed. limit
// bounds the number of retained records; non-positive uses the default.
func Open(dir string, limit int, logger pslog.Logger) (*Store, error) {
	if limit <= 0 {
		limit = schema.DefaultHistoryLimit
	}
	dir = strings.TrimSpace(dir)
	if logger != nil && dir != "" {
		logger = logger.With("state_dir", dir)
	}
	s := &Store{dir: dir, limit: limit, log: logger}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	s.records = trim(records, limit)
	return s, nil
}

// Path returns the backing file, or "" for a memory-only store.
func (s *Store) Path() string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, fileName)
}

// Append records a finished session. It implements core.HistoryRecorder.
func (s *Store) Append(record schema.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = trim(append(s.records, record), s.limit)
	if s.dir == "" {
		return nil
	}
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("history save failed", "session", record.SessionID, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("history save ok", "session", record.SessionID, "records", len(s.records))
	}
	return nil
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) []schema.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	out := make([]schema.SessionRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) load() ([]schema.SessionRecord, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("history load miss")
			}
			return nil, nil
		}
		if s.log != nil {
			s.log.Warn("history load failed", "err", err)
		}
		return nil, err
	}
	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		if s.log != nil {
			s.log.Warn("history load failed", "err", err)
		}
		return nil, err
	}
	if s.log != nil {
		s.log.Debug("history load ok", "records", len(file.Records))
	}
	return file.Records, nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(fileFormat{Records: s.records}, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.Path(), data)
}

// writeAtomic replaces path with data via a synced temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "sessions-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func trim(records []schema.SessionRecord, limit int) []schema.SessionRecord {
	if len(records) <= limit {
		return records
	}
	return append([]schema.SessionRecord(nil), records[len(records)-limit:]...)
}
