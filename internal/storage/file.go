package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lwbot/pkg/logx"
)

// fileStore is the dependency-free backend: one append-only JSON Lines
// file mirrored in memory. Pruning compacts the file in place via a temp
// file and rename.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	path    string
	f       *os.File
	entries []DeliveryEntry
}

type deliveryRecord struct {
	At      int64  `json:"at"` // unix milli
	ChatID  int64  `json:"chat_id"`
	Via     string `json:"via,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{log: log, path: path}
	if err := st.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st.f = f
	return st, nil
}

// load replays the jsonl file into memory, skipping corrupt lines.
func (s *fileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	skipped := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec deliveryRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		s.entries = append(s.entries, recordToEntry(rec))
	}
	if skipped > 0 {
		s.log.Warn("skipped corrupt history lines", logx.Int("count", skipped))
	}
	return sc.Err()
}

func (s *fileStore) AppendDelivery(_ context.Context, e DeliveryEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(entryToRecord(e))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("storage closed")
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fileStore) RecentDeliveries(_ context.Context, chatID int64, limit int) ([]DeliveryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeliveryEntry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if chatID != 0 && s.entries[i].ChatID != chatID {
			continue
		}
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *fileStore) PruneDeliveries(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]DeliveryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.At.Before(olderThan) {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)
	for _, e := range kept {
		b, err := json.Marshal(entryToRecord(e))
		if err != nil {
			_ = f.Close()
			return 0, err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	if s.f != nil {
		_ = s.f.Close()
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, err
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	s.f = nf
	s.entries = kept
	return removed, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func entryToRecord(e DeliveryEntry) deliveryRecord {
	return deliveryRecord{
		At:      e.At.UnixMilli(),
		ChatID:  e.ChatID,
		Via:     e.Via,
		OK:      e.OK,
		Error:   e.Error,
		Message: e.Message,
	}
}

func recordToEntry(r deliveryRecord) DeliveryEntry {
	return DeliveryEntry{
		At:      time.UnixMilli(r.At),
		ChatID:  r.ChatID,
		Via:     r.Via,
		OK:      r.OK,
		Error:   r.Error,
		Message: r.Message,
	}
}
