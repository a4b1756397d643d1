package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smarttraffic/trafficd/internal/model"
)

// FileStore keeps cycle records as one JSON object per line, appended and
// fsynced on every write. An in-memory index mirrors the file so reads never
// touch disk after open.
type FileStore struct {
	dataDir string
	path    string
	logger  *logrus.Logger

	mu      sync.RWMutex
	file    *os.File
	records []model.CycleRecord
}

// NewFileStore opens (or creates) the history file and loads its index.
// Individual corrupt lines are skipped with a warning; a record that cannot
// be read must not take down the records around it.
func NewFileStore(dataDir, path string, logger *logrus.Logger) (*FileStore, error) {
	if path == "" {
		path = filepath.Join(dataDir, "state", "history.jsonl")
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	s := &FileStore{dataDir: dataDir, path: path, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	s.file = f
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.CycleRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			s.logger.WithFields(logrus.Fields{
				"file": s.path,
				"line": lineNo,
			}).Warn("skipping corrupt history line")
			continue
		}
		s.records = append(s.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read history file: %w", err)
	}

	if skipped > 0 {
		s.logger.WithFields(logrus.Fields{
			"file":    s.path,
			"loaded":  len(s.records),
			"skipped": skipped,
		}).Warn("history file partially corrupt")
	}
	return nil
}

// Append writes the record as one line and syncs before updating the index,
// so the index never claims a record the disk does not hold.
func (s *FileStore) Append(ctx context.Context, rec model.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.CycleID, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("append record %s: %w", rec.CycleID, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync history file: %w", err)
	}

	s.records = append(s.records, rec)
	return nil
}

func (s *FileStore) Recent(ctx context.Context, n int) ([]model.CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]model.CycleRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *FileStore) Aggregate(ctx context.Context, window int) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.records, window), nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
