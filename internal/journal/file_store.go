package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"teaka/internal/logger"
)

var errStoreClosed = errors.New("journal: store closed")

// FileEventStore keeps the journal as newline-delimited JSON. Every Append is
// fsynced before it returns; a record torn by a crash is cut off on open.
type FileEventStore struct {
	mu   sync.Mutex
	path string
	w    *os.File
}

func NewFileEventStore(path string) (*FileEventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	if err := trimTornTail(path); err != nil {
		return nil, fmt.Errorf("journal: repair %s: %w", path, err)
	}
	w, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &FileEventStore{path: path, w: w}, nil
}

// trimTornTail drops bytes after the last newline.
func trimTornTail(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	keep := bytes.LastIndexByte(data, '\n') + 1
	if keep == len(data) {
		return nil
	}
	logger.Warnf("journal: dropping %d-byte torn record at end of %s", len(data)-keep, path)
	return os.Truncate(path, int64(keep))
}

func (s *FileEventStore) Append(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("journal: encode %s: %w", evt.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return errStoreClosed
	}
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: write %s: %w", evt.ID, err)
	}
	return s.w.Sync()
}

// LoadAll reads through a separate handle so the append offset is untouched.
func (s *FileEventStore) LoadAll(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil, errStoreClosed
	}
	r, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", s.path, err)
	}
	defer r.Close()

	var events []Event
	dec := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var evt Event
		err := dec.Decode(&evt)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("journal: decode record %d: %w", len(events)+1, err)
		}
		events = append(events, evt)
	}
}

func (s *FileEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}
