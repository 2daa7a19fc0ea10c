package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// OverflowFile is the name of the dead-letter file in the data directory.
const OverflowFile = "OVERFLOW.JSL"

// OverflowStore appends dead-lettered payloads, one JSON document per line.
// Records are never replayed automatically; an operator retrieves them with
// a dump.
type OverflowStore struct {
	path  string
	count int
}

// OpenOverflow opens the overflow store in dir and counts existing records.
// A missing file counts as empty.
func OpenOverflow(dir string) (*OverflowStore, error) {
	s := &OverflowStore{path: filepath.Join(dir, OverflowFile)}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("open overflow store: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			s.count++
		}
	}
	return s, sc.Err()
}

// Write appends one payload as a line and syncs it to the medium.
func (s *OverflowStore) Write(payload []byte) error {
	if bytes.IndexByte(payload, '\n') >= 0 {
		return fmt.Errorf("write overflow record: payload contains a newline")
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open overflow store: %w", err)
	}

	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write overflow record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync overflow store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close overflow store: %w", err)
	}
	s.count++
	return nil
}

// Count returns the number of records in the store.
func (s *OverflowStore) Count() int {
	return s.count
}

// Path returns the store's file path.
func (s *OverflowStore) Path() string {
	return s.path
}
