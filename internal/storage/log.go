// Package storage persists batches on the local medium: a dated CSV log that
// is appended to and never truncated, and the overflow store that receives
// batches the retry engine gave up on.
package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sweeney/temp-logger/internal/sample"
)

// ErrStorageUnavailable is returned when the medium is absent or not writable.
var ErrStorageUnavailable = errors.New("storage unavailable")

// LogExt is the extension of dated log files.
const LogExt = ".CSV"

// Dump markers framing the file contents written to the operator.
const (
	DumpStart = "=== FILE DUMP START ==="
	DumpEnd   = "=== FILE DUMP END ==="
)

// Log is the durable dated local log. Each append opens, writes, syncs and
// closes the current file, so a power cut loses at most the batch in flight.
type Log struct {
	dir      string
	deviceID string
	enabled  bool

	currentKey  string
	currentPath string

	failing bool // true while appends fail, reset on the next success
}

// Open prepares the log rooted at dir. If the medium is unavailable the
// returned Log is disabled for the session and the error wraps
// ErrStorageUnavailable; the Log is still safe to use.
func Open(dir, deviceID string) (*Log, error) {
	l := &Log{dir: dir, deviceID: deviceID}
	if err := checkWritable(dir); err != nil {
		return l, fmt.Errorf("open log %s: %w: %v", dir, ErrStorageUnavailable, err)
	}
	l.enabled = true
	return l, nil
}

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Enabled reports whether the medium was available at Open.
func (l *Log) Enabled() bool {
	return l.enabled
}

// Dir returns the data directory.
func (l *Log) Dir() string {
	return l.dir
}

// Append writes the batch rows to the file of the batch's date, creating the
// file with a header row when it does not exist or is empty.
func (l *Log) Append(b *sample.Batch) error {
	if !l.enabled {
		return ErrStorageUnavailable
	}

	l.rotateIfNeeded(b.Timestamp.DateKey())

	if err := l.write(b); err != nil {
		if !l.failing {
			log.Printf("storage: append to %s failed: %v", filepath.Base(l.currentPath), err)
			l.failing = true
		}
		return err
	}
	if l.failing {
		log.Printf("storage: append to %s recovered", filepath.Base(l.currentPath))
		l.failing = false
	}
	return nil
}

// rotateIfNeeded switches the current file when the date key changed. It is
// idempotent: the file name is derived from the key alone.
func (l *Log) rotateIfNeeded(key string) {
	if key == l.currentKey {
		return
	}
	l.currentKey = key
	l.currentPath = filepath.Join(l.dir, key+LogExt)
}

func (l *Log) write(b *sample.Batch) error {
	f, err := os.OpenFile(l.currentPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.currentPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", l.currentPath, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		w.Write(sample.Columns)
	}
	w.WriteAll(sample.Rows(l.deviceID, b))
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("format rows: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", l.currentPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", l.currentPath, err)
	}
	return f.Close()
}

// ForceRotate makes the next Append re-evaluate the current file. Called
// after the wall clock was set.
func (l *Log) ForceRotate() {
	l.currentKey = ""
	l.currentPath = ""
}

// CurrentFile returns the name of the file the last append went to, or "".
func (l *Log) CurrentFile() string {
	if l.currentPath == "" {
		return ""
	}
	return filepath.Base(l.currentPath)
}

// CurrentSize returns the size of the current file, or 0.
func (l *Log) CurrentSize() int64 {
	if l.currentPath == "" {
		return 0
	}
	info, err := os.Stat(l.currentPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Files returns the stored log and overflow file names, sorted.
func (l *Log) Files() ([]string, error) {
	if !l.enabled {
		return nil, ErrStorageUnavailable
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", l.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, LogExt) || name == OverflowFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Dump writes one stored file to w between dump markers. Only names
// returned by Files are accepted.
func (l *Log) Dump(w io.Writer, name string) error {
	names, err := l.Files()
	if err != nil {
		return err
	}
	if !contains(names, name) {
		return fmt.Errorf("dump %s: %w", name, os.ErrNotExist)
	}
	fmt.Fprintln(w, DumpStart)
	err = l.dumpFile(w, name)
	fmt.Fprintln(w, DumpEnd)
	return err
}

// DumpAll writes every stored file to w between dump markers.
func (l *Log) DumpAll(w io.Writer) error {
	names, err := l.Files()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, DumpStart)
	var firstErr error
	for _, name := range names {
		if err := l.dumpFile(w, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	fmt.Fprintln(w, DumpEnd)
	return firstErr
}

func (l *Log) dumpFile(w io.Writer, name string) error {
	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		return fmt.Errorf("dump %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("dump %s: %w", name, err)
	}
	fmt.Fprintf(w, "--- File: %s (%d bytes) ---\n", name, info.Size())
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("dump %s: %w", name, err)
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
