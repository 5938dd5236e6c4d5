// Package store keeps the durable, append-only press log.
//
// The log is a text file with one JSON record per line. Records are only ever
// appended; the file is rewritten only by Reset, which truncates it. A record
// torn by power loss can only be the last line and is cut off when the store
// is opened.
package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweeney/press-logger/internal/logic"
)

// DefaultPath is where the press log lives on the device.
const DefaultPath = "/var/lib/press-logger/ButtonLog.txt"

// maxRecordSize bounds a single line during replay. Longer lines are skipped.
const maxRecordSize = 64 * 1024

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Options configures a Store.
type Options struct {
	// Sync flushes every append and reset to the storage medium.
	Sync bool
}

// logFile is the part of *os.File the store writes through.
type logFile interface {
	io.ReaderAt
	io.Writer
	Stat() (fs.FileInfo, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Store is the append-only press log. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	file logFile
	sync bool
}

// Open opens or creates the log at path, creating parent directories.
// A trailing partial record is truncated away.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	if n, err := repairTail(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("repair log: %w", err)
	} else if n > 0 {
		log.Printf("store: dropped %d bytes of partial record at end of %s", n, path)
	}

	return &Store{path: path, file: f, sync: opts.Sync}, nil
}

// OpenReadOnly returns a view of the log at path for Replay, Len and
// LoadLastCount. The file is neither created nor repaired, so it is safe to
// use while a daemon owns the log. Append and Reset return ErrClosed.
func OpenReadOnly(path string) *Store {
	return &Store{path: path}
}

// repairTail truncates f after its last newline. It returns the number of
// bytes removed.
func repairTail(f logFile) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return 0, nil
			}
			return size - keep, f.Truncate(keep)
		}
		end = start
	}
	// No complete record at all.
	return size, f.Truncate(0)
}

// Path returns the log file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes ev as one record at the end of the log.
// Errors are returned to the caller and not retried. A failed append leaves
// no trace of the record, so the caller may retry it without duplicating.
func (s *Store) Append(ev logic.PressEvent) error {
	line, err := logic.EncodeRecord(ev)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}
	if _, err := s.file.Write(line); err != nil {
		// Cut a short write off so the next record starts on a fresh line.
		if terr := s.file.Truncate(info.Size()); terr != nil {
			log.Printf("store: repair after failed append: %v", terr)
		}
		return fmt.Errorf("append record: %w", err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			// The record is not known to be durable. Take it back out.
			if terr := s.file.Truncate(info.Size()); terr != nil {
				log.Printf("store: undo unsynced append: %v", terr)
			}
			return fmt.Errorf("sync log: %w", err)
		}
	}
	return nil
}

// lines yields every non-empty line of the log. Each call opens the file
// afresh. A missing file yields nothing; a read error ends the sequence.
// Lines longer than maxRecordSize are skipped. The yielded slice is only
// valid until yield returns.
func (s *Store) lines(yield func([]byte) bool) {
	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("store: open for replay: %v", err)
		}
		return
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 4096)
	var buf []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxRecordSize {
				oversized = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if oversized {
			log.Printf("store: skipping line longer than %d bytes", maxRecordSize)
			oversized = false
		} else if line := bytes.TrimSpace(buf); len(line) > 0 {
			if !yield(line) {
				return
			}
		}
		buf = buf[:0]

		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("store: replay stopped: %v", err)
			}
			return
		}
	}
}

// Replay returns the stored events in append order. The sequence is lazy
// and may be iterated any number of times. Undecodable records are skipped.
func (s *Store) Replay() iter.Seq[logic.PressEvent] {
	return func(yield func(logic.PressEvent) bool) {
		lineNo := 0
		s.lines(func(line []byte) bool {
			lineNo++
			ev, err := logic.DecodeRecord(line)
			if err != nil {
				log.Printf("store: skipping record %d: %v", lineNo, err)
				return true
			}
			return yield(ev)
		})
	}
}

// LoadLastCount returns the sequence number to resume counting from: the
// highest sequence among the valid records, or 0 for an empty or unreadable
// log. Taking the maximum rather than the last line means a corrupt final
// record cannot make numbering go backwards.
func (s *Store) LoadLastCount() uint64 {
	var last uint64
	for ev := range s.Replay() {
		if ev.Sequence > last {
			last = ev.Sequence
		}
	}
	return last
}

// Len returns the number of valid records.
func (s *Store) Len() int {
	n := 0
	for range s.Replay() {
		n++
	}
	return n
}

// Reset empties the log. It is serialized with Append.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate log: %w", err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("sync log: %w", err)
		}
	}
	return nil
}

// Close closes the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
