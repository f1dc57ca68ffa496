package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion is the current journal schema version.
const SchemaVersion = 1

// ErrJournalClosed is returned when operations are attempted on a closed journal.
var ErrJournalClosed = errors.New("journal is closed")

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	SchemaVersion int   `json:"shellnotifyd_schema_version"`
	CreatedAt     int64 `json:"created_at"`
}

// Journal is an append-only JSONL log of closed notifications.
type Journal struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	count      int
	maxEntries int
	closed     bool
}

// Open opens or creates the journal at path. maxEntries bounds the number of
// entries kept on disk; 0 means unlimited.
func Open(path string, maxEntries int) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	j := &Journal{
		path:       path,
		file:       file,
		maxEntries: maxEntries,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := j.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
		return j, nil
	}

	entries, err := j.readAll()
	if err != nil {
		file.Close()
		return nil, err
	}
	j.count = len(entries)

	return j, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Len returns the number of entries in the journal.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

func (j *Journal) writeHeader() error {
	data, err := json.Marshal(schemaHeader{
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	_, err = j.file.Write(append(data, '\n'))
	return err
}

// Load reads every entry, oldest first. Malformed lines are skipped.
func (j *Journal) Load() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return nil, ErrJournalClosed
	}
	return j.readAll()
}

func (j *Journal) readAll() ([]Entry, error) {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", j.path, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(j.file)

	const maxLineSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.SchemaVersion > 0 {
				if header.SchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.SchemaVersion, SchemaVersion)
				}
				continue
			}
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" {
			continue
		}
		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("error reading file: %w", err)
	}

	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return entries, err
	}

	return entries, nil
}

// Append writes e to the journal and trims it when max entries is exceeded.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return ErrJournalClosed
	}

	if err := j.reopenIfReplaced(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	j.count++

	// Trim in batches so a full journal is not rewritten on every append.
	if j.maxEntries > 0 && j.count > j.maxEntries+j.maxEntries/10 {
		_, err := j.prune(j.maxEntries)
		return err
	}
	return nil
}

// reopenIfReplaced switches to the file now at path when another process
// (history prune or clear) has rewritten it under us.
func (j *Journal) reopenIfReplaced() error {
	current, err := j.file.Stat()
	if err != nil {
		return err
	}
	onDisk, err := os.Stat(j.path)
	if err == nil && os.SameFile(current, onDisk) {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	file, err := os.OpenFile(j.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to reopen file %s: %w", j.path, err)
	}
	_ = j.file.Close()
	j.file = file

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		j.count = 0
		return j.writeHeader()
	}

	entries, err := j.readAll()
	if err != nil {
		return err
	}
	j.count = len(entries)
	return nil
}

// SetMaxEntries changes the retention limit applied by Append.
func (j *Journal) SetMaxEntries(n int) {
	j.mu.Lock()
	j.maxEntries = n
	j.mu.Unlock()
}

// Prune keeps the newest keep entries and returns how many were removed.
func (j *Journal) Prune(keep int) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return 0, ErrJournalClosed
	}
	return j.prune(keep)
}

func (j *Journal) prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	entries, err := j.readAll()
	if err != nil {
		return 0, err
	}
	if len(entries) <= keep {
		return 0, nil
	}

	removed := len(entries) - keep
	if err := j.rewrite(entries[removed:]); err != nil {
		return 0, err
	}
	return removed, nil
}

// rewrite replaces the file contents, keeping a .bak copy until it succeeds.
func (j *Journal) rewrite(entries []Entry) error {
	if err := j.file.Close(); err != nil {
		return err
	}
	j.file = nil

	backupPath := j.path + ".bak"
	if err := os.Rename(j.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	file, err := os.OpenFile(j.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0600)
	if err != nil {
		_ = os.Rename(backupPath, j.path)
		return fmt.Errorf("failed to create new file: %w", err)
	}
	j.file = file

	if err := j.writeHeader(); err != nil {
		return err
	}

	w := bufio.NewWriter(j.file)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	j.count = len(entries)

	_ = os.Remove(backupPath)
	return nil
}

// Clear removes every entry, leaving only the header.
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.file == nil {
		return ErrJournalClosed
	}
	return j.rewrite(nil)
}

// Close releases the file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		return err
	}
	return nil
}
