// Package store persists engine events to a JSONL history file so failures
// can be reviewed after the soundboard has exited.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/dionysus/internal/model"
)

// SchemaVersion is the current history schema version.
const SchemaVersion = 1

// ErrHistoryClosed is returned when operations are attempted on a closed history.
var ErrHistoryClosed = errors.New("history is closed")

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	DionysusSchemaVersion int   `json:"dionysus_schema_version"`
	CreatedAt             int64 `json:"created_at"`
}

// History is an append-only event log. It keeps at most maxEntries events;
// older ones are dropped when the file is opened.
type History struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	closed     bool
	maxEntries int
	logger     *slog.Logger
}

// OpenHistory opens or creates the history file at path. A maxEntries of
// zero keeps every event.
func OpenHistory(path string, maxEntries int, logger *slog.Logger) (*History, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	h := &History{
		path:       path,
		file:       file,
		maxEntries: maxEntries,
		logger:     logger,
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := h.writeHeader(); err != nil {
			_ = file.Close()
			return nil, err
		}
		return h, nil
	}

	if maxEntries > 0 {
		if err := h.trim(); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	return h, nil
}

// Path returns the history file path.
func (h *History) Path() string {
	return h.path
}

func (h *History) writeHeader() error {
	data, err := json.Marshal(schemaHeader{
		DionysusSchemaVersion: SchemaVersion,
		CreatedAt:             time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = h.file.Write(append(data, '\n'))
	return err
}

// Append writes one event.
func (h *History) Append(ev model.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHistoryClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := h.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Notify appends ev, logging failures. It lets a History be used as an
// event sink.
func (h *History) Notify(ev model.Event) {
	if err := h.Append(ev); err != nil {
		h.logger.Warn("failed to record event", "id", ev.ID, "error", err)
	}
}

// Load reads all events, oldest first. Malformed lines are skipped.
func (h *History) Load() ([]model.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHistoryClosed
	}
	return h.load()
}

func (h *History) load() ([]model.Event, error) {
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", h.path, err)
	}

	var events []model.Event
	scanner := bufio.NewScanner(h.file)
	const maxLineSize = 1024 * 1024
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
			if err := json.Unmarshal(line, &header); err == nil && header.DionysusSchemaVersion > 0 {
				if header.DionysusSchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.DionysusSchemaVersion, SchemaVersion)
				}
				continue
			}
		}

		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.ID == "" {
			h.logger.Debug("skipping malformed history line", "line", lineNum)
			continue
		}
		events = append(events, ev)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading file: %w", err)
	}

	if _, err := h.file.Seek(0, io.SeekEnd); err != nil {
		return events, err
	}
	return events, nil
}

// trim rewrites the file with the newest maxEntries events when it holds
// more. The previous file is kept as a backup until the rewrite succeeds.
func (h *History) trim() error {
	events, err := h.load()
	if err != nil {
		return err
	}
	if len(events) <= h.maxEntries {
		return nil
	}
	events = events[len(events)-h.maxEntries:]

	if err := h.file.Close(); err != nil {
		return err
	}

	backupPath := h.path + ".bak"
	if err := os.Rename(h.path, backupPath); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	file, err := os.OpenFile(h.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0600)
	if err != nil {
		_ = os.Rename(backupPath, h.path)
		return fmt.Errorf("failed to create new file: %w", err)
	}
	h.file = file

	if err := h.writeHeader(); err != nil {
		return err
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := h.file.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	if err := h.file.Sync(); err != nil {
		return err
	}

	h.logger.Debug("trimmed event history", "path", h.path, "kept", len(events))
	return os.Remove(backupPath)
}

// Close releases the file handle.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.file.Close()
}
