// Package library lists the playable sound files of the audio directory.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jmylchreest/dionysus/internal/config"
	"github.com/jmylchreest/dionysus/internal/decode"
	"github.com/jmylchreest/dionysus/internal/model"
)

// ErrNoDirectory is returned when the audio directory does not exist.
var ErrNoDirectory = errors.New("audio directory does not exist")

// Library scans one directory. Labels come from the [sounds] table of the
// configuration, keyed by file name.
type Library struct {
	dir          string
	labels       map[string]config.SoundConfig
	defaultEmoji string
	logger       *slog.Logger
}

// New creates a Library from the configuration.
func New(cfg *config.Config, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		dir:          cfg.Library.Path,
		labels:       cfg.Sounds,
		defaultEmoji: cfg.UI.DefaultEmoji,
		logger:       logger,
	}
}

// Dir returns the scanned directory.
func (l *Library) Dir() string {
	return l.dir
}

// Scan returns the supported sound files of the directory sorted by label
// text. Subdirectories are not descended into.
func (l *Library) Scan() ([]model.Sound, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDirectory, l.dir)
		}
		return nil, fmt.Errorf("failed to read audio directory: %w", err)
	}

	sounds := make([]model.Sound, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !decode.Supported(entry.Name()) {
			continue
		}

		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		sounds = append(sounds, l.sound(entry.Name(), size))
	}

	slices.SortFunc(sounds, func(a, b model.Sound) int {
		if c := strings.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text)); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})

	l.logger.Debug("scanned sound library", "dir", l.dir, "sounds", len(sounds))
	return sounds, nil
}

// sound builds the entry for one file. The text defaults to the file name
// without extension and the emoji to the configured default.
func (l *Library) sound(name string, size int64) model.Sound {
	s := model.Sound{
		Path:  filepath.Join(l.dir, name),
		Text:  strings.TrimSuffix(name, filepath.Ext(name)),
		Emoji: l.defaultEmoji,
		Size:  size,
	}
	if label, ok := l.labels[name]; ok {
		if label.Text != "" {
			s.Text = label.Text
		}
		if label.Emoji != "" {
			s.Emoji = label.Emoji
		}
	}
	return s
}
