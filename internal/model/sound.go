package model

import (
	"path/filepath"
	"strings"
)

// Label modes for sound buttons, cycled by the UI.
const (
	LabelBoth = iota
	LabelEmoji
	LabelText
	labelModes
)

// NextLabelMode returns the mode after m.
func NextLabelMode(m int) int {
	return (m + 1) % labelModes
}

// Sound is one playable entry of the sound library.
type Sound struct {
	Path  string `json:"path" yaml:"path"`
	Text  string `json:"text" yaml:"text"`
	Emoji string `json:"emoji" yaml:"emoji"`
	Size  int64  `json:"size" yaml:"size"`
}

// FileName returns the base name of the sound file.
func (s Sound) FileName() string {
	return filepath.Base(s.Path)
}

// Ext returns the lower-cased file extension including the dot.
func (s Sound) Ext() string {
	return strings.ToLower(filepath.Ext(s.Path))
}

// Label renders the button label for the given mode.
func (s Sound) Label(mode int) string {
	switch mode {
	case LabelEmoji:
		if s.Emoji == "" {
			return s.Text
		}
		return s.Emoji
	case LabelText:
		return s.Text
	default:
		if s.Emoji == "" {
			return s.Text
		}
		return s.Emoji + " " + s.Text
	}
}
