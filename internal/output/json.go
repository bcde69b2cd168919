package output

import (
	"encoding/json"
	"io"

	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
)

// JSONFormatter formats listings as JSON.
type JSONFormatter struct {
	opts FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts FormatterOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Devices writes devices as a JSON array.
func (f *JSONFormatter) Devices(w io.Writer, devices []device.AudioDevice) error {
	return f.encode(w, nonNil(devices))
}

// Sounds writes sounds as a JSON array.
func (f *JSONFormatter) Sounds(w io.Writer, sounds []model.Sound) error {
	return f.encode(w, nonNil(sounds))
}

// Events writes events as a JSON array.
func (f *JSONFormatter) Events(w io.Writer, events []model.Event) error {
	return f.encode(w, nonNil(events))
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// nonNil makes empty listings encode as an empty array rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
