package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
)

// YAMLFormatter formats listings as YAML documents.
type YAMLFormatter struct {
	opts FormatterOptions
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(opts FormatterOptions) *YAMLFormatter {
	return &YAMLFormatter{opts: opts}
}

// Devices writes devices as a YAML sequence.
func (f *YAMLFormatter) Devices(w io.Writer, devices []device.AudioDevice) error {
	return f.encode(w, nonNil(devices))
}

// Sounds writes sounds as a YAML sequence.
func (f *YAMLFormatter) Sounds(w io.Writer, sounds []model.Sound) error {
	return f.encode(w, nonNil(sounds))
}

// Events writes events as a YAML sequence.
func (f *YAMLFormatter) Events(w io.Writer, events []model.Event) error {
	return f.encode(w, nonNil(events))
}

func (f *YAMLFormatter) encode(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
