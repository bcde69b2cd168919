// Package output provides output formatters for devices, sounds and
// recorded engine events.
package output

import (
	"io"

	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
)

// Formatter formats listings for output.
type Formatter interface {
	// Devices writes formatted audio devices to the writer.
	Devices(w io.Writer, devices []device.AudioDevice) error
	// Sounds writes formatted sounds to the writer.
	Sounds(w io.Writer, sounds []model.Sound) error
	// Events writes formatted engine events to the writer.
	Events(w io.Writer, events []model.Event) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatDmenu FormatType = "dmenu"
	FormatJSON  FormatType = "json"
	FormatPlain FormatType = "plain"
	FormatYAML  FormatType = "yaml"
)

// Formats lists the accepted format names.
var Formats = []FormatType{FormatPlain, FormatJSON, FormatYAML, FormatDmenu}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(opts)
	case FormatYAML:
		return NewYAMLFormatter(opts)
	case FormatDmenu:
		return NewDmenuFormatter(opts)
	case FormatPlain:
		fallthrough
	default:
		return NewPlainFormatter(opts)
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template  string // Custom template for dmenu/plain format
	ShowIndex bool   // Show 1-based index prefix
	ShowSize  bool   // Show file size of sounds
	Separator string // Field separator for dmenu format
	LabelMode int    // model.LabelBoth, LabelEmoji or LabelText
}

// DefaultFormatterOptions returns sensible defaults.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowIndex: true,
		ShowSize:  true,
		Separator: " | ",
		LabelMode: model.LabelBoth,
	}
}
