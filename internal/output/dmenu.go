package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
)

// DmenuFormatter formats listings for dmenu/rofi/fuzzel. The last field of
// every line is the value a picker script passes back: the device name or
// the sound path.
type DmenuFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewDmenuFormatter creates a new dmenu formatter.
func NewDmenuFormatter(opts FormatterOptions) *DmenuFormatter {
	return &DmenuFormatter{opts: opts, template: parseTemplate("dmenu", opts.Template)}
}

// Devices writes one device per line.
func (f *DmenuFormatter) Devices(w io.Writer, devices []device.AudioDevice) error {
	for i, d := range devices {
		line := f.line(i+1, templateData{Index: i + 1, Device: &d}, d.Direction.String(), d.Name)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Sounds writes one sound per line.
func (f *DmenuFormatter) Sounds(w io.Writer, sounds []model.Sound) error {
	for i, s := range sounds {
		line := f.line(i+1, templateData{Index: i + 1, Sound: &s}, s.Label(f.opts.LabelMode), s.Path)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Events writes one event per line.
func (f *DmenuFormatter) Events(w io.Writer, events []model.Event) error {
	for i, ev := range events {
		line := f.line(i+1, templateData{Index: i + 1, Event: &ev}, relativeTime(ev.Time), ev.Title+": "+ev.Message)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// line formats a single entry, preferring the custom template.
func (f *DmenuFormatter) line(index int, data templateData, fields ...string) string {
	if f.template != nil {
		var buf strings.Builder
		if err := f.template.Execute(&buf, data); err == nil {
			return sanitize(buf.String())
		}
	}

	sep := f.opts.Separator
	if sep == "" {
		sep = " | "
	}

	var parts []string
	if f.opts.ShowIndex {
		parts = append(parts, fmt.Sprintf("%d", index))
	}
	for _, field := range fields {
		parts = append(parts, sanitize(field))
	}
	return strings.Join(parts, sep)
}

// sanitize keeps an entry on a single line.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
