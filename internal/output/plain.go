package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/dionysus/internal/device"
	"github.com/jmylchreest/dionysus/internal/model"
)

// PlainFormatter formats listings as plain text.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	return &PlainFormatter{opts: opts, template: parseTemplate("plain", opts.Template)}
}

// Devices writes one device per line followed by its capabilities.
func (f *PlainFormatter) Devices(w io.Writer, devices []device.AudioDevice) error {
	for i, d := range devices {
		if f.template != nil {
			if err := f.template.Execute(w, templateData{Index: i + 1, Device: &d}); err != nil {
				return err
			}
			continue
		}

		var sb strings.Builder
		if f.opts.ShowIndex {
			sb.WriteString(fmt.Sprintf("[%d] ", i+1))
		}
		sb.WriteString(d.Name)
		if marks := defaultMarks(d); marks != "" {
			sb.WriteString(" (" + marks + ")")
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("    %s, %d channels, id %s\n", d.Direction, d.MaxChannels, d.ID))

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// Sounds writes one sound per line.
func (f *PlainFormatter) Sounds(w io.Writer, sounds []model.Sound) error {
	for i, s := range sounds {
		if f.template != nil {
			if err := f.template.Execute(w, templateData{Index: i + 1, Sound: &s}); err != nil {
				return err
			}
			continue
		}

		var sb strings.Builder
		if f.opts.ShowIndex {
			sb.WriteString(fmt.Sprintf("[%d] ", i+1))
		}
		sb.WriteString(s.Label(f.opts.LabelMode))
		if f.opts.ShowSize {
			sb.WriteString(fmt.Sprintf(" (%s)", humanize.Bytes(uint64(max(s.Size, 0)))))
		}
		sb.WriteString("\n    " + s.Path + "\n")

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// Events writes one event per line followed by its message.
func (f *PlainFormatter) Events(w io.Writer, events []model.Event) error {
	for i, ev := range events {
		if f.template != nil {
			if err := f.template.Execute(w, templateData{Index: i + 1, Event: &ev}); err != nil {
				return err
			}
			continue
		}

		var sb strings.Builder
		if f.opts.ShowIndex {
			sb.WriteString(fmt.Sprintf("[%d] ", i+1))
		}
		sb.WriteString(fmt.Sprintf("<%s> %s (%s)\n", ev.Kind, ev.Title, relativeTime(ev.Time)))
		if ev.Message != "" {
			sb.WriteString("    " + ev.Message + "\n")
		}

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

func defaultMarks(d device.AudioDevice) string {
	var marks []string
	if d.DefaultInput {
		marks = append(marks, "default input")
	}
	if d.DefaultOutput {
		marks = append(marks, "default output")
	}
	return strings.Join(marks, ", ")
}

// templateData provides data for custom templates. Only one of Device,
// Sound and Event is set.
type templateData struct {
	Index  int
	Device *device.AudioDevice
	Sound  *model.Sound
	Event  *model.Event
}

// parseTemplate returns nil when text is empty or does not parse.
func parseTemplate(name, text string) *template.Template {
	if text == "" {
		return nil
	}
	tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(text)
	if err != nil {
		return nil
	}
	return tmpl
}

// templateFuncs returns template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": truncate,
		"bytes": func(n int64) string {
			return humanize.Bytes(uint64(max(n, 0)))
		},
		"label": func(s *model.Sound, mode int) string {
			return s.Label(mode)
		},
		"reltime": relativeTime,
	}
}

// relativeTime returns a human-readable relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
