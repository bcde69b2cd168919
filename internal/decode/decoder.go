// Package decode turns sound files into playback requests.
package decode

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/jmylchreest/dionysus/internal/model"
	"github.com/jmylchreest/dionysus/internal/playback"
)

// Extensions lists the supported file extensions.
var Extensions = []string{".mp3", ".wav", ".ogg", ".flac"}

// Supported reports whether path has a supported extension.
func Supported(path string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(path)))
}

// Decoder reads whole clips into memory.
type Decoder struct{}

// Decode reads path into a request. Failures are KindDecode errors; files
// with an unsupported extension are rejected before being opened.
func (Decoder) Decode(path string) (*playback.Request, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(Extensions, ext) {
		return nil, decodeError(path, fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, ext))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, decodeError(path, fmt.Errorf("failed to open sound file: %w", err))
	}
	defer func() { _ = f.Close() }()

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch ext {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	}
	if err != nil {
		return nil, decodeError(path, fmt.Errorf("failed to decode sound: %w", err))
	}
	defer func() { _ = streamer.Close() }()

	channels := min(max(format.NumChannels, 1), 2)
	samples, err := drain(streamer, channels, streamer.Len())
	if err != nil {
		return nil, decodeError(path, fmt.Errorf("failed to decode sound: %w", err))
	}

	return &playback.Request{
		Name:       filepath.Base(path),
		Path:       path,
		Samples:    samples,
		Channels:   channels,
		SampleRate: int(format.SampleRate),
	}, nil
}

// drain reads s to the end into interleaved float32 samples. beep always
// streams stereo frames; mono sources keep only the left channel.
func drain(s beep.Streamer, channels, hint int) ([]float32, error) {
	out := make([]float32, 0, max(hint, 0)*channels)
	buf := make([][2]float64, 512)

	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, float32(frame[0]))
			if channels == 2 {
				out = append(out, float32(frame[1]))
			}
		}
		if !ok {
			break
		}
	}

	if e, ok := s.(interface{ Err() error }); ok && e.Err() != nil {
		return nil, e.Err()
	}
	return out, nil
}

func decodeError(path string, err error) error {
	return model.NewError(model.KindDecode, "decode clip", err).WithPath(path)
}
