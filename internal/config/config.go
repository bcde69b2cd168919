// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultCableDevice  = "CABLE Input (VB-Audio Virtual Cable)"
	DefaultChannels     = 2
	DefaultBlockSize    = 256
	DefaultSampleRate   = 48000
	DefaultRenderGrace  = 2 * time.Second
	MinRenderGrace      = 250 * time.Millisecond
	DefaultEventBuffer  = 64
	DefaultEmoji        = "🔊"
	DefaultNotifyWindow = 5 * time.Second
	DefaultHistorySize  = 500
)

// MatchMode selects how the virtual cable device name is matched.
type MatchMode string

const (
	// MatchExact requires the device name to equal the configured name.
	MatchExact MatchMode = "exact"
	// MatchContains accepts any output whose name contains the configured
	// name, ignoring case.
	MatchContains MatchMode = "contains"
)

// Config represents the dionysus configuration.
type Config struct {
	Devices       DevicesConfig          `toml:"devices"`
	Stream        StreamConfig           `toml:"stream"`
	Playback      PlaybackConfig         `toml:"playback"`
	Library       LibraryConfig          `toml:"library"`
	UI            UIConfig               `toml:"ui"`
	Notifications NotificationsConfig    `toml:"notifications"`
	History       HistoryConfig          `toml:"history"`
	Sounds        map[string]SoundConfig `toml:"sounds"`
}

// DevicesConfig holds the persisted device selection.
type DevicesConfig struct {
	Input  string    `toml:"input"`  // Empty = system default input
	Output string    `toml:"output"` // Empty = system default output
	Cable  string    `toml:"cable"`  // Virtual cable output name
	Match  MatchMode `toml:"match"`  // exact, contains
}

// StreamConfig holds the loopback stream format.
type StreamConfig struct {
	Channels   int `toml:"channels"`    // 1 or 2
	BlockSize  int `toml:"block_size"`  // Frames per callback
	SampleRate int `toml:"sample_rate"` // Hz
}

// PlaybackConfig holds playback worker settings.
type PlaybackConfig struct {
	RenderGrace Duration `toml:"render_grace"` // Extra time allowed past a clip's length
	EventBuffer int      `toml:"event_buffer"` // Pending notifications before dropping
}

// LibraryConfig holds sound library settings.
type LibraryConfig struct {
	Path  string `toml:"path"`  // Directory scanned for sound files
	Cache bool   `toml:"cache"` // Keep decoded clips in memory
	Watch bool   `toml:"watch"` // Invalidate cached clips when files change
}

// UIConfig holds soundboard UI settings.
type UIConfig struct {
	ShowClock    bool   `toml:"show_clock"`
	DefaultEmoji string `toml:"default_emoji"`
}

// NotificationsConfig holds desktop notification settings.
type NotificationsConfig struct {
	Desktop     bool     `toml:"desktop"`      // Also send freedesktop notifications
	MinInterval Duration `toml:"min_interval"` // Suppress repeats of the same notification
}

// HistoryConfig holds event history settings.
type HistoryConfig struct {
	Enabled    bool `toml:"enabled"`     // Record engine events to the data directory
	MaxEntries int  `toml:"max_entries"` // Events kept, 0 = unlimited
}

// SoundConfig overrides the label of a single sound file.
type SoundConfig struct {
	Text  string `toml:"text"`
	Emoji string `toml:"emoji"`
}

// EngineConfig is the immutable engine input derived from Config once at
// startup.
type EngineConfig struct {
	InputDevice  string
	OutputDevice string
	CableDevice  string
	CableMatch   MatchMode
	Channels     int
	BlockSize    int
	SampleRate   int
	RenderGrace  time.Duration
	EventBuffer  int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Devices: DevicesConfig{
			Cable: DefaultCableDevice,
			Match: MatchExact,
		},
		Stream: StreamConfig{
			Channels:   DefaultChannels,
			BlockSize:  DefaultBlockSize,
			SampleRate: DefaultSampleRate,
		},
		Playback: PlaybackConfig{
			RenderGrace: Duration(DefaultRenderGrace),
			EventBuffer: DefaultEventBuffer,
		},
		Library: LibraryConfig{
			Path:  filepath.Join(DataPath(), "audio"),
			Cache: true,
			Watch: true,
		},
		UI: UIConfig{
			ShowClock:    false,
			DefaultEmoji: DefaultEmoji,
		},
		Notifications: NotificationsConfig{
			Desktop:     false,
			MinInterval: Duration(DefaultNotifyWindow),
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: DefaultHistorySize,
		},
		Sounds: make(map[string]SoundConfig),
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "dionysus", "config.toml")
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "dionysus")
}

// LogPath returns the path to the log file used while the UI owns the terminal.
func LogPath() string {
	return filepath.Join(DataPath(), "dionysus.log")
}

// HistoryPath returns the path to the event history file.
func HistoryPath() string {
	return filepath.Join(DataPath(), "events.jsonl")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	path := DataPath()
	if path == "" {
		return errors.New("unable to determine data directory")
	}
	return os.MkdirAll(path, 0755)
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Library.Path = expandPath(cfg.Library.Path)
	return cfg, nil
}

// Save writes the configuration to the specified path atomically.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Devices.Match {
	case MatchExact, MatchContains:
	default:
		return fmt.Errorf("invalid match mode %q, must be one of: %v", c.Devices.Match,
			[]MatchMode{MatchExact, MatchContains})
	}

	if strings.TrimSpace(c.Devices.Cable) == "" {
		return errors.New("devices.cable must name the virtual cable output")
	}

	if c.Stream.Channels != 1 && c.Stream.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Stream.Channels)
	}
	if c.Stream.BlockSize < 16 || c.Stream.BlockSize > 8192 {
		return fmt.Errorf("block_size must be between 16 and 8192, got %d", c.Stream.BlockSize)
	}
	if c.Stream.SampleRate < 8000 || c.Stream.SampleRate > 384000 {
		return fmt.Errorf("sample_rate must be between 8000 and 384000, got %d", c.Stream.SampleRate)
	}

	if c.Playback.RenderGrace.Duration() < MinRenderGrace {
		return fmt.Errorf("render_grace must be at least %s, got %s", MinRenderGrace, c.Playback.RenderGrace.Duration())
	}
	if c.Playback.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1, got %d", c.Playback.EventBuffer)
	}

	if c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative, got %d", c.History.MaxEntries)
	}

	return nil
}

// Engine derives the engine configuration.
func (c *Config) Engine() EngineConfig {
	return EngineConfig{
		InputDevice:  c.Devices.Input,
		OutputDevice: c.Devices.Output,
		CableDevice:  c.Devices.Cable,
		CableMatch:   c.Devices.Match,
		Channels:     c.Stream.Channels,
		BlockSize:    c.Stream.BlockSize,
		SampleRate:   c.Stream.SampleRate,
		RenderGrace:  c.Playback.RenderGrace.Duration(),
		EventBuffer:  c.Playback.EventBuffer,
	}
}

// SelectDevices updates the persisted device selection and saves the config
// file at path. Only non-nil arguments are changed.
func SelectDevices(path string, input, output, cable *string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if input != nil {
		cfg.Devices.Input = *input
	}
	if output != nil {
		cfg.Devices.Output = *output
	}
	if cable != nil {
		cfg.Devices.Cable = *cable
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
