package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "INTERVIEW_CAPTURE_"

type Config struct {
	LogLevel  string         `toml:"log_level"`
	TempDir   string         `toml:"temp_dir"`
	KeepFiles bool           `toml:"keep_files"` // retain capture/segment files for debugging
	Capture   CaptureConfig  `toml:"capture"`
	Segment   SegmentConfig  `toml:"segment"`
	Whisper   WhisperConfig  `toml:"whisper"`
	Recovery  RecoveryConfig `toml:"recovery"`
}

type CaptureConfig struct {
	FFmpegPath string `toml:"ffmpeg_path"`
	// Devices overrides the built-in device table, keyed by source name
	// ("interviewer", "interviewee", "both", "system").
	Devices map[string]DeviceConfig `toml:"devices"`
}

type DeviceConfig struct {
	Format  string `toml:"format"` // ffmpeg input format, e.g. "avfoundation", "pulse"
	Input   string `toml:"input"`
	Virtual bool   `toml:"virtual"`
}

type SegmentConfig struct {
	Window        Duration `toml:"window"`
	FFprobePath   string   `toml:"ffprobe_path"`
	MinAudioBytes int64    `toml:"min_audio_bytes"`
	CleanupDelay  Duration `toml:"cleanup_delay"`
}

type WhisperConfig struct {
	Binary   string   `toml:"binary"`
	Model    string   `toml:"model"` // "base.en", "small", or a path to a ggml model file
	Language string   `toml:"language"`
	Timeout  Duration `toml:"timeout"`
}

type RecoveryConfig struct {
	BusyDelay            Duration `toml:"busy_delay"`
	BusyRestartDelay     Duration `toml:"busy_restart_delay"`
	ExitRestartDelay     Duration `toml:"exit_restart_delay"`
	ErrorRestartDelay    Duration `toml:"error_restart_delay"`
	RecoverableExitCodes []int    `toml:"recoverable_exit_codes"`
	MaxRestarts          int      `toml:"max_restarts"`
	TerminateGrace       Duration `toml:"terminate_grace"`
}

// Duration is a time.Duration that reads and writes as a string ("5s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		TempDir:   filepath.Join(os.TempDir(), "interview-capture"),
		KeepFiles: false,
		Capture: CaptureConfig{
			FFmpegPath: "ffmpeg",
		},
		Segment: SegmentConfig{
			Window:        Duration{5 * time.Second},
			FFprobePath:   "ffprobe",
			MinAudioBytes: 1000,
			CleanupDelay:  Duration{60 * time.Second},
		},
		Whisper: WhisperConfig{
			Binary:   "whisper-cli",
			Model:    "base.en",
			Language: "auto",
			Timeout:  Duration{30 * time.Second},
		},
		Recovery: RecoveryConfig{
			BusyDelay:            Duration{2 * time.Second},
			BusyRestartDelay:     Duration{1 * time.Second},
			ExitRestartDelay:     Duration{3 * time.Second},
			ErrorRestartDelay:    Duration{2 * time.Second},
			RecoverableExitCodes: []int{1, 255},
			MaxRestarts:          3,
			TerminateGrace:       Duration{1 * time.Second},
		},
	}
}

// Load reads the config from disk, then applies .env and environment overrides.
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom is Load with an explicit config file path. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Segment.Window.Duration <= 0 {
		return fmt.Errorf("segment.window must be positive, got %s", c.Segment.Window)
	}
	if c.Segment.MinAudioBytes < 0 {
		return fmt.Errorf("segment.min_audio_bytes must not be negative, got %d", c.Segment.MinAudioBytes)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// ModelPath resolves the whisper model setting to a file path. Bare model
// names map to ggml-<name>.bin under ModelsPath.
func (c *Config) ModelPath() string {
	m := c.Whisper.Model
	if strings.ContainsRune(m, os.PathSeparator) || strings.HasSuffix(m, ".bin") {
		return m
	}
	return filepath.Join(ModelsPath(), "ggml-"+m+".bin")
}

func applyEnvOverrides(cfg *Config) error {
	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	if v := getEnv("KEEP_FILES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sKEEP_FILES: %w", envPrefix, err)
		}
		cfg.KeepFiles = b
	}
	if v := getEnv("FFMPEG_PATH"); v != "" {
		cfg.Capture.FFmpegPath = v
	}
	if v := getEnv("FFPROBE_PATH"); v != "" {
		cfg.Segment.FFprobePath = v
	}
	if v := getEnv("WHISPER_BINARY"); v != "" {
		cfg.Whisper.Binary = v
	}
	if v := getEnv("WHISPER_MODEL"); v != "" {
		cfg.Whisper.Model = v
	}
	if v := getEnv("SEGMENT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sSEGMENT_WINDOW: %w", envPrefix, err)
		}
		cfg.Segment.Window = Duration{d}
	}
	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

// Path is where Load and Save look for the config file.
func Path() string {
	return configPath()
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "interview-capture", "config.toml")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "interview-capture", "models")
}
