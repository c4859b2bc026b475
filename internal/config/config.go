// Package config handles configuration loading, validation, and management
// for the kanaime processes.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"kanaime/internal/ipc"
	"kanaime/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the configuration shared by the front end, the engine server
// and the window server.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	IME       IMEConfig       `toml:"ime" json:"ime" yaml:"ime"`
	Engine    EngineConfig    `toml:"engine" json:"engine" yaml:"engine"`
	Window    WindowConfig    `toml:"window" json:"window" yaml:"window"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry" yaml:"telemetry"`
	Zenzai    ZenzaiConfig    `toml:"zenzai" json:"zenzai" yaml:"zenzai"`

	mu sync.RWMutex
}

// IMEConfig configures the front end.
type IMEConfig struct {
	// DefaultMode is the input mode used when no mode was persisted:
	// "latin" or "kana".
	DefaultMode string `toml:"default_mode" json:"default_mode" yaml:"default_mode"`

	// StateDir holds the persisted input mode.
	StateDir string `toml:"state_dir" json:"state_dir" yaml:"state_dir"`
}

// EngineConfig configures the conversion engine server and how clients
// reach it.
type EngineConfig struct {
	Endpoint       string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	DialIntervalMs int    `toml:"dial_interval_ms" json:"dial_interval_ms" yaml:"dial_interval_ms"`

	// DictionaryPath is the SQLite dictionary, created and seeded on first
	// use.
	DictionaryPath string `toml:"dictionary_path" json:"dictionary_path" yaml:"dictionary_path"`

	// UserDictionary is an optional tab-separated word list imported at
	// start and on every reload.
	UserDictionary string `toml:"user_dictionary" json:"user_dictionary" yaml:"user_dictionary"`

	MaxCandidates int `toml:"max_candidates" json:"max_candidates" yaml:"max_candidates"`
}

// WindowConfig configures the candidate window server.
type WindowConfig struct {
	Endpoint       string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	DialIntervalMs int    `toml:"dial_interval_ms" json:"dial_interval_ms" yaml:"dial_interval_ms"`

	// PageSize is how many candidates the window shows at once.
	PageSize int `toml:"page_size" json:"page_size" yaml:"page_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`

	// LogText writes composition text to the log unredacted.
	LogText bool `toml:"log_text" json:"log_text" yaml:"log_text"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// MetricsAddr serves Prometheus metrics when set, e.g. "127.0.0.1:9464".
	MetricsAddr string  `toml:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr"`
	ServiceName string  `toml:"service_name" json:"service_name" yaml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio" json:"sample_ratio" yaml:"sample_ratio"`
}

// ZenzaiConfig holds the neural conversion settings forwarded to the engine.
type ZenzaiConfig struct {
	Enable  bool   `toml:"enable" json:"enable" yaml:"enable"`
	Profile string `toml:"profile" json:"profile" yaml:"profile"`
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		IME: IMEConfig{
			DefaultMode: "latin",
			StateDir:    PlatformDataDir(),
		},
		Engine: EngineConfig{
			Endpoint:       ipc.DefaultEndpoint("engine"),
			DialIntervalMs: int(ipc.DefaultDialInterval / time.Millisecond),
			DictionaryPath: filepath.Join(PlatformDataDir(), "dictionary.db"),
			MaxCandidates:  32,
		},
		Window: WindowConfig{
			Endpoint:       ipc.DefaultEndpoint("window"),
			DialIntervalMs: int(ipc.DefaultDialInterval / time.Millisecond),
			PageSize:       9,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "kanaime.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "kanaime",
			SampleRatio: 0,
		},
		Zenzai: ZenzaiConfig{
			Profile: "",
			Backend: "cpu",
		},
	}
}

// ConfigPath returns the default configuration file path. KANAIME_CONFIG
// overrides it.
func ConfigPath() string {
	if v := os.Getenv("KANAIME_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from path, or ConfigPath when empty. A missing
// file yields the defaults. The decoder is chosen by extension; JSON is
// checked against the settings schema first.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// FormatOf returns "toml", "json" or "yaml" for a file name. Unknown
// extensions read as TOML.
func FormatOf(path string) string {
	switch filepath.Ext(path) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// Parse decodes data in the given format over the defaults.
func Parse(data []byte, format string) (*Config, error) {
	cfg := DefaultConfig()
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case "json":
		if err := ValidateJSON(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the processes write to.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dirs := []string{
		c.IME.StateDir,
		filepath.Dir(c.Engine.DictionaryPath),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies KANAIME_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("KANAIME_DEFAULT_MODE"); v != "" {
		c.IME.DefaultMode = v
	}
	if v := os.Getenv("KANAIME_ENGINE_ENDPOINT"); v != "" {
		c.Engine.Endpoint = v
	}
	if v := os.Getenv("KANAIME_WINDOW_ENDPOINT"); v != "" {
		c.Window.Endpoint = v
	}
	if v := os.Getenv("KANAIME_DICTIONARY_PATH"); v != "" {
		c.Engine.DictionaryPath = v
	}
	if v := os.Getenv("KANAIME_MAX_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxCandidates = n
		}
	}
	if v := os.Getenv("KANAIME_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KANAIME_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("KANAIME_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("KANAIME_METRICS_ADDR"); v != "" {
		c.Telemetry.MetricsAddr = v
	}
	if v := os.Getenv("KANAIME_ZENZAI_ENABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Zenzai.Enable = b
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:   c.Version,
		IME:       c.IME,
		Engine:    c.Engine,
		Window:    c.Window,
		Logging:   c.Logging,
		Telemetry: c.Telemetry,
		Zenzai:    c.Zenzai,
	}
}

// DialInterval is the engine client's retry interval.
func (e EngineConfig) DialInterval() time.Duration {
	return time.Duration(e.DialIntervalMs) * time.Millisecond
}

// DialInterval is the window client's retry interval.
func (w WindowConfig) DialInterval() time.Duration {
	return time.Duration(w.DialIntervalMs) * time.Millisecond
}

// LoggingConfig converts the logging section for a process.
func (c *Config) LoggingConfig(component string) (*logging.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	path := c.Logging.FilePath
	if path == "" {
		path = logging.DefaultLogPath(component)
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   path,
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxAge:     c.Logging.MaxAgeDays,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		LogText:    c.Logging.LogText,
		Component:  component,
	}, nil
}
