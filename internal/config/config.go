// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-launcher/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the root launcher configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" json:"log_level" yaml:"log_level"`

	Search  SearchConfig  `toml:"search" json:"search" yaml:"search"`
	Runtime RuntimeConfig `toml:"runtime" json:"runtime" yaml:"runtime"`
	Window  WindowConfig  `toml:"window" json:"window" yaml:"window"`
	Server  ServerConfig  `toml:"server" json:"server" yaml:"server"`
	UI      UIConfig      `toml:"ui" json:"ui" yaml:"ui"`
}

// SearchConfig configures the SearXNG façade.
type SearchConfig struct {
	URL            string   `toml:"url" json:"url" yaml:"url"`
	DefaultEngines []string `toml:"default_engines" json:"default_engines" yaml:"default_engines"`
	SearchTimeout  Duration `toml:"search_timeout" json:"search_timeout" yaml:"search_timeout"`
	ConfigTimeout  Duration `toml:"config_timeout" json:"config_timeout" yaml:"config_timeout"`
}

// RuntimeConfig configures the local model runtime.
type RuntimeConfig struct {
	// Provider selects the wire protocol: "ollama" (native NDJSON API) or
	// "openai" (the runtime's OpenAI-compatible /v1 endpoint).
	Provider          string   `toml:"provider" json:"provider" yaml:"provider"`
	URL               string   `toml:"url" json:"url" yaml:"url"`
	DefaultModel      string   `toml:"default_model" json:"default_model" yaml:"default_model"`
	InitTimeout       Duration `toml:"init_timeout" json:"init_timeout" yaml:"init_timeout"`
	StreamIdleTimeout Duration `toml:"stream_idle_timeout" json:"stream_idle_timeout" yaml:"stream_idle_timeout"`
	Autostart         bool     `toml:"autostart" json:"autostart" yaml:"autostart"`
}

// WindowConfig configures the floating panel.
type WindowConfig struct {
	Width          int    `toml:"width" json:"width" yaml:"width"`
	Height         int    `toml:"height" json:"height" yaml:"height"`
	Frameless      bool   `toml:"frameless" json:"frameless" yaml:"frameless"`
	Transparent    bool   `toml:"transparent" json:"transparent" yaml:"transparent"`
	Resizable      bool   `toml:"resizable" json:"resizable" yaml:"resizable"`
	ShowOnReady    bool   `toml:"show_on_ready" json:"show_on_ready" yaml:"show_on_ready"`
	AutoHide       bool   `toml:"auto_hide" json:"auto_hide" yaml:"auto_hide"`
	VerticalOffset int    `toml:"vertical_offset" json:"vertical_offset" yaml:"vertical_offset"`
	Hotkey         string `toml:"hotkey" json:"hotkey" yaml:"hotkey"`
}

// ServerConfig configures the HTTP bridge used by browser renderers.
type ServerConfig struct {
	Port           int      `toml:"port" json:"port" yaml:"port"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
	// RateLimit is the sustained invocations per second per client.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
}

// UIConfig configures the terminal renderer.
type UIConfig struct {
	Theme    string `toml:"theme" json:"theme" yaml:"theme"`
	Markdown bool   `toml:"markdown" json:"markdown" yaml:"markdown"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as "10s" in every
// supported format.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText accepts Go duration syntax or a bare number of seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Default returns a Config populated with the launcher defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Search: SearchConfig{
			URL:            "http://localhost:8080",
			DefaultEngines: []string{"google"},
			SearchTimeout:  Duration(10 * time.Second),
			ConfigTimeout:  Duration(5 * time.Second),
		},
		Runtime: RuntimeConfig{
			Provider:          ProviderOllama,
			URL:               "http://127.0.0.1:11434",
			DefaultModel:      "qwen2.5",
			InitTimeout:       Duration(3 * time.Second),
			StreamIdleTimeout: Duration(2 * time.Minute),
		},
		Window: WindowConfig{
			Width:          400,
			Height:         600,
			Frameless:      true,
			Transparent:    true,
			AutoHide:       true,
			VerticalOffset: 20,
			Hotkey:         "ctrl+a",
		},
		Server: ServerConfig{
			Port:           8765,
			AllowedOrigins: []string{"http://localhost:5173"},
			RateLimit:      20,
		},
		UI: UIConfig{
			Theme:    "dark",
			Markdown: true,
		},
	}
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()

	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	if c.Search.URL == "" {
		c.Search.URL = d.Search.URL
	}
	if len(c.Search.DefaultEngines) == 0 {
		c.Search.DefaultEngines = d.Search.DefaultEngines
	}
	if c.Search.SearchTimeout == 0 {
		c.Search.SearchTimeout = d.Search.SearchTimeout
	}
	if c.Search.ConfigTimeout == 0 {
		c.Search.ConfigTimeout = d.Search.ConfigTimeout
	}

	if c.Runtime.Provider == "" {
		c.Runtime.Provider = d.Runtime.Provider
	}
	if c.Runtime.URL == "" {
		c.Runtime.URL = d.Runtime.URL
	}
	if c.Runtime.DefaultModel == "" {
		c.Runtime.DefaultModel = d.Runtime.DefaultModel
	}
	if c.Runtime.InitTimeout == 0 {
		c.Runtime.InitTimeout = d.Runtime.InitTimeout
	}
	if c.Runtime.StreamIdleTimeout == 0 {
		c.Runtime.StreamIdleTimeout = d.Runtime.StreamIdleTimeout
	}

	if c.Window.Width == 0 {
		c.Window.Width = d.Window.Width
	}
	if c.Window.Height == 0 {
		c.Window.Height = d.Window.Height
	}
	if c.Window.Hotkey == "" {
		c.Window.Hotkey = d.Window.Hotkey
	}

	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = d.Server.RateLimit
	}

	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// DirEnv overrides the configuration directory.
const DirEnv = "LAUNCHER_CONFIG_DIR"

// ConfigDir returns the launcher configuration directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-launcher"), nil
}

// ConfigPath returns the default TOML config path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// candidateNames are probed in order by Load.
var candidateNames = []string{"config.toml", "config.yaml", "config.yml", "config.json"}

// FindConfigFile returns the first existing config file in the config
// directory, or "" when there is none.
func FindConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range candidateNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env from the working directory and then from the config
// directory. Variables already set in the environment win; missing files
// are ignored.
func LoadDotEnv() {
	_ = godotenv.Load()
	if dir, err := ConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}
}

// Load reads the first config file found in the config directory, or the
// defaults when there is none. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := FindConfigFile()
	if err != nil {
		return nil, err
	}
	if path == "" {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads a config file, choosing the decoder by extension.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Decode(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Format is a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Decode parses data in the given format on top of the defaults. Keys the
// data omits keep their default values.
func Decode(data []byte, format Format) (*Config, error) {
	cfg := Default()
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, cfg)
	case FormatYAML:
		err = yaml.Unmarshal(data, cfg)
	default:
		_, err = toml.Decode(string(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes cfg to path, choosing the encoder by extension.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveToPath(cfg *Config, path string) error {
	data, err := Encode(cfg, FormatOf(path))
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Encode renders cfg in the given format.
func Encode(cfg *Config, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		enc.Close()
	default:
		buf.WriteString("# rigrun-launcher configuration file\n")
		buf.WriteString("# Generated by rigrun-launcher - edit with care\n\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - LAUNCHER_SEARXNG_URL: overrides search.url
//   - LAUNCHER_OLLAMA_URL: overrides runtime.url
//   - LAUNCHER_MODEL: overrides runtime.default_model
//   - LAUNCHER_PROVIDER: overrides runtime.provider
//   - LAUNCHER_HOTKEY: overrides window.hotkey
//   - LAUNCHER_SERVER_PORT: overrides server.port
//   - LAUNCHER_LOG_LEVEL: overrides log_level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LAUNCHER_SEARXNG_URL"); v != "" {
		c.Search.URL = v
	}
	if v := os.Getenv("LAUNCHER_OLLAMA_URL"); v != "" {
		c.Runtime.URL = v
	}
	if v := os.Getenv("LAUNCHER_MODEL"); v != "" {
		c.Runtime.DefaultModel = v
	}
	if v := os.Getenv("LAUNCHER_PROVIDER"); v != "" {
		c.Runtime.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("LAUNCHER_HOTKEY"); v != "" {
		c.Window.Hotkey = v
	}
	if v := os.Getenv("LAUNCHER_SERVER_PORT"); v != "" {
		// Unparseable ports are left for Validate to report.
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		} else {
			c.Server.Port = -1
		}
	}
	if v := os.Getenv("LAUNCHER_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Search.DefaultEngines = slices.Clone(c.Search.DefaultEngines)
	clone.Server.AllowedOrigins = slices.Clone(c.Server.AllowedOrigins)
	return &clone
}

// String returns the config as TOML.
func (c *Config) String() string {
	data, err := Encode(c, FormatTOML)
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// ErrUnknownKey is returned by Get and Set for keys that name no setting.
var ErrUnknownKey = errors.New("unknown config key")
