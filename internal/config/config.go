// Package config handles loading and managing tutormsg configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// RemoteConfig holds messaging backend connection settings.
type RemoteConfig struct {
	URL           string `toml:"url"`            // Backend base URL
	APIKey        string `toml:"api_key"`        // Backend API key
	AllowInsecure bool   `toml:"allow_insecure"` // Permit plain HTTP (trusted networks only)
	RateLimitQPS  int    `toml:"rate_limit_qps"` // Outbound request budget
	TimeoutSecs   int    `toml:"timeout_seconds"`
}

// PollConfig holds poll cadence settings.
type PollConfig struct {
	IntervalMS int `toml:"interval_ms"` // Primary widget cadence (default: 2000)
}

// WidgetConfig holds widget behavior thresholds.
type WidgetConfig struct {
	MinMessageLen       int `toml:"min_message_len"`          // Minimum send length after trimming
	NearBottom          int `toml:"near_bottom"`              // Autoscroll proximity threshold
	ScrollDebounceMS    int `toml:"scroll_debounce_ms"`       // Manual-scroll settle time
	SupersedeWindowSecs int `toml:"supersede_window_seconds"` // Optimistic-send match window
}

// ServerConfig holds the local HTTP surface configuration.
type ServerConfig struct {
	BindAddr string `toml:"bind_addr"` // default: 127.0.0.1
	APIPort  int    `toml:"api_port"`  // default: 8098
	APIKey   string `toml:"api_key"`   // Local API authentication key
}

type Config struct {
	// Role is the local participant's side: "student" or "tutor".
	Role string `toml:"role"`

	// ParticipantID identifies the local participant on the backend.
	ParticipantID string `toml:"participant_id"`

	Remote RemoteConfig `toml:"remote"`
	Poll   PollConfig   `toml:"poll"`
	Widget WidgetConfig `toml:"widget"`
	Server ServerConfig `toml:"server"`

	// Computed (not from the config file)
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default tutormsg home directory.
// Respects the TUTORMSG_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("TUTORMSG_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tutormsg"
	}
	return filepath.Join(home, ".tutormsg")
}

// Load reads the configuration from the specified file. If path is
// empty, the default location (~/.tutormsg/config.toml) is used. The
// file is optional; defaults apply when it is absent.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Role:    "student",
		Remote: RemoteConfig{
			RateLimitQPS: 10,
			TimeoutSecs:  30,
		},
		Poll: PollConfig{
			IntervalMS: 2000,
		},
		Widget: WidgetConfig{
			MinMessageLen:       5,
			NearBottom:          150,
			ScrollDebounceMS:    250,
			SupersedeWindowSecs: 120,
		},
		Server: ServerConfig{
			BindAddr: "127.0.0.1",
			APIPort:  8098,
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
}

// ScrollDebounce returns the manual-scroll settle time as a duration.
func (c *Config) ScrollDebounce() time.Duration {
	return time.Duration(c.Widget.ScrollDebounceMS) * time.Millisecond
}

// SupersedeWindow returns the optimistic-send match window as a duration.
func (c *Config) SupersedeWindow() time.Duration {
	return time.Duration(c.Widget.SupersedeWindowSecs) * time.Second
}

// RemoteTimeout returns the backend request timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSecs) * time.Second
}
