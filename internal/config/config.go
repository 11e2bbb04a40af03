package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MaxPayloadBytes is the host's ceiling for a single dispatched payload.
	MaxPayloadBytes = 10 << 20
	// EvalTimeout is the host's ceiling for a single evaluation in the view.
	EvalTimeout = 10 * time.Second

	DefaultTickInterval         = 100 * time.Millisecond
	DefaultThumbnailConcurrency = 3
	DefaultFilter               = "recently-viewed"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Prefs       PrefsConfig       `yaml:"prefs"`
	Log         LogConfig         `yaml:"log"`

	// Offline serves canned issues and turns uploads into local messages.
	Offline bool `yaml:"offline" env:"PANEL_OFFLINE"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"PANEL_SERVER_PORT"`
	Host           string   `yaml:"host" env:"PANEL_SERVER_HOST"`
	AuthToken      string   `yaml:"auth_token" env:"PANEL_SERVER_AUTH_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"PANEL_SERVER_ALLOWED_ORIGINS"`
	FrontendDir    string   `yaml:"frontend_dir" env:"PANEL_SERVER_FRONTEND_DIR"`
}

type SchedulerConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval" env:"PANEL_SCHEDULER_TICK_INTERVAL"`
	DefaultFilter    string        `yaml:"default_filter" env:"PANEL_SCHEDULER_DEFAULT_FILTER"`
	FailureThreshold int           `yaml:"failure_threshold" env:"PANEL_SCHEDULER_FAILURE_THRESHOLD"`
}

type BridgeConfig struct {
	MaxPayloadBytes int           `yaml:"max_payload_bytes" env:"PANEL_BRIDGE_MAX_PAYLOAD_BYTES"`
	EvalTimeout     time.Duration `yaml:"eval_timeout" env:"PANEL_BRIDGE_EVAL_TIMEOUT"`
}

type AttachmentsConfig struct {
	ThumbnailConcurrency int    `yaml:"thumbnail_concurrency" env:"PANEL_ATTACHMENTS_THUMBNAIL_CONCURRENCY"`
	DownloadDir          string `yaml:"download_dir" env:"PANEL_ATTACHMENTS_DOWNLOAD_DIR"`
	MinFreeBytes         uint64 `yaml:"min_free_bytes" env:"PANEL_ATTACHMENTS_MIN_FREE_BYTES"`
	DropDir              string `yaml:"drop_dir" env:"PANEL_ATTACHMENTS_DROP_DIR"`
}

type TrackerConfig struct {
	BaseURL string        `yaml:"base_url" env:"PANEL_TRACKER_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"PANEL_TRACKER_TIMEOUT"`
	// MockLatency delays every offline tracker call.
	MockLatency time.Duration `yaml:"mock_latency" env:"PANEL_TRACKER_MOCK_LATENCY"`
}

type PrefsConfig struct {
	Dir string `yaml:"dir" env:"PANEL_PREFS_DIR"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"PANEL_LOG_LEVEL"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Scheduler: SchedulerConfig{
			TickInterval:     DefaultTickInterval,
			DefaultFilter:    DefaultFilter,
			FailureThreshold: 3,
		},
		Bridge: BridgeConfig{
			MaxPayloadBytes: MaxPayloadBytes,
			EvalTimeout:     EvalTimeout,
		},
		Attachments: AttachmentsConfig{
			ThumbnailConcurrency: DefaultThumbnailConcurrency,
			MinFreeBytes:         64 << 20,
		},
		Tracker: TrackerConfig{
			Timeout:     30 * time.Second,
			MockLatency: 150 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in settings without reading a file or the
// environment.
func Default() *Config { return defaultConfig() }

// Load reads the YAML file at path over the defaults and then applies
// PANEL_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault behaves like Load but falls back to defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = defaultConfig()
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return cfg, err
}

func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	return nil
}

// Validate rejects settings the scheduler or bridge cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive, got %v", c.Scheduler.TickInterval)
	}
	if c.Attachments.ThumbnailConcurrency < 1 {
		return fmt.Errorf("attachments.thumbnail_concurrency must be at least 1, got %d", c.Attachments.ThumbnailConcurrency)
	}
	if c.Bridge.MaxPayloadBytes <= 0 {
		return fmt.Errorf("bridge.max_payload_bytes must be positive, got %d", c.Bridge.MaxPayloadBytes)
	}
	if c.Bridge.EvalTimeout <= 0 {
		return fmt.Errorf("bridge.eval_timeout must be positive, got %v", c.Bridge.EvalTimeout)
	}
	return nil
}
