// Package config loads the deployment configuration from YAML or JSON5
// files with include resolution, environment expansion, and strict field
// checking.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from human-readable YAML
// strings ("2m", "45s") as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full configuration surface.
type Config struct {
	Slack         SlackConfig         `yaml:"slack"`
	Batch         BatchConfig         `yaml:"batch"`
	Bootstrap     BootstrapConfig     `yaml:"bootstrap"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SlackConfig holds the platform credentials. Single mode uses a static
// bot token; multi mode runs the OAuth install flow.
type SlackConfig struct {
	Mode         string `yaml:"mode"`
	BotToken     string `yaml:"bot_token"`
	AppToken     string `yaml:"app_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// BatchConfig holds the flush thresholds.
type BatchConfig struct {
	MessageLimit  int      `yaml:"message_limit"`
	TimeWindow    Duration `yaml:"time_window"`
	StaleAfter    Duration `yaml:"stale_after"`
	SweepInterval Duration `yaml:"sweep_interval"`
	BufferCap     int      `yaml:"buffer_cap"`
	IdleEviction  Duration `yaml:"idle_eviction"`
}

// BootstrapConfig bounds the one-time history import.
type BootstrapConfig struct {
	Lookback    Duration `yaml:"lookback"`
	MaxMessages int      `yaml:"max_messages"`
	MinMessages int      `yaml:"min_messages"`
}

// SummarizerConfig configures the LLM gateway and the truncation window.
type SummarizerConfig struct {
	APIKey       string   `yaml:"api_key"`
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	WindowHead   int      `yaml:"window_head"`
	WindowTail   int      `yaml:"window_tail"`
	WindowSample int      `yaml:"window_sample"`
	Timezone     string   `yaml:"timezone"`
}

// DirectoryConfig selects the installation store backend.
type DirectoryConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Modes for SlackConfig.Mode.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// Load reads, merges, and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Slack.Mode == "" {
		c.Slack.Mode = ModeSingle
	}
	if c.Batch.MessageLimit == 0 {
		c.Batch.MessageLimit = 10
	}
	if c.Batch.TimeWindow == 0 {
		c.Batch.TimeWindow = Duration(2 * time.Minute)
	}
	if c.Batch.StaleAfter == 0 {
		c.Batch.StaleAfter = Duration(15 * time.Minute)
	}
	if c.Batch.SweepInterval == 0 {
		c.Batch.SweepInterval = Duration(10 * time.Minute)
	}
	if c.Batch.BufferCap == 0 {
		c.Batch.BufferCap = 200
	}
	if c.Batch.IdleEviction == 0 {
		c.Batch.IdleEviction = Duration(time.Hour)
	}
	if c.Bootstrap.Lookback == 0 {
		c.Bootstrap.Lookback = Duration(14 * 24 * time.Hour)
	}
	if c.Bootstrap.MaxMessages == 0 {
		c.Bootstrap.MaxMessages = 1000
	}
	if c.Bootstrap.MinMessages == 0 {
		c.Bootstrap.MinMessages = 10
	}
	if c.Summarizer.Model == "" {
		c.Summarizer.Model = "gpt-4o-mini"
	}
	if c.Summarizer.Timeout == 0 {
		c.Summarizer.Timeout = Duration(45 * time.Second)
	}
	if c.Summarizer.WindowHead == 0 {
		c.Summarizer.WindowHead = 10
	}
	if c.Summarizer.WindowTail == 0 {
		c.Summarizer.WindowTail = 20
	}
	if c.Summarizer.WindowSample == 0 {
		c.Summarizer.WindowSample = 10
	}
	if c.Directory.Backend == "" {
		c.Directory.Backend = "memory"
	}
	if c.Directory.Path == "" {
		c.Directory.Path = "paper.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = "json"
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Slack.Mode {
	case ModeSingle:
		if c.Slack.BotToken == "" {
			return fmt.Errorf("slack.bot_token is required in single mode")
		}
	case ModeMulti:
		if c.Slack.ClientID == "" || c.Slack.ClientSecret == "" {
			return fmt.Errorf("slack.client_id and slack.client_secret are required in multi mode")
		}
	default:
		return fmt.Errorf("slack.mode must be %q or %q, got %q", ModeSingle, ModeMulti, c.Slack.Mode)
	}
	if c.Slack.AppToken == "" {
		return fmt.Errorf("slack.app_token is required for socket mode")
	}
	if c.Summarizer.APIKey == "" {
		return fmt.Errorf("summarizer.api_key is required")
	}
	switch c.Directory.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("directory.backend must be memory or sqlite, got %q", c.Directory.Backend)
	}
	return nil
}
