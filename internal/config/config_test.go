package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const minimalConfig = `
slack:
  mode: single
  bot_token: xoxb-test
  app_token: xapp-test
summarizer:
  api_key: sk-test
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.yaml", minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch.MessageLimit != 10 {
		t.Errorf("MessageLimit = %d, want 10", cfg.Batch.MessageLimit)
	}
	if cfg.Batch.TimeWindow.Std() != 2*time.Minute {
		t.Errorf("TimeWindow = %v, want 2m", cfg.Batch.TimeWindow.Std())
	}
	if cfg.Bootstrap.Lookback.Std() != 14*24*time.Hour {
		t.Errorf("Lookback = %v, want 336h", cfg.Bootstrap.Lookback.Std())
	}
	if cfg.Summarizer.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", cfg.Summarizer.Model)
	}
	if cfg.Directory.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Directory.Backend)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.yaml", minimalConfig+`
batch:
  time_window: 90s
  stale_after: 20m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch.TimeWindow.Std() != 90*time.Second {
		t.Errorf("TimeWindow = %v, want 90s", cfg.Batch.TimeWindow.Std())
	}
	if cfg.Batch.StaleAfter.Std() != 20*time.Minute {
		t.Errorf("StaleAfter = %v, want 20m", cfg.Batch.StaleAfter.Std())
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PAPER_TEST_TOKEN", "xoxb-from-env")
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.yaml", `
slack:
  mode: single
  bot_token: ${PAPER_TEST_TOKEN}
  app_token: xapp-test
summarizer:
  api_key: sk-test
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-from-env" {
		t.Fatalf("BotToken = %q, want expanded env value", cfg.Slack.BotToken)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
slack:
  mode: single
  bot_token: xoxb-base
  app_token: xapp-base
summarizer:
  api_key: sk-base
`)
	path := writeFile(t, dir, "paper.yaml", `
$include: base.yaml
batch:
  message_limit: 25
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-base" {
		t.Errorf("BotToken = %q, want included value", cfg.Slack.BotToken)
	}
	if cfg.Batch.MessageLimit != 25 {
		t.Errorf("MessageLimit = %d, want 25 from the including file", cfg.Batch.MessageLimit)
	}
}

func TestLoadMergesIncludeList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tokens.yaml", `
slack:
  mode: single
  bot_token: xoxb-tokens
  app_token: xapp-tokens
summarizer:
  api_key: sk-tokens
`)
	writeFile(t, dir, "tuning.yaml", `
batch:
  message_limit: 30
  buffer_cap: 500
`)
	path := writeFile(t, dir, "paper.yaml", `
$include:
  - tokens.yaml
  - tuning.yaml
batch:
  message_limit: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch.MessageLimit != 5 {
		t.Errorf("MessageLimit = %d, want the including file to win", cfg.Batch.MessageLimit)
	}
	if cfg.Batch.BufferCap != 500 {
		t.Errorf("BufferCap = %d, want 500 to survive the nested merge", cfg.Batch.BufferCap)
	}
	if cfg.Slack.BotToken != "xoxb-tokens" {
		t.Errorf("BotToken = %q, want value from the first include", cfg.Slack.BotToken)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, err := LoadRaw(path); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("err = %v, want include cycle", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.yaml", minimalConfig+`
batcch:
  message_limit: 10
`)

	if _, err := Load(path); err == nil {
		t.Fatal("misspelled section should be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "single mode without bot token",
			mutate:  func(c *Config) { c.Slack.BotToken = "" },
			wantErr: "bot_token",
		},
		{
			name: "multi mode without client secret",
			mutate: func(c *Config) {
				c.Slack.Mode = ModeMulti
				c.Slack.ClientID = "id"
				c.Slack.ClientSecret = ""
			},
			wantErr: "client_id",
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Slack.Mode = "cluster" },
			wantErr: "slack.mode",
		},
		{
			name:    "missing app token",
			mutate:  func(c *Config) { c.Slack.AppToken = "" },
			wantErr: "app_token",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Summarizer.APIKey = "" },
			wantErr: "api_key",
		},
		{
			name:    "bad directory backend",
			mutate:  func(c *Config) { c.Directory.Backend = "redis" },
			wantErr: "directory.backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Slack.Mode = ModeSingle
			cfg.Slack.BotToken = "xoxb-test"
			cfg.Slack.AppToken = "xapp-test"
			cfg.Summarizer.APIKey = "sk-test"
			cfg.Directory.Backend = "memory"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
