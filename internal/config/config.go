package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Defaults applied when a field is missing from the config file.
const (
	DefaultGatewayURL     = "http://localhost:8888"
	DefaultKernelName     = "python"
	DefaultUsername       = "code-interpreter"
	DefaultTimeoutSeconds = 60
	DefaultDataDir        = "data"
)

// DefaultKernelInitCode runs once after kernel creation, before user
// code. Sets up CJK-capable matplotlib fonts so chart labels render.
const DefaultKernelInitCode = `
import os
import sys
import matplotlib.pyplot as plt

font_names = [
    'WenQuanYi Micro Hei',
    'Noto Sans CJK SC',
    'SimHei', 'Microsoft YaHei', 'PingFang SC',
    'Source Han Sans SC', 'Arial Unicode MS'
]
plt.rcParams['font.sans-serif'] = font_names
plt.rcParams['axes.unicode_minus'] = False

print("Kernel initialized successfully")
print(f"Python version: {sys.version}")
print(f"Working directory: {os.getcwd()}")`

// Config represents application configuration
type Config struct {
	GatewayURL     string `json:"gateway_url"`
	Token          string `json:"token,omitempty"`
	KernelName     string `json:"kernel_name"`
	Username       string `json:"username"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	DataDir        string `json:"data_dir"`
	KernelInitCode string `json:"kernel_init_code,omitempty"`

	// Extensions tracked by the workspace snapshot diff (lowercase,
	// with leading dot).
	TrackedExtensions []string `json:"tracked_extensions"`

	// Keyword sets for the output-file tracking heuristic. Tracking is
	// enabled when the submitted code contains at least one keyword
	// from each set. String-contains matching, not parsing.
	FormatKeywords []string `json:"format_keywords"`
	SaveKeywords   []string `json:"save_keywords"`

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path,omitempty"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		GatewayURL:        DefaultGatewayURL,
		KernelName:        DefaultKernelName,
		Username:          DefaultUsername,
		TimeoutSeconds:    DefaultTimeoutSeconds,
		DataDir:           DefaultDataDir,
		KernelInitCode:    DefaultKernelInitCode,
		TrackedExtensions: []string{".xlsx", ".xls", ".csv", ".pdf"},
		FormatKeywords:    []string{"excel", "csv", "pdf", ".xlsx", ".xls", ".csv", ".pdf"},
		SaveKeywords:      []string{"save", "export", "write", "to_excel", "to_csv", "savefig"},
		LogLevel:          "info",
	}
}

// Load reads configuration from path. A missing file is not an error;
// defaults are returned. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) normalize() {
	if c.GatewayURL == "" {
		c.GatewayURL = DefaultGatewayURL
	}
	if c.KernelName == "" {
		c.KernelName = DefaultKernelName
	}
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if len(c.TrackedExtensions) == 0 {
		c.TrackedExtensions = DefaultConfig().TrackedExtensions
	}
	if len(c.FormatKeywords) == 0 {
		c.FormatKeywords = DefaultConfig().FormatKeywords
	}
	if len(c.SaveKeywords) == 0 {
		c.SaveKeywords = DefaultConfig().SaveKeywords
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KERNELRUNNER_GATEWAY_URL"); v != "" {
		c.GatewayURL = v
	}
	if v := os.Getenv("KERNELRUNNER_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("KERNELRUNNER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KERNELRUNNER_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.TimeoutSeconds = secs
		}
	}
}
