// Package config loads the peripheral configuration from an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults match the Raspberry Pi field deployment.
const (
	DefaultAdapter         = "hci0"
	DefaultName            = "GlycoIQ"
	DefaultPython          = "/home/yhnx/tflite_env/bin/python"
	DefaultScript          = "/home/yhnx/Documents/bluetooth_server/device_control.py"
	DefaultWorkDir         = "/home/yhnx/Documents/bluetooth_server"
	DefaultDispatchTimeout = 30 * time.Second
	DefaultAdAttempts      = 3
	DefaultAdBackoff       = 1 * time.Second
	DefaultStatusAddr      = "127.0.0.1:6006"
)

// Config holds all runtime settings.
type Config struct {
	Adapter string `yaml:"adapter"`
	Name    string `yaml:"name"`

	Python          string        `yaml:"python"`
	Script          string        `yaml:"script"`
	WorkDir         string        `yaml:"workdir"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	AdAttempts int           `yaml:"ad_attempts"`
	AdBackoff  time.Duration `yaml:"ad_backoff"`

	// ResetRadio runs "hciconfig <adapter> reset" and "piscan" during bootstrap.
	ResetRadio bool `yaml:"reset_radio"`

	// StatusAddr is the listen address of the HTTP status endpoint; empty disables it.
	StatusAddr string `yaml:"status_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Adapter:         DefaultAdapter,
		Name:            DefaultName,
		Python:          DefaultPython,
		Script:          DefaultScript,
		WorkDir:         DefaultWorkDir,
		DispatchTimeout: DefaultDispatchTimeout,
		AdAttempts:      DefaultAdAttempts,
		AdBackoff:       DefaultAdBackoff,
		ResetRadio:      true,
		StatusAddr:      DefaultStatusAddr,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// GLYCOIQ_CONFIG (if set), then individual environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GLYCOIQ_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Adapter = getEnv("GLYCOIQ_ADAPTER", cfg.Adapter)
	cfg.Name = getEnv("GLYCOIQ_NAME", cfg.Name)
	cfg.Python = getEnv("GLYCOIQ_PYTHON", cfg.Python)
	cfg.Script = getEnv("GLYCOIQ_SCRIPT", cfg.Script)
	cfg.WorkDir = getEnv("GLYCOIQ_WORKDIR", cfg.WorkDir)
	cfg.DispatchTimeout = getEnvDuration("GLYCOIQ_DISPATCH_TIMEOUT", cfg.DispatchTimeout)
	cfg.AdAttempts = getEnvInt("GLYCOIQ_AD_ATTEMPTS", cfg.AdAttempts)
	cfg.AdBackoff = getEnvDuration("GLYCOIQ_AD_BACKOFF", cfg.AdBackoff)
	cfg.ResetRadio = getEnvBool("GLYCOIQ_RESET_RADIO", cfg.ResetRadio)
	cfg.LogLevel = getEnv("GLYCOIQ_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("GLYCOIQ_LOG_FORMAT", cfg.LogFormat)

	// An explicitly empty GLYCOIQ_STATUS_ADDR disables the endpoint.
	if v, ok := os.LookupEnv("GLYCOIQ_STATUS_ADDR"); ok {
		cfg.StatusAddr = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values the peripheral cannot run with.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if c.Script == "" {
		return fmt.Errorf("script must not be empty")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch_timeout must be positive, got %v", c.DispatchTimeout)
	}
	if c.AdAttempts < 1 {
		return fmt.Errorf("ad_attempts must be at least 1, got %d", c.AdAttempts)
	}
	if c.AdBackoff < 0 {
		return fmt.Errorf("ad_backoff must not be negative, got %v", c.AdBackoff)
	}
	adapter, err := sanitizeAdapterName(c.Adapter)
	if err != nil {
		return err
	}
	c.Adapter = adapter
	return nil
}

// ScriptName is the base name of the measurement script, used in error payloads.
func (c *Config) ScriptName() string {
	return filepath.Base(c.Script)
}

// sanitizeAdapterName validates the adapter name to prevent path traversal
// in the BlueZ object path.
func sanitizeAdapterName(adapter string) (string, error) {
	if adapter == "" {
		return DefaultAdapter, nil
	}
	clean := filepath.Base(adapter)
	for _, c := range clean {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
			return "", fmt.Errorf("invalid adapter name: %s", adapter)
		}
	}
	return clean, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go duration strings ("30s") or bare seconds ("30").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
