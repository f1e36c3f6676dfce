package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models wayfinder.yml.
type Config struct {
	Oracle struct {
		Default   string           `yaml:"default"`
		Providers []ProviderConfig `yaml:"providers"`
	} `yaml:"oracle"`
	Repair struct {
		MaxIterations     int `yaml:"max_iterations"`
		RetryPauseSeconds int `yaml:"retry_pause_seconds"`
	} `yaml:"repair"`
	Tasks struct {
		SweepMaxAgeSeconds int `yaml:"sweep_max_age_seconds"`
	} `yaml:"tasks"`
	Server struct {
		Addr   string `yaml:"addr"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`
}

type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	KeyEnv  string `yaml:"key_env"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with wf init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when no config file exists.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Repair.MaxIterations < 1 {
		return fmt.Errorf("config.repair.max_iterations must be at least 1")
	}
	if c.Repair.RetryPauseSeconds < 0 {
		return fmt.Errorf("config.repair.retry_pause_seconds cannot be negative")
	}
	if c.Tasks.SweepMaxAgeSeconds < 0 {
		return fmt.Errorf("config.tasks.sweep_max_age_seconds cannot be negative")
	}
	seen := map[string]bool{}
	for _, p := range c.Oracle.Providers {
		if p.Name == "" {
			return fmt.Errorf("config.oracle.providers contains an unnamed provider")
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %s is defined twice", p.Name)
		}
		seen[p.Name] = true
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s has no base_url", p.Name)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s has no model", p.Name)
		}
	}
	if c.Oracle.Default != "" && len(c.Oracle.Providers) > 0 && !seen[c.Oracle.Default] {
		return fmt.Errorf("default provider %s is not defined", c.Oracle.Default)
	}
	return nil
}

// Provider returns the named provider config, or the default when name
// is empty.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	if name == "" {
		name = c.Oracle.Default
	}
	for _, p := range c.Oracle.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "wayfinder.yml")
}

// Default returns the built-in default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `oracle:
  default: openai
  providers:
    - name: openai
      base_url: https://api.openai.com/v1
      model: gpt-4o-mini
      key_env: OPENAI_API_KEY
    - name: deepseek
      base_url: https://api.deepseek.com/v1
      model: deepseek-chat
      key_env: DEEPSEEK_API_KEY
    - name: ollama
      base_url: http://localhost:11434/v1
      model: qwen2.5-coder

repair:
  max_iterations: 5
  retry_pause_seconds: 2

tasks:
  sweep_max_age_seconds: 3600

server:
  addr: 127.0.0.1:8700
`
