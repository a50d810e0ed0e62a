package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models intraops.yml. Boost weights feed the read-time priority score;
// notify settings apply to the dispatcher only, never to the primary mutation.
type Config struct {
	Boost struct {
		ImpactWeight  int `yaml:"impact_weight"`
		UrgencyWeight int `yaml:"urgency_weight"`
		OverdueScore  int `yaml:"overdue_score"`
		DueSoonDays   int `yaml:"due_soon_days"`
		DueSoonScore  int `yaml:"due_soon_score"`
		DueNearDays   int `yaml:"due_near_days"`
		DueNearScore  int `yaml:"due_near_score"`
		ManualScore   int `yaml:"manual_score"`
	} `yaml:"boost"`
	Notify struct {
		Channels       []string `yaml:"channels"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		LinkBase       string   `yaml:"link_base"`
	} `yaml:"notify"`
	Storage struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	b := c.Boost
	if b.ImpactWeight <= 0 || b.UrgencyWeight <= 0 {
		return fmt.Errorf("boost.impact_weight and boost.urgency_weight must be positive")
	}
	if b.ManualScore <= b.ImpactWeight*3+b.UrgencyWeight*3+b.OverdueScore {
		return fmt.Errorf("boost.manual_score must exceed the maximum non-boosted score")
	}
	if b.OverdueScore < b.DueSoonScore || b.DueSoonScore < b.DueNearScore || b.DueNearScore < 0 {
		return fmt.Errorf("boost due-date scores must be ordered overdue >= due_soon >= due_near >= 0")
	}
	if b.DueSoonDays <= 0 || b.DueNearDays < b.DueSoonDays {
		return fmt.Errorf("boost.due_near_days must be >= boost.due_soon_days > 0")
	}
	if c.Notify.TimeoutSeconds <= 0 {
		return fmt.Errorf("notify.timeout_seconds must be positive")
	}
	if len(c.Notify.Channels) == 0 {
		return fmt.Errorf("notify.channels is required")
	}
	for _, ch := range c.Notify.Channels {
		switch ch {
		case "app", "push", "email":
		default:
			return fmt.Errorf("unknown notify channel %s", ch)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "intraops.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
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

const defaultTemplate = `boost:
  impact_weight: 3
  urgency_weight: 2
  overdue_score: 6
  due_soon_days: 3
  due_soon_score: 4
  due_near_days: 14
  due_near_score: 2
  manual_score: 1000

notify:
  channels: [app, push]
  timeout_seconds: 5
  link_base: ""

storage:
  root: ""
`
