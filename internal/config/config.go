package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"reportline/internal/cadence"
)

// Config models reportline.yml.
type Config struct {
	Workspace struct {
		Name string `yaml:"name"`
		Kind string `yaml:"kind"`
	} `yaml:"workspace"`
	Schedules struct {
		Presets map[string]SchedulePreset `yaml:"presets"`
		Default string                    `yaml:"default"`
	} `yaml:"schedules"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// SchedulePreset is a named reporting cadence that can be applied to a
// link without spelling out the interval and anchor day each time.
type SchedulePreset struct {
	Description string `yaml:"description"`
	Interval    string `yaml:"interval"`
	DayOfWeek   *int   `yaml:"day_of_week"`
	DayOfMonth  *int   `yaml:"day_of_month"`
}

// Schedule converts the preset into a cadence schedule.
func (p SchedulePreset) Schedule() cadence.Schedule {
	return cadence.Schedule{
		Interval:   cadence.Interval(p.Interval),
		DayOfWeek:  p.DayOfWeek,
		DayOfMonth: p.DayOfMonth,
	}
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with rl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.Kind != "" && c.Workspace.Kind != "reporting-workspace" {
		return fmt.Errorf("config.workspace.kind must be 'reporting-workspace'")
	}
	for name, preset := range c.Schedules.Presets {
		if name == "" {
			return fmt.Errorf("config.schedules.presets contains empty preset name")
		}
		if err := preset.Schedule().Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
	}
	if c.Schedules.Default != "" {
		if _, ok := c.Schedules.Presets[c.Schedules.Default]; !ok {
			return fmt.Errorf("default preset %s not defined", c.Schedules.Default)
		}
	}
	return nil
}

// Preset looks up a named preset.
func (c *Config) Preset(name string) (SchedulePreset, error) {
	p, ok := c.Schedules.Presets[name]
	if !ok {
		return SchedulePreset{}, fmt.Errorf("schedule preset %s not defined", name)
	}
	return p, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reportline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// Default returns the default Config struct for a workspace.
func Default(name string) *Config {
	cfg, err := FromYAML([]byte(fmt.Sprintf(defaultTemplate, name)))
	if err != nil {
		panic(err)
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  name: %s
  kind: reporting-workspace

schedules:
  presets:
    daily:
      description: "Report every day by end of day"
      interval: daily

    weekly.monday:
      description: "Report every Monday"
      interval: weekly
      day_of_week: 1

    weekly.friday:
      description: "Report every Friday"
      interval: weekly
      day_of_week: 5

    monthly.first:
      description: "Report by the 1st of each month"
      interval: monthly
      day_of_month: 1

    monthly.last:
      description: "Report by month end"
      interval: monthly
      day_of_month: 31

  default: weekly.friday

server:
  addr: ":8787"
`
