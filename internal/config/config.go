package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models reforesta.yml.
type Config struct {
	Auth struct {
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
		AdminSignupCode string `yaml:"admin_signup_code"`
	} `yaml:"auth"`
	Registration struct {
		MinAge int `yaml:"min_age"`
		MaxAge int `yaml:"max_age"`
	} `yaml:"registration"`
	Donations struct {
		Currencies []string `yaml:"currencies"`
	} `yaml:"donations"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes an external consumer of the event feed.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run refo config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
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
	if c.Registration.MinAge < 0 || c.Registration.MaxAge < 0 {
		return fmt.Errorf("config.registration ages must be non-negative")
	}
	if c.Registration.MinAge > 0 && c.Registration.MaxAge > 0 && c.Registration.MinAge > c.Registration.MaxAge {
		return fmt.Errorf("config.registration.min_age exceeds max_age")
	}
	if c.Auth.TokenTTLMinutes < 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must be non-negative")
	}
	for _, cur := range c.Donations.Currencies {
		if len(cur) != 3 {
			return fmt.Errorf("donation currency %q must be a 3-letter code", cur)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reforesta.yml")
}

// MinAge returns the configured minimum volunteer age.
func (c *Config) MinAge() int {
	if c.Registration.MinAge == 0 {
		return 16
	}
	return c.Registration.MinAge
}

// MaxAge returns the configured maximum volunteer age.
func (c *Config) MaxAge() int {
	if c.Registration.MaxAge == 0 {
		return 100
	}
	return c.Registration.MaxAge
}

// TokenTTLMinutes returns the configured session token lifetime.
func (c *Config) TokenTTLMinutes() int {
	if c.Auth.TokenTTLMinutes == 0 {
		return 12 * 60
	}
	return c.Auth.TokenTTLMinutes
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
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

const defaultTemplate = `auth:
  jwt_secret: ""
  token_ttl_minutes: 720
  admin_signup_code: ""

registration:
  min_age: 16
  max_age: 100

donations:
  currencies: [EUR, USD]

webhooks: []
`
