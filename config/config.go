/*
Package config loads the server configuration.

PURPOSE:
  One YAML file plus environment overrides. Every field has a sensible
  default so the server runs with no config at all; a config file adjusts
  what it names and environment variables win over both.

PRECEDENCE (lowest to highest):
  defaults -> YAML file -> environment variables

ENVIRONMENT VARIABLES:
  SHIPMENT_ADDR            Listen address (e.g. ":8080")
  SHIPMENT_DB              SQLite database path (":memory:" supported)
  SHIPMENT_REFERENCE_ZONE  Timezone reminder instants are expressed in
  SHIPMENT_REMINDER_LEAD   Reminder lead duration (e.g. "2h")
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// DB is the SQLite database path.
	DB string `yaml:"db"`

	// ReferenceZone is the IANA timezone reminder fire instants are
	// expressed in.
	ReferenceZone string `yaml:"reference_zone"`

	// ReminderLead is how far before a planned ETD/ETA a reminder fires.
	ReminderLead time.Duration `yaml:"reminder_lead"`

	// AllowedOrigins are the CORS origins the API accepts.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration the server runs with when nothing else
// is specified.
func Default() Config {
	return Config{
		Addr:          ":8080",
		DB:            "shipments.db",
		ReferenceZone: "Asia/Jakarta",
		ReminderLead:  2 * time.Hour,
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:8080",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SHIPMENT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SHIPMENT_DB"); v != "" {
		c.DB = v
	}
	if v := os.Getenv("SHIPMENT_REFERENCE_ZONE"); v != "" {
		c.ReferenceZone = v
	}
	if v := os.Getenv("SHIPMENT_REMINDER_LEAD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ReminderLead = d
		}
	}
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.DB == "" {
		return fmt.Errorf("db must not be empty")
	}
	if _, err := time.LoadLocation(c.ReferenceZone); err != nil {
		return fmt.Errorf("invalid reference_zone %q: %w", c.ReferenceZone, err)
	}
	if c.ReminderLead <= 0 {
		return fmt.Errorf("reminder_lead must be positive")
	}
	return nil
}

// ReferenceLocation resolves the configured reference timezone.
func (c Config) ReferenceLocation() *time.Location {
	loc, err := time.LoadLocation(c.ReferenceZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
