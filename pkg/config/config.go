// Package config loads the bleproxy YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/proxy"
	"github.com/srg/bleproxy/internal/restart"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Hostname string         `yaml:"hostname"`
	LogLevel string         `yaml:"log_level" default:"info"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Filter   FilterConfig   `yaml:"filter"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Visits   VisitsConfig   `yaml:"visits"`
	Reboot   RebootConfig   `yaml:"reboot"`
	Radio    RadioConfig    `yaml:"radio"`
	Scan     ScanConfig     `yaml:"scan"`
	API      APIConfig      `yaml:"api"`
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker" default:"mqtt://localhost:1883"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ClientID       string        `yaml:"client_id"`
	KeepAlive      time.Duration `yaml:"keep_alive" default:"30s"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// FilterConfig lists MAC addresses. Rename entries are "<mac>=<alias>".
type FilterConfig struct {
	Allow  []string `yaml:"allow"`
	Deny   []string `yaml:"deny"`
	Rename []string `yaml:"rename"`
}

type ThrottleConfig struct {
	Interval time.Duration `yaml:"interval" default:"5m"`
}

type VisitsConfig struct {
	Interval time.Duration `yaml:"interval" default:"1h"`
}

// RebootConfig schedules a restart Interval after start-up; zero disables it.
type RebootConfig struct {
	Interval time.Duration `yaml:"interval"`
	Strategy string        `yaml:"strategy" default:"exec"`
	Unit     string        `yaml:"unit"`
	Settle   time.Duration `yaml:"settle" default:"500ms"`
}

type RadioConfig struct {
	Adapter string `yaml:"adapter" default:"hci0"`
}

type ScanConfig struct {
	Duplicates          bool `yaml:"duplicates" default:"true"`
	SkipRandomAddresses bool `yaml:"skip_random_addresses" default:"true"`
	QueueSize           int  `yaml:"queue_size" default:"256"`
}

// APIConfig enables the HTTP action API when Listen is set.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given.
func DefaultSearchPaths() []string {
	paths := []string{"bleproxy.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "bleproxy", "bleproxy.yaml"))
	}
	return append(paths, "/etc/bleproxy/bleproxy.yaml")
}

// FindConfig locates a config file. An explicit path must exist.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %s)", strings.Join(DefaultSearchPaths(), ", "))
}

// Load reads a YAML file, expanding ${VAR} references, on top of the defaults.
// The result is not validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Hostname == "":
		errs = append(errs, errors.New("hostname is required"))
	case strings.ContainsAny(c.Hostname, "/+#"):
		errs = append(errs, fmt.Errorf("hostname %q must not contain '/', '+' or '#'", c.Hostname))
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}

	for _, entry := range c.Filter.Rename {
		if _, _, err := proxy.ParseRename(entry); err != nil {
			errs = append(errs, fmt.Errorf("filter.rename: %w", err))
		}
	}

	durations := map[string]time.Duration{
		"mqtt.keep_alive":      c.MQTT.KeepAlive,
		"mqtt.publish_timeout": c.MQTT.PublishTimeout,
		"throttle.interval":    c.Throttle.Interval,
		"visits.interval":      c.Visits.Interval,
		"reboot.interval":      c.Reboot.Interval,
		"reboot.settle":        c.Reboot.Settle,
	}
	for _, name := range []string{"mqtt.keep_alive", "mqtt.publish_timeout", "throttle.interval", "visits.interval", "reboot.interval", "reboot.settle"} {
		if durations[name] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Visits.Interval == 0 {
		errs = append(errs, errors.New("visits.interval must be positive"))
	}

	validStrategy := false
	for _, s := range restart.Strategies {
		if c.Reboot.Strategy == s {
			validStrategy = true
		}
	}
	if !validStrategy {
		errs = append(errs, fmt.Errorf("reboot.strategy %q is not one of %s", c.Reboot.Strategy, strings.Join(restart.Strategies, ", ")))
	} else if c.Reboot.Strategy == restart.StrategySystemd && c.Reboot.Unit == "" {
		errs = append(errs, errors.New("reboot.unit is required for the systemd strategy"))
	}

	if c.Scan.QueueSize <= 0 {
		errs = append(errs, errors.New("scan.queue_size must be positive"))
	}

	return errors.Join(errs...)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
