package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "mqtt://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, 30*time.Second, cfg.MQTT.KeepAlive)
	assert.Equal(t, 5*time.Second, cfg.MQTT.PublishTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Throttle.Interval)
	assert.Equal(t, time.Hour, cfg.Visits.Interval)
	assert.Equal(t, time.Duration(0), cfg.Reboot.Interval)
	assert.Equal(t, "exec", cfg.Reboot.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Reboot.Settle)
	assert.Equal(t, "hci0", cfg.Radio.Adapter)
	assert.True(t, cfg.Scan.Duplicates)
	assert.True(t, cfg.Scan.SkipRandomAddresses)
	assert.Equal(t, 256, cfg.Scan.QueueSize)
	assert.Empty(t, cfg.API.Listen)
}

func TestParse_OverridesDefaults(t *testing.T) {
	t.Setenv("BLEPROXY_TEST_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`
hostname: esp-livingroom
log_level: debug
mqtt:
  broker: mqtts://broker.lan:8883
  username: proxy
  password: ${BLEPROXY_TEST_PASSWORD}
filter:
  allow: ["A4:C1:38:00:00:01"]
  rename:
    - "A4:C1:38:00:00:01=kitchen"
throttle:
  interval: 30s
reboot:
  interval: 24h
  strategy: systemd
  unit: bleproxy
scan:
  skip_random_addresses: false
api:
  listen: 127.0.0.1:8089
`))
	require.NoError(t, err)

	assert.Equal(t, "esp-livingroom", cfg.Hostname)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mqtts://broker.lan:8883", cfg.MQTT.Broker)
	assert.Equal(t, "s3cret", cfg.MQTT.Password)
	assert.Equal(t, 30*time.Second, cfg.MQTT.KeepAlive, "untouched fields keep defaults")
	assert.Equal(t, []string{"A4:C1:38:00:00:01=kitchen"}, cfg.Filter.Rename)
	assert.Equal(t, 30*time.Second, cfg.Throttle.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Reboot.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.Reboot.Settle)
	assert.False(t, cfg.Scan.SkipRandomAddresses)
	assert.True(t, cfg.Scan.Duplicates)
	assert.Equal(t, "127.0.0.1:8089", cfg.API.Listen)
	require.NoError(t, cfg.Validate())
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("hostname: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hostname: garage\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "garage", cfg.Hostname)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestFindConfig(t *testing.T) {
	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file not found")
	})

	t.Run("explicit path is returned as is", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		found, err := FindConfig(path)
		require.NoError(t, err)
		assert.Equal(t, path, found)
	})

	t.Run("working directory is searched first", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile("bleproxy.yaml", nil, 0o600))

		found, err := FindConfig("")
		require.NoError(t, err)
		assert.Equal(t, "bleproxy.yaml", found)
	})
}

func TestDefaultSearchPaths(t *testing.T) {
	paths := DefaultSearchPaths()

	require.NotEmpty(t, paths)
	assert.Equal(t, "bleproxy.yaml", paths[0])
	assert.Equal(t, "/etc/bleproxy/bleproxy.yaml", paths[len(paths)-1])
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Hostname = "esp-livingroom"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with hostname", mutate: func(*Config) {}},
		{name: "missing hostname", mutate: func(c *Config) { c.Hostname = "" }, wantErr: "hostname is required"},
		{name: "wildcard in hostname", mutate: func(c *Config) { c.Hostname = "a/#" }, wantErr: "must not contain"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "missing broker", mutate: func(c *Config) { c.MQTT.Broker = "" }, wantErr: "mqtt.broker is required"},
		{name: "rename without separator", mutate: func(c *Config) { c.Filter.Rename = []string{"A4:C1:38:00:00:01"} }, wantErr: "filter.rename"},
		{name: "rename alias with topic separator", mutate: func(c *Config) { c.Filter.Rename = []string{"A4:C1:38:00:00:01=kitchen/fridge"} }, wantErr: "must not contain"},
		{name: "rename with empty alias", mutate: func(c *Config) { c.Filter.Rename = []string{"A4:C1:38:00:00:01="} }, wantErr: "filter.rename"},
		{name: "unknown strategy", mutate: func(c *Config) { c.Reboot.Strategy = "reboot" }, wantErr: "reboot.strategy"},
		{name: "systemd without unit", mutate: func(c *Config) { c.Reboot.Strategy = "systemd" }, wantErr: "reboot.unit is required"},
		{name: "negative throttle", mutate: func(c *Config) { c.Throttle.Interval = -time.Second }, wantErr: "throttle.interval must not be negative"},
		{name: "negative reboot", mutate: func(c *Config) { c.Reboot.Interval = -time.Hour }, wantErr: "reboot.interval must not be negative"},
		{name: "zero visits interval", mutate: func(c *Config) { c.Visits.Interval = 0 }, wantErr: "visits.interval must be positive"},
		{name: "zero queue", mutate: func(c *Config) { c.Scan.QueueSize = 0 }, wantErr: "scan.queue_size must be positive"},
		{name: "zero throttle is allowed", mutate: func(c *Config) { c.Throttle.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reboot.Strategy = "bogus"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hostname is required")
	assert.Contains(t, err.Error(), "reboot.strategy")
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "unknown level falls back to info", logLevel: "", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
