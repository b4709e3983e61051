package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate keeps the search path and environment from leaking into a test.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(EnvConfig, "")
	t.Chdir(dir)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "panic", cfg.LogLevel)
	assert.Equal(t, "hci0", cfg.Adapter)
	assert.Equal(t, 6*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, uint32(1024), cfg.QueueCapacity)
	assert.Equal(t, uint32(256), cfg.TaskCapacity)
	assert.Equal(t, 50*time.Millisecond, cfg.UnlockSettle)
	assert.Equal(t, 30*time.Millisecond, cfg.ConfigSpacing)
	assert.Equal(t, 60*time.Millisecond, cfg.RegisterSpacing)
	assert.Equal(t, 100*time.Millisecond, cfg.SetnameSettle)
	assert.Equal(t, FormatText, cfg.OutputFormat)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, uint32(3), cfg.Breaker.MaxFailures)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Timeout)
	assert.NoError(t, cfg.Validate())
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
		{name: "falls back to panic on garbage", logLevel: "loud", expected: logrus.PanicLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "json output", mutate: func(c *Config) { c.OutputFormat = FormatJSON }},
		{name: "xml output", mutate: func(c *Config) { c.OutputFormat = "xml" }, wantErr: "invalid output format"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "chatty" }, wantErr: "invalid log level"},
		{name: "negative timeout", mutate: func(c *Config) { c.ScanTimeout = -time.Second }, wantErr: "must not be negative"},
		{name: "negative print rate", mutate: func(c *Config) { c.PrintRate = -1 }, wantErr: "invalid print rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
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

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Source())
	assert.Equal(t, 6*time.Second, cfg.ScanTimeout)
	assert.Equal(t, FormatText, cfg.OutputFormat)
}

func TestLoad_PrecedenceFileEnvFlag(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "witctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scan_timeout: 3s
target: WT901BLE68
output_format: json
breaker:
  max_failures: 7
serial:
  port: /dev/ttyUSB0
`), 0o600))

	t.Setenv("WITCTL_CONNECT_TIMEOUT", "12s")
	t.Setenv("WITCTL_BREAKER_TIMEOUT", "2s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("target", "", "")
	flags.Bool("legacy", false, "")
	require.NoError(t, flags.Parse([]string{"--target", "AA:BB:CC:DD:EE:FF", "--legacy"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Source())
	assert.Equal(t, 3*time.Second, cfg.ScanTimeout, "file overrides default")
	assert.Equal(t, 12*time.Second, cfg.ConnectTimeout, "env overrides default")
	assert.Equal(t, 2*time.Second, cfg.Breaker.Timeout, "nested env key")
	assert.Equal(t, uint32(7), cfg.Breaker.MaxFailures)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Target, "flag overrides file")
	assert.True(t, cfg.LegacyFrames)
	assert.Equal(t, FormatJSON, cfg.OutputFormat)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
}

func TestLoad_UnsetFlagDoesNotOverrideFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "witctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target: WT901\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("target", "", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "WT901", cfg.Target)
}

func TestLoad_EnvConfigPath(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("print_rate: 5\n"), 0o600))
	t.Setenv(EnvConfig, path)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source())
	assert.InDelta(t, 5.0, cfg.PrintRate, 1e-9)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "witctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: table\n"), 0o600))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	isolate(t)

	cfg := DefaultConfig()
	cfg.Target = "WT901BLE68"
	out, err := cfg.YAML()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "6s", doc["scan_timeout"])
	assert.Equal(t, "50ms", doc["unlock_settle"])

	path := filepath.Join(t.TempDir(), "witctl.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o600))
	loaded, err := Load(path, nil)
	require.NoError(t, err)
	loaded.source = ""
	assert.Equal(t, cfg, loaded)
}

func TestConfig_SensorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LegacyFrames = true
	cfg.SetnameSettle = 250 * time.Millisecond

	sc := cfg.SensorConfig()
	assert.True(t, sc.LegacyFrames)
	assert.Equal(t, 250*time.Millisecond, sc.NameSettle)
	assert.Equal(t, cfg.ScanTimeout, sc.ScanTimeout)
	assert.Equal(t, cfg.QueueCapacity, sc.QueueCapacity)
	assert.Equal(t, 10*time.Millisecond, sc.NameSaveDelay)
}
