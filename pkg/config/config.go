// Package config loads witctl settings from defaults, a YAML file, the
// environment and command line flags, in increasing order of precedence.
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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/internal/transport"
	"gopkg.in/yaml.v3"
)

const (
	AppName    = "witctl"
	ConfigName = AppName
	EnvPrefix  = "WITCTL"
	// EnvConfig names a config file when --config is not given.
	EnvConfig = EnvPrefix + "_CONFIG"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// SerialConfig configures the UART monitor
type SerialConfig struct {
	Port        string        `mapstructure:"port" yaml:"port" json:"port"`
	Baud        int           `mapstructure:"baud" yaml:"baud" json:"baud" default:"115200"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout" default:"500ms"`
}

// Config holds application configuration
type Config struct {
	LogLevel        string                  `mapstructure:"log_level" yaml:"log_level" json:"log_level" default:"panic"`
	Adapter         string                  `mapstructure:"adapter" yaml:"adapter" json:"adapter" default:"hci0"`
	Target          string                  `mapstructure:"target" yaml:"target" json:"target"`
	ScanTimeout     time.Duration           `mapstructure:"scan_timeout" yaml:"scan_timeout" json:"scan_timeout" default:"6s"`
	ConnectTimeout  time.Duration           `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	QueueCapacity   uint32                  `mapstructure:"queue_capacity" yaml:"queue_capacity" json:"queue_capacity" default:"1024"`
	TaskCapacity    uint32                  `mapstructure:"task_capacity" yaml:"task_capacity" json:"task_capacity" default:"256"`
	UnlockSettle    time.Duration           `mapstructure:"unlock_settle" yaml:"unlock_settle" json:"unlock_settle" default:"50ms"`
	ConfigSpacing   time.Duration           `mapstructure:"config_spacing" yaml:"config_spacing" json:"config_spacing" default:"30ms"`
	RegisterSpacing time.Duration           `mapstructure:"register_spacing" yaml:"register_spacing" json:"register_spacing" default:"60ms"`
	SetnameSettle   time.Duration           `mapstructure:"setname_settle" yaml:"setname_settle" json:"setname_settle" default:"100ms"`
	LegacyFrames    bool                    `mapstructure:"legacy_frames" yaml:"legacy_frames" json:"legacy_frames" default:"false"`
	OutputFormat    string                  `mapstructure:"output_format" yaml:"output_format" json:"output_format" default:"text"`
	PrintRate       float64                 `mapstructure:"print_rate" yaml:"print_rate" json:"print_rate" default:"0"`
	Serial          SerialConfig            `mapstructure:"serial" yaml:"serial" json:"serial"`
	Breaker         transport.BreakerConfig `mapstructure:"breaker" yaml:"breaker" json:"breaker"`

	source string
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Source returns the config file that was read, or "" when none was found.
func (c *Config) Source() string {
	return c.source
}

// flagKeys maps config keys to the persistent flags that override them.
var flagKeys = map[string]string{
	"log_level":       "log-level",
	"adapter":         "adapter",
	"target":          "target",
	"scan_timeout":    "scan-timeout",
	"connect_timeout": "connect-timeout",
	"legacy_frames":   "legacy",
	"output_format":   "format",
	"print_rate":      "print-rate",
	"serial.port":     "port",
	"serial.baud":     "baud",
}

// Load resolves the configuration. path overrides the search; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	switch {
	case path != "":
		v.SetConfigFile(path)
	case os.Getenv(EnvConfig) != "":
		v.SetConfigFile(os.Getenv(EnvConfig))
	default:
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, dir := range SearchPaths() {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	source := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		source = v.ConfigFileUsed()
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.source = source

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths lists the directories searched for witctl.yaml.
func SearchPaths() []string {
	paths := make([]string, 0, 3)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", AppName))
	}
	return append(paths, "/etc/"+AppName, "./")
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("adapter", d.Adapter)
	v.SetDefault("target", d.Target)
	v.SetDefault("scan_timeout", d.ScanTimeout)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("queue_capacity", d.QueueCapacity)
	v.SetDefault("task_capacity", d.TaskCapacity)
	v.SetDefault("unlock_settle", d.UnlockSettle)
	v.SetDefault("config_spacing", d.ConfigSpacing)
	v.SetDefault("register_spacing", d.RegisterSpacing)
	v.SetDefault("setname_settle", d.SetnameSettle)
	v.SetDefault("legacy_frames", d.LegacyFrames)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("print_rate", d.PrintRate)
	v.SetDefault("serial.port", d.Serial.Port)
	v.SetDefault("serial.baud", d.Serial.Baud)
	v.SetDefault("serial.read_timeout", d.Serial.ReadTimeout)
	v.SetDefault("breaker.max_failures", d.Breaker.MaxFailures)
	v.SetDefault("breaker.timeout", d.Breaker.Timeout)
	v.SetDefault("breaker.interval", d.Breaker.Interval)
}

// Validate checks values that cannot be expressed by the types alone.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.OutputFormat {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid output format %q (valid: %s, %s)", c.OutputFormat, FormatText, FormatJSON)
	}
	if c.ScanTimeout < 0 || c.ConnectTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.PrintRate < 0 {
		return fmt.Errorf("invalid print rate %v", c.PrintRate)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.PanicLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// SensorConfig converts the timing and decode settings for package sensor.
func (c *Config) SensorConfig() sensor.Config {
	return sensor.Config{
		ScanTimeout:     c.ScanTimeout,
		ConnectTimeout:  c.ConnectTimeout,
		UnlockSettle:    c.UnlockSettle,
		ConfigSpacing:   c.ConfigSpacing,
		RegisterSpacing: c.RegisterSpacing,
		NameSettle:      c.SetnameSettle,
		NameSaveDelay:   sensor.DefaultConfig().NameSaveDelay,
		LegacyFrames:    c.LegacyFrames,
		QueueCapacity:   c.QueueCapacity,
	}
}

// YAML renders the effective configuration with durations as strings.
func (c *Config) YAML() ([]byte, error) {
	doc := map[string]any{
		"log_level":        c.LogLevel,
		"adapter":          c.Adapter,
		"target":           c.Target,
		"scan_timeout":     c.ScanTimeout.String(),
		"connect_timeout":  c.ConnectTimeout.String(),
		"queue_capacity":   c.QueueCapacity,
		"task_capacity":    c.TaskCapacity,
		"unlock_settle":    c.UnlockSettle.String(),
		"config_spacing":   c.ConfigSpacing.String(),
		"register_spacing": c.RegisterSpacing.String(),
		"setname_settle":   c.SetnameSettle.String(),
		"legacy_frames":    c.LegacyFrames,
		"output_format":    c.OutputFormat,
		"print_rate":       c.PrintRate,
		"serial": map[string]any{
			"port":         c.Serial.Port,
			"baud":         c.Serial.Baud,
			"read_timeout": c.Serial.ReadTimeout.String(),
		},
		"breaker": map[string]any{
			"max_failures": c.Breaker.MaxFailures,
			"timeout":      c.Breaker.Timeout.String(),
			"interval":     c.Breaker.Interval.String(),
		},
	}
	return yaml.Marshal(doc)
}
