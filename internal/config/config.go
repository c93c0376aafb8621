// Package config loads the service configuration from defaults, an optional
// config file, a .env file, environment variables prefixed VOCAB_ and
// command-line flags, in increasing order of precedence.
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/danieldreier/mcp-vocab/internal/srs"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. VOCAB_DATA_FILE.
const EnvPrefix = "VOCAB"

// Storage drivers.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Keys.
const (
	KeyDataFile             = "data_file"
	KeyDriver               = "driver"
	KeyDSN                  = "dsn"
	KeyScheduler            = "scheduler"
	KeyRetryOnMistake       = "retry_on_mistake"
	KeyRetryOnSkip          = "retry_on_skip"
	KeyInactivityThreshold  = "inactivity_threshold"
	KeyExpectedResponseTime = "expected_response_time"
	KeyLogLevel             = "log_level"
	KeyDevelopment          = "development"
	KeyReminderInterval     = "reminder_interval"
	KeyDeleteMinRepetitions = "delete_min_repetitions"
	KeyDeleteMinInterval    = "delete_min_interval"
)

// Config is the resolved configuration.
type Config struct {
	DataFile  string `mapstructure:"data_file"`
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	Scheduler string `mapstructure:"scheduler"`

	RetryOnMistake       bool          `mapstructure:"retry_on_mistake"`
	RetryOnSkip          bool          `mapstructure:"retry_on_skip"`
	InactivityThreshold  time.Duration `mapstructure:"inactivity_threshold"`
	ExpectedResponseTime time.Duration `mapstructure:"expected_response_time"`

	LogLevel    string `mapstructure:"log_level"`
	Development bool   `mapstructure:"development"`

	ReminderInterval time.Duration `mapstructure:"reminder_interval"`

	// A word may only be deleted without force once it has at least this
	// many repetitions and an interval of at least DeleteMinInterval minutes.
	DeleteMinRepetitions int `mapstructure:"delete_min_repetitions"`
	DeleteMinInterval    int `mapstructure:"delete_min_interval"`
}

var defaults = map[string]any{
	KeyDataFile:             "./vocab.json",
	KeyDriver:               DriverJSON,
	KeyDSN:                  "",
	KeyScheduler:            srs.KindAdaptive,
	KeyRetryOnMistake:       true,
	KeyRetryOnSkip:          false,
	KeyInactivityThreshold:  30 * time.Second,
	KeyExpectedResponseTime: 8 * time.Second,
	KeyLogLevel:             "info",
	KeyDevelopment:          false,
	KeyReminderInterval:     time.Hour,
	KeyDeleteMinRepetitions: 5,
	KeyDeleteMinInterval:    30 * 24 * 60,
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds flags named after the keys with dashes, e.g. --data-file.
// Flags that do not exist are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key := range defaults {
		flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "failed to bind flag %s", flag.Name)
		}
	}
	return nil
}

// LoadEnvFile loads variables from a dotenv file without overriding the
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "failed to load env file %s", path)
	}
	return nil
}

// Load reads the optional config file and resolves the configuration.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	cfg.Scheduler = strings.ToLower(strings.TrimSpace(cfg.Scheduler))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverJSON:
		if c.DataFile == "" {
			return errors.New("data_file is required for the json driver")
		}
	case DriverSQLite, DriverPostgres:
		if c.DSN == "" {
			return errors.Errorf("dsn is required for the %s driver", c.Driver)
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Driver)
	}

	switch c.Scheduler {
	case srs.KindBasic, srs.KindAdaptive, srs.KindFSRS:
	default:
		return errors.Errorf("unknown scheduler %q", c.Scheduler)
	}

	if c.InactivityThreshold <= 0 {
		return errors.New("inactivity_threshold must be positive")
	}
	if c.ExpectedResponseTime <= 0 {
		return errors.New("expected_response_time must be positive")
	}
	if c.ReminderInterval <= 0 {
		return errors.New("reminder_interval must be positive")
	}
	if c.DeleteMinRepetitions < 0 || c.DeleteMinInterval < 0 {
		return errors.New("delete thresholds must not be negative")
	}
	return nil
}
