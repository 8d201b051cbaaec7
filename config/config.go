// Package config loads wsp-sniper settings from flags, WSP_* environment
// variables, a config file (.env or any viper format) and defaults, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"wsp-sniper/timing"
)

// EnvPrefix prefixes every environment variable and .env key.
const EnvPrefix = "WSP"

// DefaultEnvFile is read when no config file is given and it exists.
const DefaultEnvFile = ".env"

// DefaultBaseURL is the KBTU bachelor WSP API.
const DefaultBaseURL = "https://wsp2.kbtu.kz/bachelor/api"

// Config holds every recognized setting.
type Config struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	DesiredTimeLocal string `mapstructure:"desired_time_local"`

	RequestDelay     time.Duration `mapstructure:"request_delay"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	OverloadDelay    time.Duration `mapstructure:"overload_delay"`
	ErrorDelay       time.Duration `mapstructure:"error_delay"`
	MaxErrorAttempts int           `mapstructure:"max_error_attempts"`
	MaxRetries       int           `mapstructure:"max_retries"`
	NotOpenMarker    string        `mapstructure:"not_open_marker"`
	AttackTimeout    time.Duration `mapstructure:"attack_timeout"`

	NTPServer  string        `mapstructure:"ntp_server"`
	NTPTimeout time.Duration `mapstructure:"ntp_timeout"`

	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	Proxy         string        `mapstructure:"proxy"`
	ProxyFile     string        `mapstructure:"proxy_file"`
	Fingerprint   bool          `mapstructure:"fingerprint"`
	UserAgentFile string        `mapstructure:"user_agent_file"`
	InsecureTLS   bool          `mapstructure:"insecure_tls"`

	PlanFile    string `mapstructure:"plan_file"`
	SafetyStop  bool   `mapstructure:"safety_stop"`
	ReportFile  string `mapstructure:"report_file"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// Options selects the sources Load reads besides defaults and environment.
type Options struct {
	// ConfigFile is a .env, toml, yaml or json file. Empty means ./.env when
	// present.
	ConfigFile string
	// Flags are bound by key with '_' spelled '-'. Only changed flags count.
	Flags *pflag.FlagSet
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("desired_time_local", "10:00:00.000000")
	v.SetDefault("request_delay", 500*time.Millisecond)
	v.SetDefault("retry_delay", 500*time.Millisecond)
	v.SetDefault("overload_delay", 500*time.Millisecond)
	v.SetDefault("error_delay", 500*time.Millisecond)
	v.SetDefault("max_error_attempts", 3)
	v.SetDefault("max_retries", 3)
	v.SetDefault("not_open_marker", "Регистрация не началась")
	v.SetDefault("attack_timeout", 10*time.Minute)
	v.SetDefault("ntp_server", timing.DefaultNTPServer)
	v.SetDefault("ntp_timeout", 5*time.Second)
	v.SetDefault("http_timeout", 20*time.Second)
	v.SetDefault("proxy", "")
	v.SetDefault("proxy_file", "")
	v.SetDefault("fingerprint", false)
	v.SetDefault("user_agent_file", "")
	v.SetDefault("insecure_tls", true)
	v.SetDefault("plan_file", "saved_plan.json")
	v.SetDefault("safety_stop", true)
	v.SetDefault("report_file", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "logs/wsp_sniper.log")
}

// Keys lists every recognized configuration key.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// EnvVar returns the environment variable bound to key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// FlagName returns the flag name bound to key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	file := opts.ConfigFile
	if file == "" {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			file = DefaultEnvFile
		}
	}
	if file != "" {
		if err := readFile(v, file); err != nil {
			return nil, err
		}
	}

	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key, EnvVar(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
		if opts.Flags != nil {
			if f := opts.Flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// readFile loads a config file into v below env and flags. Dotenv files use
// WSP_-prefixed keys, other formats use plain keys.
func readFile(v *viper.Viper, path string) error {
	fv := viper.New()
	fv.SetConfigFile(path)
	dotenv := isDotEnv(path)
	if dotenv {
		fv.SetConfigType("env")
	}
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	prefix := strings.ToLower(EnvPrefix) + "_"
	for _, key := range fv.AllKeys() {
		name := key
		if dotenv {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			name = strings.TrimPrefix(key, prefix)
		}
		// A file value is a default for env and flags to override.
		v.SetDefault(name, fv.Get(key))
	}
	return nil
}

func isDotEnv(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasSuffix(base, ".env") || strings.HasPrefix(base, ".env.")
}

// secondsHookFunc lets durations be written as plain seconds ("0.2", 0.5, 3)
// as well as Go durations ("200ms").
func secondsHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType {
			return data, nil
		}
		switch d := data.(type) {
		case string:
			if secs, err := strconv.ParseFloat(strings.TrimSpace(d), 64); err == nil {
				return seconds(secs), nil
			}
		case float64:
			return seconds(d), nil
		case int:
			return time.Duration(d) * time.Second, nil
		case int64:
			return time.Duration(d) * time.Second, nil
		}
		return data, nil
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Validate checks values that would make a run meaningless.
func (c *Config) Validate() error {
	if _, err := timing.ParseTimeOfDay(c.DesiredTimeLocal); err != nil {
		return ValidationError{Field: "desired_time_local", Value: c.DesiredTimeLocal, Message: "must be HH:MM:SS or HH:MM:SS.ffffff"}
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"request_delay", c.RequestDelay},
		{"retry_delay", c.RetryDelay},
		{"overload_delay", c.OverloadDelay},
		{"error_delay", c.ErrorDelay},
		{"attack_timeout", c.AttackTimeout},
		{"ntp_timeout", c.NTPTimeout},
		{"http_timeout", c.HTTPTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return ValidationError{Field: d.field, Value: d.value, Message: "must be non-negative"}
		}
	}

	if c.MaxErrorAttempts < 1 {
		return ValidationError{Field: "max_error_attempts", Value: c.MaxErrorAttempts, Message: "must be at least 1"}
	}
	if c.MaxRetries < 1 {
		return ValidationError{Field: "max_retries", Value: c.MaxRetries, Message: "must be at least 1"}
	}
	if strings.TrimSpace(c.NotOpenMarker) == "" {
		return ValidationError{Field: "not_open_marker", Value: c.NotOpenMarker, Message: "must not be empty"}
	}
	return nil
}

// ErrMissingCredentials is wrapped by RequireCredentials.
var ErrMissingCredentials = errors.New("missing credentials: run 'wsp-sniper setup' or set WSP_USERNAME and WSP_PASSWORD")

// RequireCredentials checks the settings needed to talk to the API.
func (c *Config) RequireCredentials() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ValidationError{Field: "base_url", Value: c.BaseURL, Message: "must not be empty"}
	}
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}
