package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/pqd/internal/registry"
)

// EnvConfigPath names the variable that points at a config file.
const EnvConfigPath = "PQD_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// envOverrides are applied on top of the file. Empty values leave the file
// setting alone.
type envOverrides struct {
	LogLevel     string        `env:"PQD_LOG_LEVEL"`
	LogFormat    string        `env:"PQD_LOG_FORMAT"`
	BinderDevice string        `env:"PQD_BINDER_DEVICE"`
	Revision     string        `env:"PQD_PROTOCOL_REVISION"`
	StatePath    string        `env:"PQD_STATE_PATH"`
	CallTimeout  time.Duration `env:"PQD_CALL_TIMEOUT"`
	APIListen    string        `env:"PQD_API_LISTEN"`
}

// Load reads configuration from a file. Keys missing from the file keep
// their defaults; ${VAR} references are expanded before parsing.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}
	cfg.Source = absPath

	return finish(cfg)
}

// LoadOrDefault loads configPath, or the discovered file when configPath is
// empty, or the defaults when no file exists.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = Discover()
	}
	if configPath != "" {
		return Load(configPath)
	}
	return finish(Defaults())
}

// Discover returns the first config file found in $PQD_CONFIG,
// ~/.config/pqd/config.yaml and /etc/pqd/config.yaml, or "" when none exists.
func Discover() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(homeDir, ".config", "pqd", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	if _, err := os.Stat("/etc/pqd/config.yaml"); err == nil {
		return "/etc/pqd/config.yaml"
	}
	return ""
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.State.Path = expandHome(cfg.State.Path)
	cfg.Service.PIDFile = expandHome(cfg.Service.PIDFile)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Service.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Service.LogFormat = o.LogFormat
	}
	if o.BinderDevice != "" {
		cfg.Binder.Device = o.BinderDevice
	}
	if o.Revision != "" {
		cfg.Binder.Revision = o.Revision
	}
	if o.StatePath != "" {
		cfg.State.Path = o.StatePath
	}
	if o.CallTimeout != 0 {
		cfg.Binder.CallTimeout = o.CallTimeout
	}
	if o.APIListen != "" {
		cfg.API.Listen = o.APIListen
	}
	return nil
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so validation can name it.
		return match
	})
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Revision returns the parsed protocol revision.
func (c *Config) Revision() registry.Revision {
	rev, err := registry.ParseRevision(c.Binder.Revision)
	if err != nil {
		return registry.RevisionChecked
	}
	return rev
}

// Simulated reports whether the in-memory PQ service is selected.
func (c *Config) Simulated() bool { return c.Binder.Device == "sim" }

func validate(cfg *Config) error {
	var errs []error

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		errs = append(errs, fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel))
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("service.log_format must be json or text (got %q)", f))
	}

	if cfg.Binder.Device == "" {
		errs = append(errs, errors.New("binder.device is required"))
	}
	if cfg.Binder.Service == "" || !strings.Contains(cfg.Binder.Service, "/") {
		errs = append(errs, fmt.Errorf("binder.service must be <interface>/<instance> (got %q)", cfg.Binder.Service))
	}
	if cfg.Binder.Interface == "" {
		errs = append(errs, errors.New("binder.interface is required"))
	}
	if _, err := registry.ParseRevision(cfg.Binder.Revision); err != nil {
		errs = append(errs, fmt.Errorf("binder.revision: %w", err))
	}
	if cfg.Binder.CallTimeout <= 0 {
		errs = append(errs, errors.New("binder.call_timeout must be positive"))
	}

	if cfg.State.Path == "" {
		errs = append(errs, errors.New("state.path is required"))
	} else if envVarPattern.MatchString(cfg.State.Path) {
		errs = append(errs, fmt.Errorf("state.path: environment variable ${%s} is not set", envVarPattern.FindStringSubmatch(cfg.State.Path)[1]))
	}

	if cfg.Settings.Binary == "" {
		errs = append(errs, errors.New("settings.binary is required"))
	}
	if cfg.Settings.Schema == "" {
		errs = append(errs, errors.New("settings.schema is required"))
	}

	if cfg.DBus.Enabled {
		if b := cfg.DBus.Bus; b != "session" && b != "system" {
			errs = append(errs, fmt.Errorf("dbus.bus must be session or system (got %q)", b))
		}
		if cfg.DBus.Name == "" {
			errs = append(errs, errors.New("dbus.name is required when dbus is enabled"))
		}
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		errs = append(errs, errors.New("api.listen is required when api is enabled"))
	}
	for i, t := range cfg.API.AuthTokens() {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("api.tokens[%d]: %w", i, err))
		}
	}
	if cfg.Journal.Capacity < 0 {
		errs = append(errs, errors.New("journal.capacity must not be negative"))
	}

	return errors.Join(errs...)
}
