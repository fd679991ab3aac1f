package config

import (
	"time"

	"github.com/mattjoyce/pqd/internal/auth"
)

// Config represents the complete pqd configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Binder   BinderConfig   `yaml:"binder"`
	State    StateConfig    `yaml:"state"`
	Settings SettingsConfig `yaml:"settings"`
	DBus     DBusConfig     `yaml:"dbus"`
	API      APIConfig      `yaml:"api,omitempty"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
	Journal  JournalConfig  `yaml:"journal"`

	// Source is the file the config was loaded from; empty for defaults.
	Source string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file"`
}

// BinderConfig selects the PQ service endpoint.
type BinderConfig struct {
	// Device is the binder device node, or "sim" for the in-memory service.
	Device      string        `yaml:"device"`
	Service     string        `yaml:"service"`
	Interface   string        `yaml:"interface"`
	Revision    string        `yaml:"revision"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// SettingsConfig defines the settings source.
type SettingsConfig struct {
	Binary string `yaml:"binary"`
	Schema string `yaml:"schema"`
	Watch  bool   `yaml:"watch"`
}

// DBusConfig defines the D-Bus facade.
type DBusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bus     string `yaml:"bus"`
	Name    string `yaml:"name"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool             `yaml:"enabled"`
	Listen  string           `yaml:"listen"`
	Tokens  []APITokenConfig `yaml:"tokens,omitempty"`
}

// APITokenConfig is one bearer token; use ${VAR} to keep it out of the file.
type APITokenConfig struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// AuthTokens converts the configured tokens for the API server.
func (c APIConfig) AuthTokens() []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

// PrivacyConfig names the services the privacy toggles act on.
type PrivacyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CameraService string `yaml:"camera_service"`
	GNSSService   string `yaml:"gnss_service"`
	GeoclueUnit   string `yaml:"geoclue_unit"`
	MixerDevice   string `yaml:"mixer_device"`
	MixerElement  string `yaml:"mixer_element"`
}

// JournalConfig sizes the in-memory outcome journal.
type JournalConfig struct {
	Capacity int `yaml:"capacity"`
}

// Defaults returns a Config with the stock device settings.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "pqd",
			LogLevel:  "info",
			LogFormat: "json",
			PIDFile:   "",
		},
		Binder: BinderConfig{
			Device:      "/dev/hwbinder",
			Service:     "vendor.mediatek.hardware.pq@2.0::IPictureQuality/default",
			Interface:   "vendor.mediatek.hardware.pq@2.0::IPictureQuality",
			Revision:    "checked",
			CallTimeout: 2 * time.Second,
		},
		State: StateConfig{
			Path: "~/.local/state/pqd/state.db",
		},
		Settings: SettingsConfig{
			Binary: "gsettings",
			Schema: "io.furios.pq",
			Watch:  true,
		},
		DBus: DBusConfig{
			Enabled: true,
			Bus:     "session",
			Name:    "io.FuriOS.PQ",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8087",
		},
		Privacy: PrivacyConfig{
			Enabled:       true,
			CameraService: "camerahalserver",
			GNSSService:   "vendor.gnss-default",
			GeoclueUnit:   "geoclue.service",
			MixerDevice:   "default",
			MixerElement:  "Capture",
		},
		Journal: JournalConfig{
			Capacity: 256,
		},
	}
}
