// Package config loads panel configuration from YAML files and the
// environment.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

// Config is the complete panel configuration.
type Config struct {
	Layout      LayoutConfig      `yaml:"layout"`
	Bus         BusConfig         `yaml:"bus"`
	Interaction InteractionConfig `yaml:"interaction"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// LayoutConfig selects the layout document and the startup view.
type LayoutConfig struct {
	Path string `yaml:"path"`
	// Page is the document key whose forest is expanded.
	Page string `yaml:"page"`
	// View is the root shown at startup when Show is set.
	View  string `yaml:"view"`
	Show  bool   `yaml:"show"`
	Watch bool   `yaml:"watch"`
}

// BusConfig configures the message transport.
type BusConfig struct {
	Driver   string         `yaml:"driver"`
	URL      string         `yaml:"url"`
	Name     string         `yaml:"name"`
	Timeout  time.Duration  `yaml:"timeout"`
	Subjects SubjectsConfig `yaml:"subjects"`
}

// SubjectsConfig names the inbound and outbound subjects.
type SubjectsConfig struct {
	Display  string `yaml:"display"`
	Request  string `yaml:"request"`
	Response string `yaml:"response"`
}

// InteractionConfig names the controls with special activation handling.
type InteractionConfig struct {
	StartControl string `yaml:"start_control"`
	BoundInput   string `yaml:"bound_input"`
}

// ServerConfig configures the HTTP and websocket surface.
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Bind           string   `yaml:"bind"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// ActivationRate is the sustained number of user actions accepted per
	// second over HTTP; ActivationBurst is the bucket size.
	ActivationRate  float64 `yaml:"activation_rate"`
	ActivationBurst int     `yaml:"activation_burst"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig enables per-command spans written to stderr.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Layout: LayoutConfig{
			Path: "layout.json",
			Page: "pageContent",
			Show: true,
		},
		Bus: BusConfig{
			Driver:  "memory",
			URL:     defaultNATSURL(),
			Name:    "panel",
			Timeout: 30 * time.Second,
			Subjects: SubjectsConfig{
				Display:  "panel.view",
				Request:  "panel.request",
				Response: "panel.response",
			},
		},
		Interaction: InteractionConfig{
			StartControl: "start_button",
			BoundInput:   "input_1",
		},
		Server: ServerConfig{
			Enabled:         true,
			Bind:            "127.0.0.1:4490",
			ActivationRate:  10,
			ActivationBurst: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultNATSURL() string {
	if v := strings.TrimSpace(os.Getenv("NATS_URL")); v != "" {
		return v
	}
	return "nats://localhost:4222"
}

// Load loads configuration from default locations with proper precedence
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	// Load user config (~/.panel/config.yaml)
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".panel", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, wrapLoadError(err, userConfigPath)
		}
	}

	// Load project config (./.panel/config.yaml)
	projectConfigPath := filepath.Join(".", ".panel", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, wrapLoadError(err, projectConfigPath)
	}

	applyEnvOverrides(cfg, configEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, wrapLoadError(err, path)
	}

	applyEnvOverrides(cfg, configEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func wrapLoadError(err error, path string) error {
	if apperrors.IsCode(err, apperrors.ErrCodeConfigParse) {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "read config file").
		WithContext("path", path)
}

// applyEnvOverrides applies environment variable overrides. Values from
// ~/.panel/config.env are used when the variable is unset.
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	get := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return configEnv[key]
	}

	if v := get("PANEL_LAYOUT_PATH"); v != "" {
		cfg.Layout.Path = v
	}
	if v := get("PANEL_LAYOUT_PAGE"); v != "" {
		cfg.Layout.Page = v
	}
	if v := get("PANEL_VIEW"); v != "" {
		cfg.Layout.View = v
	}
	if val, ok := parseBool(get("PANEL_SHOW_VIEW")); ok {
		cfg.Layout.Show = val
	}
	if val, ok := parseBool(get("PANEL_LAYOUT_WATCH")); ok {
		cfg.Layout.Watch = val
	}

	if v := get("PANEL_BUS_DRIVER"); v != "" {
		cfg.Bus.Driver = v
	}
	if v := get("PANEL_NATS_URL"); v != "" {
		cfg.Bus.URL = v
	}

	if v := get("PANEL_START_CONTROL"); v != "" {
		cfg.Interaction.StartControl = v
	}
	if v := get("PANEL_BOUND_INPUT"); v != "" {
		cfg.Interaction.BoundInput = v
	}

	if v := get("PANEL_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if val, ok := parseBool(get("PANEL_SERVER_ENABLED")); ok {
		cfg.Server.Enabled = val
	}
	if v := get("PANEL_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCommaList(v)
	}

	if v := get("PANEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := get("PANEL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if val, ok := parseBool(get("PANEL_TRACING")); ok {
		cfg.Tracing.Enabled = val
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseBool(val string) (bool, bool) {
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func isLoopbackBindAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback()
	}
}

// Validate checks the configuration for values the panel cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, format, args...)
	}

	if strings.TrimSpace(c.Layout.Page) == "" {
		return invalid("layout.page must name a document key")
	}
	if strings.TrimSpace(c.Layout.Path) == "" {
		return invalid("layout.path is required")
	}

	switch strings.ToLower(c.Bus.Driver) {
	case "memory", "nats":
	default:
		return invalid("invalid bus driver: %s (valid: memory, nats)", c.Bus.Driver)
	}
	if c.Bus.Timeout < 0 {
		return invalid("bus.timeout must not be negative")
	}

	subjects := map[string]string{
		"display":  c.Bus.Subjects.Display,
		"request":  c.Bus.Subjects.Request,
		"response": c.Bus.Subjects.Response,
	}
	seen := make(map[string]string, len(subjects))
	for _, name := range []string{"display", "request", "response"} {
		subject := strings.TrimSpace(subjects[name])
		if subject == "" {
			return invalid("bus.subjects.%s is required", name)
		}
		if other, ok := seen[subject]; ok {
			return invalid("bus.subjects.%s and bus.subjects.%s are both %q", other, name, subject)
		}
		seen[subject] = name
	}

	if c.Server.Enabled && strings.TrimSpace(c.Server.Bind) == "" {
		return invalid("server.bind is required when the server is enabled")
	}
	if c.Server.ActivationRate < 0 || c.Server.ActivationBurst < 0 {
		return invalid("server activation limits must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return invalid("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}
	return nil
}

// ValidationWarnings reports settings that are legal but likely unintended.
func (c *Config) ValidationWarnings() []string {
	var warnings []string

	if c.Server.Enabled && !isLoopbackBindAddress(c.Server.Bind) && len(c.Server.AllowedOrigins) == 0 {
		warnings = append(warnings, "SECURITY: server binds to a non-loopback address with no allowed_origins; any page can drive the panel.")
	}
	if c.Layout.Show && strings.TrimSpace(c.Layout.View) == "" {
		warnings = append(warnings, "layout.show is set but layout.view is empty; every view starts hidden.")
	}
	if strings.EqualFold(c.Bus.Driver, "memory") && !c.Server.Enabled {
		warnings = append(warnings, "memory bus with the server disabled: nothing can reach the panel.")
	}
	if c.Interaction.BoundInput != "" && c.Interaction.BoundInput == c.Interaction.StartControl {
		warnings = append(warnings, "interaction.bound_input equals interaction.start_control.")
	}
	return warnings
}

// ResolveLayoutPath expands ~ and makes the layout path absolute.
func (c *Config) ResolveLayoutPath() string {
	path := expandHomeDir(c.Layout.Path)
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func loadConfigEnvVars() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	path := filepath.Join(home, ".panel", "config.env")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	vars := make(map[string]string)
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		vars[key] = value
	}
	return vars
}
