package config

import (
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parsing YAML").WithContext("path", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parsing YAML").WithContext("path", path)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Strings and numbers override when
// non-zero; booleans override only when present in the file.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Layout.Path != "" {
		base.Layout.Path = override.Layout.Path
	}
	if override.Layout.Page != "" {
		base.Layout.Page = override.Layout.Page
	}
	if override.Layout.View != "" {
		base.Layout.View = override.Layout.View
	}
	if fieldSet(raw, "layout", "show") {
		base.Layout.Show = override.Layout.Show
	}
	if fieldSet(raw, "layout", "watch") {
		base.Layout.Watch = override.Layout.Watch
	}

	if override.Bus.Driver != "" {
		base.Bus.Driver = override.Bus.Driver
	}
	if override.Bus.URL != "" {
		base.Bus.URL = override.Bus.URL
	}
	if override.Bus.Name != "" {
		base.Bus.Name = override.Bus.Name
	}
	if override.Bus.Timeout != 0 {
		base.Bus.Timeout = override.Bus.Timeout
	}
	if override.Bus.Subjects.Display != "" {
		base.Bus.Subjects.Display = override.Bus.Subjects.Display
	}
	if override.Bus.Subjects.Request != "" {
		base.Bus.Subjects.Request = override.Bus.Subjects.Request
	}
	if override.Bus.Subjects.Response != "" {
		base.Bus.Subjects.Response = override.Bus.Subjects.Response
	}

	// An explicit empty string disables the special control handling.
	if fieldSet(raw, "interaction", "start_control") {
		base.Interaction.StartControl = override.Interaction.StartControl
	}
	if fieldSet(raw, "interaction", "bound_input") {
		base.Interaction.BoundInput = override.Interaction.BoundInput
	}

	if fieldSet(raw, "server", "enabled") {
		base.Server.Enabled = override.Server.Enabled
	}
	if override.Server.Bind != "" {
		base.Server.Bind = override.Server.Bind
	}
	if fieldSet(raw, "server", "allowed_origins") {
		base.Server.AllowedOrigins = append([]string(nil), override.Server.AllowedOrigins...)
	}
	if override.Server.ActivationRate != 0 {
		base.Server.ActivationRate = override.Server.ActivationRate
	}
	if override.Server.ActivationBurst != 0 {
		base.Server.ActivationBurst = override.Server.ActivationBurst
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if fieldSet(raw, "tracing", "enabled") {
		base.Tracing.Enabled = override.Tracing.Enabled
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
