// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file search order. The first file
// found wins.
var DefaultConfigPaths = []string{
	"sentinel.yaml",
	"sentinel.yml",
	"/etc/sentinel/sentinel.yaml",
	"/etc/sentinel/sentinel.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SENTINEL_CONFIG"

// envPrefix namespaces the environment variables read by Load.
const envPrefix = "SENTINEL_"

// Load builds the configuration from layered sources: struct defaults,
// then an optional YAML file, then SENTINEL_-prefixed environment
// variables. SENTINEL_LOGGING_LEVEL maps to logging.level,
// SENTINEL_SERVER_METRICS_ADDR to server.metrics_addr, and so on.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads with an explicit config file path. An empty path skips the
// file layer.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sectionPrefixes maps the first env var segment to a config section. The
// remainder of the variable is one key inside the section, so underscores
// in key names survive (SENTINEL_SERVER_METRICS_ADDR → server.metrics_addr).
var sectionPrefixes = []struct {
	prefix  string
	section string
}{
	{"LOGGING_", "logging"},
	{"SERVER_", "server"},
	{"STATS_", "stats"},
	{"ANOMALY_", "anomaly"},
	{"CLASSIFY_", "classify"},
	{"ALERTING_DEFAULT_RULE_", "alerting.default_rule"},
	{"ALERTING_", "alerting"},
	{"DISPATCH_", "dispatch"},
}

// envTransform turns SENTINEL_SECTION_KEY_NAME into section.key_name.
// Unrecognized variables are dropped so unrelated environment noise cannot
// reach the config.
func envTransform(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	for _, m := range sectionPrefixes {
		if strings.HasPrefix(key, m.prefix) {
			rest := strings.ToLower(strings.TrimPrefix(key, m.prefix))
			if rest == "" {
				return ""
			}
			return m.section + "." + rest
		}
	}
	return ""
}
