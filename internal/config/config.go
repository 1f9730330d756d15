// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package config loads and validates server configuration from a YAML
// file layered under command-line flags.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full server configuration.
type Config struct {
	Listen        string   `koanf:"listen" json:"listen,omitempty" jsonschema:"description=Address the login endpoint binds to"`
	ObservePort   string   `koanf:"observe_addr" json:"observe_addr,omitempty" jsonschema:"description=Address the health and metrics endpoints bind to"`
	DatabaseURL   string   `koanf:"database_url" json:"database_url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
	RedisURL      string   `koanf:"redis_url" json:"redis_url,omitempty" jsonschema:"description=Redis connection URL for the verified-hardware cache"`
	TLSCert       string   `koanf:"tls_cert" json:"tls_cert,omitempty" jsonschema:"description=TLS certificate file for the login endpoint; empty serves plain HTTP"`
	TLSKey        string   `koanf:"tls_key" json:"tls_key,omitempty" jsonschema:"description=TLS private key file for the login endpoint"`
	GeolocAPIURL  string   `koanf:"geoloc_api_url" json:"geoloc_api_url,omitempty" jsonschema:"description=Base URL of the ip-geolocation API; empty disables lookups"`
	WebhookURL    string   `koanf:"webhook_url" json:"webhook_url,omitempty" jsonschema:"description=Staff alert webhook URL; empty logs alerts instead"`
	LogFormat     string   `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text,description=Log output format"`
	LogLevel      string   `koanf:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,description=Minimum log level"`
	Login         Login    `koanf:"login" json:"login,omitempty"`
}

// Login configures the login gate itself.
type Login struct {
	MinimumVersion  string   `koanf:"minimum_version" json:"minimum_version,omitempty" jsonschema:"description=Oldest client version allowed to log in; empty disables the floor"`
	ProtocolVersion int32    `koanf:"protocol_version" json:"protocol_version,omitempty" jsonschema:"minimum=1,description=Wire protocol version reported to clients"`
	AntiCheat       bool     `koanf:"anticheat" json:"anticheat,omitempty" jsonschema:"description=Whether the anti-cheat gate runs"`
	Announcement    string   `koanf:"announcement" json:"announcement,omitempty" jsonschema:"description=Notification shown to every player at login"`
	MenuIcon        string   `koanf:"menu_icon" json:"menu_icon,omitempty" jsonschema:"description=Main menu icon image and link pair"`
	DefaultChannels []string `koanf:"default_channels" json:"default_channels,omitempty" jsonschema:"description=Channels every player joins at login"`
	AdminChannel    string   `koanf:"admin_channel" json:"admin_channel,omitempty" jsonschema:"description=Channel staff joins at login"`
}

// Default returns the configuration used when a key is absent from
// both the file and the flags.
func Default() Config {
	return Config{
		Listen:      ":8080",
		ObservePort: ":9090",
		LogFormat:   "json",
		LogLevel:    "info",
		Login: Login{
			ProtocolVersion: 19,
			AntiCheat:       true,
			DefaultChannels: []string{"#osu", "#announce"},
			AdminChannel:    "#admin",
		},
	}
}

// Load reads configuration from the YAML file at path, then overlays
// any set flags. An empty path skips the file; flags may be nil.
// The merged result is schema-validated before it is returned.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		raw, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").
				With("path", path).
				Wrap(err)
		}
		if err := Validate(raw); err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Only flags the operator actually set participate, so unset
		// flags never shadow file values or defaults.
		if err := k.Load(posflag.Provider(changedFlags(flags), ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	return &cfg, nil
}

func changedFlags(flags *pflag.FlagSet) *pflag.FlagSet {
	changed := pflag.NewFlagSet("changed", pflag.ContinueOnError)
	flags.Visit(func(f *pflag.Flag) {
		changed.AddFlag(f)
	})
	return changed
}
