// Copyright 2026 Clanwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "clanwatch.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultPollInterval    = "1m"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	ClanTag           string `yaml:"clanTag"           envconfig:"CLANWATCH_CLAN_TAG"`
	UpstreamURL       string `yaml:"upstreamUrl"       envconfig:"CLANWATCH_UPSTREAM_URL"`
	UpstreamToken     string `yaml:"upstreamToken"     envconfig:"CLANWATCH_UPSTREAM_TOKEN"`
	WebhookURL        string `yaml:"webhookUrl"        envconfig:"CLANWATCH_WEBHOOK_URL"`
	ApiListenAddress  string `yaml:"apiListenAddress"  envconfig:"CLANWATCH_API_LISTEN_ADDRESS"`
	DataDir           string `yaml:"dataDir"                                              split_words:"true"`
	BindAddr          string `yaml:"bindAddr"                                             split_words:"true"`
	PollInterval      string `yaml:"pollInterval"                                         split_words:"true"`
	ShutdownTimeout   string `yaml:"shutdownTimeout"                                      split_words:"true"`
	MetricsPort       uint   `yaml:"metricsPort"                                          split_words:"true"`
	MaxHistoryEntries int    `yaml:"maxHistoryEntries"                                    split_words:"true"`
	Tracing           bool   `yaml:"tracing"`
	TracingStdout     bool   `yaml:"tracingStdout"                                        split_words:"true"`
}

var globalConfig = &Config{
	ClanTag:           "",
	UpstreamURL:       "https://api.clashroyale.com/v1",
	UpstreamToken:     "",
	WebhookURL:        "",
	ApiListenAddress:  "",
	DataDir:           ".clanwatch",
	BindAddr:          "0.0.0.0",
	PollInterval:      DefaultPollInterval,
	ShutdownTimeout:   DefaultShutdownTimeout,
	MetricsPort:       12798,
	MaxHistoryEntries: 50,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.clanwatch/clanwatch.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".clanwatch", "clanwatch.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/clanwatch/clanwatch.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/clanwatch/clanwatch.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Overlay env vars on top of defaults and config file values
	err := envconfig.Process("clanwatch", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}
