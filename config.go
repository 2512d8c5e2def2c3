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

package clanwatch

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/clanwatch/clanwatch/period"
	"github.com/clanwatch/clanwatch/rolesync"
	"github.com/clanwatch/clanwatch/roster"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultPollInterval    = 1 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
)

type Config struct {
	promRegistry      prometheus.Registerer
	logger            *slog.Logger
	rosterProvider    roster.Provider
	roleApplier       rolesync.Applier
	apiListenAddress  string
	dataDir           string
	clanTag           string
	upstreamURL       string
	upstreamToken     string
	webhookURL        string
	pollInterval      time.Duration
	maxHistoryEntries int
	tracing           bool
	tracingStdout     bool
	shutdownTimeout   time.Duration
}

func (s *Syncer) configValidate() error {
	if s.config.clanTag == "" {
		return errors.New("no clan tag defined")
	}
	if s.config.rosterProvider == nil && s.config.upstreamURL == "" {
		return errors.New(
			"either a roster provider or an upstream URL must be defined",
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the Syncer config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new clanwatch config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		pollInterval:      defaultPollInterval,
		maxHistoryEntries: period.DefaultMaxHistoryEntries,
		shutdownTimeout:   defaultShutdownTimeout,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithClanTag specifies the upstream clan to reconcile against
func WithClanTag(clanTag string) ConfigOptionFunc {
	return func(c *Config) {
		c.clanTag = clanTag
	}
}

// WithUpstreamURL specifies the base URL of the upstream roster API
func WithUpstreamURL(url string) ConfigOptionFunc {
	return func(c *Config) {
		c.upstreamURL = url
	}
}

// WithUpstreamToken specifies the bearer token for the upstream roster API
func WithUpstreamToken(token string) ConfigOptionFunc {
	return func(c *Config) {
		c.upstreamToken = token
	}
}

// WithRosterProvider specifies a roster provider to use instead of the
// built-in HTTP provider. This is mostly used for testing
func WithRosterProvider(provider roster.Provider) ConfigOptionFunc {
	return func(c *Config) {
		c.rosterProvider = provider
	}
}

// WithRoleApplier specifies the downstream role applier. When not set,
// role changes are only emitted on the event bus
func WithRoleApplier(applier rolesync.Applier) ConfigOptionFunc {
	return func(c *Config) {
		c.roleApplier = applier
	}
}

// WithApiListenAddress specifies the listen address for the read-only
// REST API. An empty string disables the API server. The default is
// empty (disabled)
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithWebhookURL specifies the webhook endpoint for role commands and
// period summaries. An empty string disables webhook delivery. The
// default is empty (disabled)
func WithWebhookURL(url string) ConfigOptionFunc {
	return func(c *Config) {
		c.webhookURL = url
	}
}

// WithPollInterval specifies the upstream poll interval. The default is 1 minute
func WithPollInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// WithMaxHistoryEntries specifies how many closed-period snapshots are
// retained. The default is 50
func WithMaxHistoryEntries(maxEntries int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxHistoryEntries = maxEntries
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
