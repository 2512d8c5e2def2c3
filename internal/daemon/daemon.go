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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clanwatch/clanwatch"
	"github.com/clanwatch/clanwatch/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "daemon")

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}
	// Parse poll interval
	pollInterval := 1 * time.Minute
	if cfg.PollInterval != "" {
		var err error
		pollInterval, err = time.ParseDuration(cfg.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll interval: %w", err)
		}
	}

	s, err := clanwatch.New(
		clanwatch.NewConfig(
			clanwatch.WithLogger(logger),
			clanwatch.WithDataDir(cfg.DataDir),
			clanwatch.WithClanTag(cfg.ClanTag),
			clanwatch.WithUpstreamURL(cfg.UpstreamURL),
			clanwatch.WithUpstreamToken(cfg.UpstreamToken),
			clanwatch.WithWebhookURL(cfg.WebhookURL),
			clanwatch.WithApiListenAddress(cfg.ApiListenAddress),
			clanwatch.WithPollInterval(pollInterval),
			clanwatch.WithMaxHistoryEntries(cfg.MaxHistoryEntries),
			clanwatch.WithShutdownTimeout(shutdownTimeout),
			clanwatch.WithTracing(cfg.Tracing),
			clanwatch.WithTracingStdout(cfg.TracingStdout),
			// Enable metrics with default prometheus registry
			clanwatch.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}

	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component", "daemon",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "daemon",
			)
			os.Exit(1)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run syncer in goroutine
	errChan := make(chan error, 1)
	go func() {
		err := s.Run()
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")

		// Shutdown metrics server
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}

		// Shutdown syncer
		if err := s.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		if err == nil {
			logger.Info("syncer stopped")
			// Graceful cleanup
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error(
					"metrics server shutdown error",
					"error", shutdownErr,
				)
			}
			if stopErr := s.Stop(); stopErr != nil {
				logger.Error("shutdown errors occurred", "error", stopErr)
				return stopErr
			}
			return nil
		}
		return err
	}
}
