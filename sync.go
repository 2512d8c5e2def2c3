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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/clanwatch/clanwatch/api"
	"github.com/clanwatch/clanwatch/checkpoint"
	"github.com/clanwatch/clanwatch/database"
	"github.com/clanwatch/clanwatch/event"
	"github.com/clanwatch/clanwatch/notify"
	"github.com/clanwatch/clanwatch/period"
	"github.com/clanwatch/clanwatch/rolesync"
	"github.com/clanwatch/clanwatch/roster"
	"github.com/clanwatch/clanwatch/scheduler"
)

// Syncer ties the reconciliation engines together: it polls the upstream
// roster on a fixed interval, feeds the role engine and the period
// tracker, and delivers their events to the configured sinks.
type Syncer struct {
	eventBus      *event.EventBus
	checkpoints   checkpoint.Store
	db            *database.Database
	history       *period.HistoryStore
	tracker       *period.Tracker
	engine        *rolesync.Engine
	provider      roster.Provider
	sched         *scheduler.Scheduler
	webhook       *notify.WebhookSink
	apiServer     *api.Api
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Syncer, error) {
	eventBus := event.NewEventBus(cfg.promRegistry)
	s := &Syncer{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := s.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

func (s *Syncer) Run() error {
	// Configure tracing
	if s.config.tracing {
		if err := s.setupTracing(); err != nil {
			return err
		}
	}
	// Load checkpoint store
	checkpoints, err := checkpoint.NewBadgerStore(
		checkpoint.WithLogger(s.config.logger),
		checkpoint.WithPromRegistry(s.config.promRegistry),
		checkpoint.WithDataDir(s.config.dataDir),
	)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	s.checkpoints = checkpoints
	// Load account database
	db, err := database.New(
		s.config.dataDir,
		s.config.logger,
		s.config.promRegistry,
	)
	if err != nil {
		return fmt.Errorf("failed to open account database: %w", err)
	}
	s.db = db
	// Configure roster provider
	s.provider = s.config.rosterProvider
	if s.provider == nil {
		s.provider = roster.NewHTTPProvider(
			s.config.upstreamURL,
			roster.WithAPIToken(s.config.upstreamToken),
		)
	}
	// Load snapshot history
	history, err := period.NewHistoryStore(
		period.HistoryStoreConfig{
			Logger:      s.config.logger,
			Checkpoints: s.checkpoints,
			MaxEntries:  s.config.maxHistoryEntries,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to load snapshot history: %w", err)
	}
	s.history = history
	// Load period tracker
	tracker, err := period.NewTracker(
		period.TrackerConfig{
			Logger:       s.config.logger,
			EventBus:     s.eventBus,
			PromRegistry: s.config.promRegistry,
			Checkpoints:  s.checkpoints,
			History:      s.history,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to load period tracker: %w", err)
	}
	s.tracker = tracker
	// Configure role reconciliation engine
	engine, err := rolesync.NewEngine(
		rolesync.EngineConfig{
			Logger:       s.config.logger,
			EventBus:     s.eventBus,
			PromRegistry: s.config.promRegistry,
			Checkpoints:  s.checkpoints,
			Applier:      s.config.roleApplier,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create role engine: %w", err)
	}
	s.engine = engine
	// Configure webhook sink
	if s.config.webhookURL != "" {
		webhook, err := notify.NewWebhookSink(
			notify.WebhookSinkConfig{
				Logger:      s.config.logger,
				EventBus:    s.eventBus,
				Checkpoints: s.checkpoints,
				URL:         s.config.webhookURL,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to create webhook sink: %w", err)
		}
		s.webhook = webhook
		if err := s.webhook.Start(); err != nil {
			return err
		}
	}
	// Configure API server
	if s.config.apiListenAddress != "" {
		s.apiServer = api.New(
			api.Config{
				ListenAddress: s.config.apiListenAddress,
			},
			s.history,
			s.db,
			s.config.logger,
		)
		if err := s.apiServer.Start(context.Background()); err != nil {
			return err
		}
	}
	// Configure scheduler
	s.sched = scheduler.NewScheduler(
		scheduler.SchedulerConfig{
			Logger:       s.config.logger,
			PromRegistry: s.config.promRegistry,
		},
	)
	if err := s.sched.Register(
		"role_sync",
		s.config.pollInterval,
		s.runRoleSync,
	); err != nil {
		return err
	}
	if err := s.sched.Register(
		"period_poll",
		s.config.pollInterval,
		s.runPeriodPoll,
	); err != nil {
		return err
	}
	if err := s.sched.Start(context.Background()); err != nil {
		return err
	}

	// Wait for shutdown signal
	<-s.done
	return nil
}

// runRoleSync is one reconciliation pass: fetch the roster, read the
// linked-account table, and let the engine settle role changes
func (s *Syncer) runRoleSync(ctx context.Context) error {
	entries, err := s.provider.FetchRoster(ctx, s.config.clanTag)
	if err != nil {
		// Transient upstream failure, skip this tick
		return fmt.Errorf("failed to fetch roster: %w", err)
	}
	accounts, err := s.db.LinkedAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list linked accounts: %w", err)
	}
	return s.engine.Reconcile(ctx, accounts, entries)
}

// runPeriodPoll is one rollover-detection pass: fetch the current period
// snapshot and feed it to the tracker
func (s *Syncer) runPeriodPoll(ctx context.Context) error {
	snapshot, err := s.provider.FetchCurrentSnapshot(ctx, s.config.clanTag)
	if err != nil {
		// Transient upstream failure, skip this tick
		return fmt.Errorf("failed to fetch period snapshot: %w", err)
	}
	return s.tracker.Observe(ctx, snapshot)
}

// History returns the closed-period snapshot history
func (s *Syncer) History() *period.HistoryStore {
	return s.history
}

// Database returns the linked-account database
func (s *Syncer) Database() *database.Database {
	return s.db
}

// EventBus returns the event bus for external subscribers
func (s *Syncer) EventBus() *event.EventBus {
	return s.eventBus
}

func (s *Syncer) Stop() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Syncer) shutdown() error {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		s.config.shutdownTimeout,
	)
	defer cancel()

	var err error

	s.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	s.config.logger.Debug("shutdown phase 1: stopping new work")

	if s.sched != nil {
		if stopErr := s.sched.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("scheduler shutdown: %w", stopErr))
		}
	}

	if s.apiServer != nil {
		if stopErr := s.apiServer.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Drain sinks
	s.config.logger.Debug("shutdown phase 2: draining sinks")

	if s.webhook != nil {
		if stopErr := s.webhook.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("webhook shutdown: %w", stopErr))
		}
	}

	// Phase 3: Flush state and close storage
	s.config.logger.Debug("shutdown phase 3: flushing state")

	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("account database close: %w", closeErr),
			)
		}
	}

	if s.checkpoints != nil {
		if closeErr := s.checkpoints.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("checkpoint store close: %w", closeErr),
			)
		}
	}

	// Phase 4: Cleanup resources
	s.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range s.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	s.shutdownFuncs = nil

	if s.eventBus != nil {
		s.eventBus.Stop()
	}

	s.config.logger.Debug("graceful shutdown complete")
	close(s.done)
	return err
}
