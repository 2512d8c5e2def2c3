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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobFunc is one tick of a recurring job. Errors are logged and counted
// at the tick boundary; they never stop the job or the scheduler.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	running  atomic.Bool
}

type SchedulerConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Scheduler runs named jobs on fixed intervals. A job that is still
// running when its next tick fires is skipped for that tick, so slow
// upstream calls can never stack concurrent passes of the same job.
type Scheduler struct {
	config   SchedulerConfig
	metrics  *schedulerMetrics
	jobs     []*job
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
	wg       sync.WaitGroup
	mu       sync.Mutex
}

type schedulerMetrics struct {
	runs    *prometheus.CounterVec
	errs    *prometheus.CounterVec
	skipped *prometheus.CounterVec
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Scheduler{
		config: cfg,
		stopCh: make(chan struct{}),
	}
	if cfg.PromRegistry != nil {
		s.registerMetrics(cfg.PromRegistry)
	}
	return s
}

func (s *Scheduler) registerMetrics(promRegistry prometheus.Registerer) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of job ticks executed",
		},
		[]string{"job"},
	)
	errs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_errors_total",
			Help: "Total number of job ticks that returned an error",
		},
		[]string{"job"},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_skipped_total",
			Help: "Total number of job ticks skipped due to an in-flight run",
		},
		[]string{"job"},
	)
	promRegistry.MustRegister(runs, errs, skipped)
	s.metrics = &schedulerMetrics{
		runs:    runs,
		errs:    errs,
		skipped: skipped,
	}
}

// Register adds a named job. All jobs must be registered before Start.
func (s *Scheduler) Register(
	name string,
	interval time.Duration,
	fn JobFunc,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("cannot register job after scheduler start")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	for _, existing := range s.jobs {
		if existing.name == name {
			return fmt.Errorf("job %s: already registered", name)
		}
	}
	s.jobs = append(s.jobs, &job{
		name:     name,
		interval: interval,
		fn:       fn,
	})
	return nil
}

// Start launches one goroutine per registered job. Each job runs once
// immediately and then on its interval until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	defer s.wg.Done()
	s.spawnTick(ctx, j)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.spawnTick(ctx, j)
		}
	}
}

// spawnTick runs one tick in its own goroutine so a slow run cannot delay
// the ticker; the per-job running flag keeps runs from overlapping
func (s *Scheduler) spawnTick(ctx context.Context, j *job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(ctx, j)
	}()
}

func (s *Scheduler) tick(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.skipped.WithLabelValues(j.name).Inc()
		}
		s.config.Logger.Warn(
			"skipping tick with previous run still in flight",
			"component", "scheduler",
			"job", j.name,
		)
		return
	}
	defer j.running.Store(false)
	if s.metrics != nil {
		s.metrics.runs.WithLabelValues(j.name).Inc()
	}
	if err := j.fn(ctx); err != nil {
		if s.metrics != nil {
			s.metrics.errs.WithLabelValues(j.name).Inc()
		}
		s.config.Logger.Error(
			"job tick failed",
			"component", "scheduler",
			"job", j.name,
			"error", err,
		)
	}
}

// Stop shuts down all job goroutines and waits for in-flight ticks
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	return nil
}
