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

package period

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/clanwatch/clanwatch/checkpoint"
	"github.com/clanwatch/clanwatch/event"
	"github.com/clanwatch/clanwatch/roster"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	checkpointKeyLastIdentity = "period:last_identity"
	checkpointKeyLastCapture  = "period:last_capture"
	checkpointKeyLastEmitted  = "period:last_emitted_key"

	captureSchemaVersion = 1
)

// capture is the persisted pairing of a period identity with the most
// recent snapshot observed for it. When the identity changes on a later
// poll, the capture is authoritative for the period that just ended.
type capture struct {
	SchemaVersion int              `json:"schemaVersion"`
	Identity      Identity         `json:"identity"`
	Snapshot      *roster.Snapshot `json:"snapshot"`
	CapturedAt    time.Time        `json:"capturedAt"`
}

type TrackerConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Checkpoints  checkpoint.Store
	History      *HistoryStore
}

// Tracker detects period boundaries retrospectively by comparing derived
// identities across polls. There is no wall-clock scheduling here: the
// upstream source does not reliably expose end-of-period timestamps, so
// "the identity changed, therefore the previous capture was the last one
// for that period" is the only universally correct signal, at the cost of
// up to one poll interval of summary latency.
type Tracker struct {
	config  TrackerConfig
	metrics *trackerMetrics
	current *capture
	mu      sync.Mutex
}

type trackerMetrics struct {
	rollovers  prometheus.Counter
	suppressed prometheus.Counter
}

// NewTracker creates a new rollover tracker, resuming from the persisted
// capture checkpoint when one exists
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Checkpoints == nil {
		return nil, errors.New("no checkpoint store provided")
	}
	if cfg.History == nil {
		return nil, errors.New("no history store provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	t := &Tracker{
		config: cfg,
	}
	if cfg.PromRegistry != nil {
		t.registerMetrics(cfg.PromRegistry)
	}
	val, err := cfg.Checkpoints.Get(checkpointKeyLastCapture)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrKeyNotFound) {
			return nil, fmt.Errorf("failed to read capture checkpoint: %w", err)
		}
	} else {
		var c capture
		if err := json.Unmarshal([]byte(val), &c); err != nil {
			return nil, fmt.Errorf(
				"failed to decode capture checkpoint: %w",
				err,
			)
		}
		t.current = &c
	}
	return t, nil
}

func (t *Tracker) registerMetrics(promRegistry prometheus.Registerer) {
	rollovers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "period_rollovers_total",
			Help: "Total number of period rollovers detected",
		},
	)
	suppressed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "period_suppressed_rollovers_total",
			Help: "Total number of false rollovers suppressed by the migration guard",
		},
	)
	promRegistry.MustRegister(rollovers, suppressed)
	t.metrics = &trackerMetrics{
		rollovers:  rollovers,
		suppressed: suppressed,
	}
}

// closedKey computes the durable identity of a closed period from the
// period identity and the capture's end timestamp. The key must be stable
// across a restart replay so that the emitted-key checkpoint can
// deduplicate the summary.
func closedKey(id Identity, endAt time.Time) string {
	return fmt.Sprintf("%s@%d", id.String(), endAt.Unix())
}

// Observe feeds one snapshot into the tracker. Ticks must arrive in real
// time order; correctness depends on the previous tick's capture being
// authoritative for the period that just ended.
func (t *Tracker) Observe(ctx context.Context, snapshot *roster.Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idNow := Derive(snapshot)
	if t.current == nil {
		// First observation ever, start tracking and emit nothing
		t.config.Logger.Info(
			"tracking first observed period",
			"component", "period",
			"identity", idNow.String(),
		)
		return t.advance(idNow, snapshot)
	}
	if idNow.Equal(t.current.Identity) {
		// Same period, extend the capture window with the fresher data
		return t.advance(idNow, snapshot)
	}
	prev := *t.current
	if isMigrationArtifact(prev.Identity, idNow) {
		// Not a real boundary, just the inference method changing shape
		// underneath us after an upgrade
		t.config.Logger.Info(
			"suppressing rollover caused by inference change",
			"component", "period",
			"prev", prev.Identity.String(),
			"next", idNow.String(),
		)
		if t.metrics != nil {
			t.metrics.suppressed.Inc()
		}
		return t.advance(idNow, snapshot)
	}
	key := closedKey(prev.Identity, prev.CapturedAt)
	lastEmitted, err := t.config.Checkpoints.Get(checkpointKeyLastEmitted)
	if err != nil && !errors.Is(err, checkpoint.ErrKeyNotFound) {
		return fmt.Errorf("failed to read emitted-key checkpoint: %w", err)
	}
	if key != lastEmitted {
		closed := ClosedSnapshot{
			SchemaVersion: closedSchemaVersion,
			Key:           key,
			EndAt:         prev.CapturedAt,
			PeriodType:    prev.Identity.PeriodType,
			DayIndex:      prev.Identity.DayIndex(),
		}
		if prev.Snapshot != nil {
			closed.PerMember = prev.Snapshot.Participants
		}
		if err := t.config.History.Append(closed); err != nil {
			// Leave the emitted-key checkpoint unwritten and keep the old
			// capture so the rollover is re-detected and retried on the
			// next tick
			return fmt.Errorf("failed to finalize period %s: %w", key, err)
		}
		if t.config.EventBus != nil {
			t.config.EventBus.Publish(
				event.PeriodClosedEventType,
				event.NewEvent(
					event.PeriodClosedEventType,
					event.PeriodClosedEvent{
						Key:        key,
						PeriodType: string(closed.PeriodType),
						DayIndex:   closed.DayIndex,
						EndAt:      closed.EndAt,
					},
				),
			)
		}
		// The emitted-key checkpoint is only written after a successful
		// finalize. A crash between the two causes a retry on restart; the
		// sink deduplicates on key
		if err := t.config.Checkpoints.Set(checkpointKeyLastEmitted, key); err != nil {
			t.config.Logger.Error(
				"failed to persist emitted-key checkpoint",
				"component", "period",
				"key", key,
				"error", err,
			)
		}
		if t.metrics != nil {
			t.metrics.rollovers.Inc()
		}
		t.config.Logger.Info(
			"period closed",
			"component", "period",
			"key", key,
			"next", idNow.String(),
		)
	} else {
		t.config.Logger.Info(
			"skipping already-emitted period summary",
			"component", "period",
			"key", key,
		)
	}
	return t.advance(idNow, snapshot)
}

// advance moves the tracking state to (identity, snapshot) and persists it
func (t *Tracker) advance(id Identity, snapshot *roster.Snapshot) error {
	capturedAt := snapshot.FetchedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	c := &capture{
		SchemaVersion: captureSchemaVersion,
		Identity:      id,
		Snapshot:      snapshot,
		CapturedAt:    capturedAt,
	}
	captureData, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode capture checkpoint: %w", err)
	}
	identityData, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode identity checkpoint: %w", err)
	}
	if err := t.config.Checkpoints.Set(checkpointKeyLastCapture, string(captureData)); err != nil {
		return fmt.Errorf("failed to persist capture checkpoint: %w", err)
	}
	if err := t.config.Checkpoints.Set(checkpointKeyLastIdentity, string(identityData)); err != nil {
		return fmt.Errorf("failed to persist identity checkpoint: %w", err)
	}
	t.current = c
	return nil
}
