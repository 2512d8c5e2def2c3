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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/clanwatch/clanwatch/checkpoint"
	"github.com/clanwatch/clanwatch/roster"
)

const (
	// DefaultMaxHistoryEntries is the retention bound of the history store
	DefaultMaxHistoryEntries = 50

	historyCheckpointKey = "period:history"
	historySchemaVersion = 1
	closedSchemaVersion  = 1
)

// ClosedSnapshot is the frozen final state of a period that has rolled
// over. It is immutable after creation.
type ClosedSnapshot struct {
	SchemaVersion int                          `json:"schemaVersion"`
	Key           string                       `json:"key"`
	EndAt         time.Time                    `json:"endAt"`
	PeriodType    roster.PeriodType            `json:"periodType"`
	DayIndex      *int                         `json:"dayIndex,omitempty"`
	PerMember     []roster.ParticipantCounters `json:"perMember"`
}

// historyRecord is the persisted shape of the whole history log
type historyRecord struct {
	SchemaVersion int              `json:"schemaVersion"`
	Entries       []ClosedSnapshot `json:"entries"`
}

// HistoryStore is a bounded, append-only log of closed-period snapshots,
// de-duplicated by key and persisted as a single checkpoint value. Entries
// are kept most recent first.
type HistoryStore struct {
	checkpoints checkpoint.Store
	logger      *slog.Logger
	maxEntries  int
	mu          sync.Mutex
}

type HistoryStoreConfig struct {
	Logger      *slog.Logger
	Checkpoints checkpoint.Store
	// MaxEntries overrides the retention bound, 0 means default
	MaxEntries int
}

// NewHistoryStore creates a new history store
func NewHistoryStore(cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.Checkpoints == nil {
		return nil, errors.New("no checkpoint store provided")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultMaxHistoryEntries
	}
	return &HistoryStore{
		checkpoints: cfg.Checkpoints,
		logger:      cfg.Logger,
		maxEntries:  cfg.MaxEntries,
	}, nil
}

func (h *HistoryStore) load() ([]ClosedSnapshot, error) {
	val, err := h.checkpoints.Get(historyCheckpointKey)
	if err != nil {
		if errors.Is(err, checkpoint.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history checkpoint: %w", err)
	}
	var record historyRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to decode history checkpoint: %w", err)
	}
	return record.Entries, nil
}

func (h *HistoryStore) persist(entries []ClosedSnapshot) error {
	record := historyRecord{
		SchemaVersion: historySchemaVersion,
		Entries:       entries,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode history checkpoint: %w", err)
	}
	return h.checkpoints.Set(historyCheckpointKey, string(data))
}

// Append inserts an entry, replacing any existing entry with the same key,
// then trims the log to the retention bound (oldest evicted first) and
// persists the result as one checkpoint write.
func (h *HistoryStore) Append(entry ClosedSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, err := h.load()
	if err != nil {
		return err
	}
	entries = slices.DeleteFunc(entries, func(e ClosedSnapshot) bool {
		return e.Key == entry.Key
	})
	entries = append(entries, entry)
	// Most recent first
	slices.SortFunc(entries, func(a, b ClosedSnapshot) int {
		return b.EndAt.Compare(a.EndAt)
	})
	if len(entries) > h.maxEntries {
		entries = entries[:h.maxEntries]
	}
	return h.persist(entries)
}

// Latest returns the most recently closed period, or nil when the history
// is empty
func (h *HistoryStore) Latest() (*ClosedSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, err := h.load()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Ago returns the entry n periods before the most recent one, where 0 is
// the most recent. It returns nil when n falls outside the retained log.
func (h *HistoryStore) Ago(n int) (*ClosedSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, err := h.load()
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(entries) {
		return nil, nil
	}
	return &entries[n], nil
}

// ByDayIndex returns the most recent entry whose day index matches, or nil
// when no retained entry matches
func (h *HistoryStore) ByDayIndex(dayIndex int) (*ClosedSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, err := h.load()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].DayIndex != nil && *entries[i].DayIndex == dayIndex {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// ClosestTo returns the entry whose end timestamp is nearest to t. It
// returns nil when the nearest entry differs from t by more than maxDrift,
// so that a query like "three days ago" does not answer with misleadingly
// distant data from a window where no snapshots were captured.
func (h *HistoryStore) ClosestTo(
	t time.Time,
	maxDrift time.Duration,
) (*ClosedSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, err := h.load()
	if err != nil {
		return nil, err
	}
	var closest *ClosedSnapshot
	var closestDrift time.Duration
	for i := range entries {
		drift := entries[i].EndAt.Sub(t).Abs()
		if closest == nil || drift < closestDrift {
			closest = &entries[i]
			closestDrift = drift
		}
	}
	if closest == nil || closestDrift > maxDrift {
		return nil, nil
	}
	return closest, nil
}

// Len returns the number of retained entries
func (h *HistoryStore) Len() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, err := h.load()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
