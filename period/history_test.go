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
	"fmt"
	"testing"
	"time"

	"github.com/clanwatch/clanwatch/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(n int, endAt time.Time) ClosedSnapshot {
	return ClosedSnapshot{
		SchemaVersion: closedSchemaVersion,
		Key:           fmt.Sprintf("warDay:%d@%d", n%7+1, endAt.Unix()),
		EndAt:         endAt,
		PeriodType:    roster.PeriodTypeWarDay,
		DayIndex:      intPtr(n%7 + 1),
	}
}

func TestHistoryRetentionBound(t *testing.T) {
	history, err := NewHistoryStore(
		HistoryStoreConfig{
			Checkpoints: newMemStore(),
		},
	)
	require.NoError(t, err)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 60 {
		require.NoError(
			t,
			history.Append(testEntry(i, start.Add(time.Duration(i)*time.Hour))),
		)
	}
	count, err := history.Len()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxHistoryEntries, count)
	// Oldest entries are evicted first, so the most recent survives
	latest, err := history.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, start.Add(59*time.Hour).Unix(), latest.EndAt.Unix())
	// The oldest retained entry is number 10
	oldest, err := history.Ago(DefaultMaxHistoryEntries - 1)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, start.Add(10*time.Hour).Unix(), oldest.EndAt.Unix())
}

func TestHistoryDedupByKey(t *testing.T) {
	history, err := NewHistoryStore(
		HistoryStoreConfig{
			Checkpoints: newMemStore(),
		},
	)
	require.NoError(t, err)
	endAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := testEntry(0, endAt)
	require.NoError(t, history.Append(entry))
	// Re-appending the same key replaces instead of duplicating
	entry.PerMember = []roster.ParticipantCounters{
		{MemberID: "#AAA", DecksUsed: 4},
	}
	require.NoError(t, history.Append(entry))
	count, err := history.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	latest, err := history.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Len(t, latest.PerMember, 1)
}

func TestHistoryAgo(t *testing.T) {
	history, err := NewHistoryStore(
		HistoryStoreConfig{
			Checkpoints: newMemStore(),
		},
	)
	require.NoError(t, err)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(
			t,
			history.Append(testEntry(i, start.Add(time.Duration(i)*time.Hour))),
		)
	}
	previous, err := history.Ago(1)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, start.Add(1*time.Hour).Unix(), previous.EndAt.Unix())
	missing, err := history.Ago(3)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistoryByDayIndex(t *testing.T) {
	history, err := NewHistoryStore(
		HistoryStoreConfig{
			Checkpoints: newMemStore(),
		},
	)
	require.NoError(t, err)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Two weeks of day 1 and day 2, most recent wins
	for i := range 2 {
		weekStart := start.Add(time.Duration(i) * 7 * 24 * time.Hour)
		for day := 1; day <= 2; day++ {
			require.NoError(t, history.Append(ClosedSnapshot{
				SchemaVersion: closedSchemaVersion,
				Key: fmt.Sprintf(
					"warDay:%d@%d",
					day,
					weekStart.Add(time.Duration(day)*24*time.Hour).Unix(),
				),
				EndAt:      weekStart.Add(time.Duration(day) * 24 * time.Hour),
				PeriodType: roster.PeriodTypeWarDay,
				DayIndex:   intPtr(day),
			}))
		}
	}
	entry, err := history.ByDayIndex(2)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(
		t,
		start.Add(9*24*time.Hour).Unix(),
		entry.EndAt.Unix(),
	)
	missing, err := history.ByDayIndex(5)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistoryClosestTo(t *testing.T) {
	history, err := NewHistoryStore(
		HistoryStoreConfig{
			Checkpoints: newMemStore(),
		},
	)
	require.NoError(t, err)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(
			t,
			history.Append(
				testEntry(i, start.Add(time.Duration(i)*24*time.Hour)),
			),
		)
	}
	entry, err := history.ClosestTo(
		start.Add(25*time.Hour),
		2*time.Hour,
	)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, start.Add(24*time.Hour).Unix(), entry.EndAt.Unix())
	// A timestamp further than maxDrift from every retained entry returns
	// nothing rather than misleadingly distant data
	missing, err := history.ClosestTo(
		start.Add(12*time.Hour),
		2*time.Hour,
	)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistoryPersistsAcrossReopen(t *testing.T) {
	checkpoints := newMemStore()
	history, err := NewHistoryStore(
		HistoryStoreConfig{
			Checkpoints: checkpoints,
		},
	)
	require.NoError(t, err)
	endAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, history.Append(testEntry(0, endAt)))
	reopened, err := NewHistoryStore(
		HistoryStoreConfig{
			Checkpoints: checkpoints,
		},
	)
	require.NoError(t, err)
	latest, err := reopened.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, endAt.Unix(), latest.EndAt.Unix())
}
