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

package roster

import (
	"context"
	"time"
)

// Rank is a member's upstream-assigned standing within the clan
type Rank string

const (
	RankNone     Rank = "none"
	RankMember   Rank = "member"
	RankElder    Rank = "elder"
	RankCoLeader Rank = "coLeader"
	RankLeader   Rank = "leader"
)

// PeriodType identifies the kind of upstream activity period a snapshot
// was taken in. The colosseum variant is known to carry a raw period index
// that does not advance day to day, so day boundaries must be inferred
// from cumulative counters instead.
type PeriodType string

const (
	PeriodTypeTraining  PeriodType = "training"
	PeriodTypeWarDay    PeriodType = "warDay"
	PeriodTypeColosseum PeriodType = "colosseum"
	PeriodTypeUnknown   PeriodType = "unknown"
)

// RosterEntry is one member of the current clan roster. Entries are
// ephemeral and only live for the duration of one reconciliation pass.
type RosterEntry struct {
	MemberID    string
	DisplayName string
	Rank        Rank
}

// ParticipantCounters holds the per-member activity counters for the
// current period. All counters are monotonically non-decreasing within a
// single period; a decrease is a signal that a new period has begun.
type ParticipantCounters struct {
	MemberID       string         `json:"memberId"`
	DisplayName    string         `json:"displayName,omitempty"`
	DecksUsed      int            `json:"decksUsed"`
	DecksUsedToday *int           `json:"decksUsedToday,omitempty"`
	Fame           int            `json:"fame"`
	BoatAttacks    *int           `json:"boatAttacks,omitempty"`
	Repairs        *int           `json:"repairs,omitempty"`
	Secondary      map[string]int `json:"secondary,omitempty"`
}

// Snapshot is one fetch of the current-period state for a clan
type Snapshot struct {
	PeriodType   PeriodType            `json:"periodType"`
	RawIndex     *int                  `json:"rawIndex,omitempty"`
	Participants []ParticipantCounters `json:"participants"`
	FetchedAt    time.Time             `json:"fetchedAt"`
}

// Provider supplies the clan roster and current-period snapshots on
// demand. Both calls may fail transiently; callers treat a failure as
// "skip this tick", never as fatal.
type Provider interface {
	FetchRoster(ctx context.Context, clanTag string) ([]RosterEntry, error)
	FetchCurrentSnapshot(ctx context.Context, clanTag string) (*Snapshot, error)
}
