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

	"github.com/clanwatch/clanwatch/roster"
)

const (
	// DailyDeckAllotment is the fixed number of decks each participant can
	// play per day. The day-index inference for the colosseum variant
	// divides the maximum cumulative counter by this value.
	DailyDeckAllotment = 4

	// MaxRawIndex is the highest raw period index the upstream API can
	// legitimately report. Values outside 1..MaxRawIndex are ignored.
	MaxRawIndex = 7

	// ColosseumDayCount bounds the inferred day index for the colosseum
	// variant, which runs a fixed number of battle days.
	ColosseumDayCount = 4
)

// Identity is a stable notion of "which period are we in", derived
// deterministically from one snapshot. Equal identities across polls mean
// the same period; an identity change is the sole rollover signal.
type Identity struct {
	PeriodType       roster.PeriodType `json:"periodType"`
	RawIndex         *int              `json:"rawIndex,omitempty"`
	InferredDayIndex *int              `json:"inferredDayIndex,omitempty"`
}

// DayIndex returns the effective day index (raw index when present,
// inferred index otherwise), or nil when neither could be determined.
func (i Identity) DayIndex() *int {
	if i.RawIndex != nil {
		return i.RawIndex
	}
	return i.InferredDayIndex
}

// Equal reports whether two identities refer to the same period. Equality
// is structural on (periodType, rawIndex ?? inferredDayIndex); a nil index
// only equals another nil index.
func (i Identity) Equal(other Identity) bool {
	if i.PeriodType != other.PeriodType {
		return false
	}
	a := i.DayIndex()
	b := other.DayIndex()
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// String renders the identity as "<periodType>:<dayIndex|?>"
func (i Identity) String() string {
	if idx := i.DayIndex(); idx != nil {
		return fmt.Sprintf("%s:%d", i.PeriodType, *idx)
	}
	return fmt.Sprintf("%s:?", i.PeriodType)
}

// Derive computes the period identity for one snapshot. It is a pure
// function of the snapshot.
//
// The primary rule uses the explicit raw index when the upstream shape
// carries one in range. The colosseum variant is known to keep its raw
// index frozen for the whole week, so its day index is instead inferred
// from the maximum cumulative deck counter across all participants. When
// neither rule applies the identity carries only the period type; consumers
// treat a nil index as "unknown day" rather than erroring.
func Derive(snapshot *roster.Snapshot) Identity {
	id := Identity{PeriodType: snapshot.PeriodType}
	if snapshot.PeriodType == roster.PeriodTypeColosseum {
		id.InferredDayIndex = inferColosseumDay(snapshot)
		return id
	}
	if snapshot.RawIndex != nil &&
		*snapshot.RawIndex >= 1 && *snapshot.RawIndex <= MaxRawIndex {
		idx := *snapshot.RawIndex
		id.RawIndex = &idx
		id.InferredDayIndex = &idx
		return id
	}
	return id
}

// inferColosseumDay infers the current battle day from cumulative deck
// counters: ceil(maxCumulative / allotment), clamped to the valid range.
//
// Reset boundary special case: when every participant carries a "today"
// counter reading zero while the maximum cumulative counter is a positive
// exact multiple of the allotment, this is the first tick of the next day
// rather than the last tick of the previous one, so the inferred index is
// maxCumulative/allotment + 1. This disambiguates the single instant where
// cumulative-only inference would attribute activity to the wrong day.
// The rule is reverse-engineered from observed upstream behavior and must
// be preserved exactly; historical queries depend on its quirks.
func inferColosseumDay(snapshot *roster.Snapshot) *int {
	if len(snapshot.Participants) == 0 {
		return nil
	}
	maxCumulative := 0
	todayPresent := true
	todayAllZero := true
	for _, p := range snapshot.Participants {
		if p.DecksUsed > maxCumulative {
			maxCumulative = p.DecksUsed
		}
		if p.DecksUsedToday == nil {
			todayPresent = false
		} else if *p.DecksUsedToday != 0 {
			todayAllZero = false
		}
	}
	var day int
	if todayPresent && todayAllZero &&
		maxCumulative > 0 && maxCumulative%DailyDeckAllotment == 0 {
		day = maxCumulative/DailyDeckAllotment + 1
	} else {
		day = (maxCumulative + DailyDeckAllotment - 1) / DailyDeckAllotment
	}
	if day < 1 {
		day = 1
	}
	if day > ColosseumDayCount {
		day = ColosseumDayCount
	}
	return &day
}

// isMigrationArtifact reports whether a rollover from prev to next is a
// false transition caused purely by an inference/version change: both
// identities reduce to the same period type and raw fields, and the only
// difference is that a previously absent inferred index is now present.
func isMigrationArtifact(prev, next Identity) bool {
	if prev.PeriodType != next.PeriodType {
		return false
	}
	if !intPtrEqual(prev.RawIndex, next.RawIndex) {
		return false
	}
	return prev.InferredDayIndex == nil && next.InferredDayIndex != nil
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
