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

package event

import "time"

// PeriodClosedEventType is the event type for period rollovers
const PeriodClosedEventType = EventType("period.closed")

// PeriodClosedEvent is emitted exactly once per detected period rollover,
// carrying the frozen final snapshot of the period that just ended. The
// notification sink is expected to deduplicate on Key since a crash
// between finalize and checkpoint can produce at most one extra delivery.
type PeriodClosedEvent struct {
	// Key is the durable identity of the closed period
	Key string
	// PeriodType is the kind of period that ended
	PeriodType string
	// DayIndex is the day within the period, nil when inference was
	// not possible
	DayIndex *int
	// EndAt is the capture time of the last snapshot observed for the period
	EndAt time.Time
}
