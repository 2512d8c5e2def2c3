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
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// The upstream API has gone through several shape changes over the years,
// and different deployments still answer with different field names for
// the same logical counter. Rather than sniffing fields ad hoc all over the
// codebase, each logical counter has an ordered list of candidate
// extractors here at the provider boundary; the first one that returns a
// value wins. Core reconciliation code only ever sees the typed Snapshot.

// counterExtractor attempts to pull one logical counter out of a raw
// upstream JSON object. It returns nil when the field it knows about is
// absent or not numeric.
type counterExtractor func(obj map[string]any) *int

// fieldInt extracts a top-level numeric field
func fieldInt(name string) counterExtractor {
	return func(obj map[string]any) *int {
		return asInt(obj[name])
	}
}

// nestedFieldInt extracts a numeric field from a nested object
func nestedFieldInt(parent, name string) counterExtractor {
	return func(obj map[string]any) *int {
		nested, ok := obj[parent].(map[string]any)
		if !ok {
			return nil
		}
		return asInt(nested[name])
	}
}

func asInt(v any) *int {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

func firstInt(obj map[string]any, extractors []counterExtractor) *int {
	for _, extract := range extractors {
		if v := extract(obj); v != nil {
			return v
		}
	}
	return nil
}

// Candidate extractors per logical counter, in preference order. Ordering
// matters: newer field names come first so that deployments which carry
// both old and new names resolve to the current semantics.
var (
	cumulativeDeckExtractors = []counterExtractor{
		fieldInt("decksUsed"),
		fieldInt("totalDecksUsed"),
		nestedFieldInt("battles", "decksUsed"),
	}
	todayDeckExtractors = []counterExtractor{
		fieldInt("decksUsedToday"),
		fieldInt("dayDecksUsed"),
		nestedFieldInt("battles", "decksUsedToday"),
	}
	fameExtractors = []counterExtractor{
		fieldInt("fame"),
		fieldInt("medals"),
		fieldInt("points"),
	}
	boatAttackExtractors = []counterExtractor{
		fieldInt("boatAttacks"),
	}
	repairExtractors = []counterExtractor{
		fieldInt("repairPoints"),
		fieldInt("repairs"),
	}
	rawIndexExtractors = []counterExtractor{
		fieldInt("periodIndex"),
		fieldInt("dayIndex"),
	}
)

func firstString(obj map[string]any, names ...string) string {
	for _, name := range names {
		if s, ok := obj[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ParsePeriodType normalizes an upstream period type string
func ParsePeriodType(s string) PeriodType {
	switch strings.ToLower(s) {
	case "training":
		return PeriodTypeTraining
	case "warday", "war_day":
		return PeriodTypeWarDay
	case "colosseum":
		return PeriodTypeColosseum
	default:
		return PeriodTypeUnknown
	}
}

// ParseRank normalizes an upstream rank string. The upstream API has
// historically used "admin" for what is now "elder".
func ParseRank(s string) Rank {
	switch strings.ToLower(s) {
	case "member":
		return RankMember
	case "elder", "admin":
		return RankElder
	case "coleader", "co_leader":
		return RankCoLeader
	case "leader":
		return RankLeader
	default:
		return RankNone
	}
}

// DecodeSnapshot decodes a raw upstream current-period response into a
// typed Snapshot using the candidate extractor tables. The participant
// list may live either at the top level or nested under "clan".
func DecodeSnapshot(data []byte, fetchedAt time.Time) (*Snapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snapshot := &Snapshot{
		PeriodType: ParsePeriodType(firstString(raw, "periodType", "state")),
		RawIndex:   firstInt(raw, rawIndexExtractors),
		FetchedAt:  fetchedAt,
	}
	participants, ok := raw["participants"].([]any)
	if !ok {
		if clan, ok2 := raw["clan"].(map[string]any); ok2 {
			participants, _ = clan["participants"].([]any)
		}
	}
	for _, p := range participants {
		obj, ok := p.(map[string]any)
		if !ok {
			continue
		}
		memberID := firstString(obj, "tag", "memberId")
		if memberID == "" {
			continue
		}
		counters := ParticipantCounters{
			MemberID:       memberID,
			DisplayName:    firstString(obj, "name", "displayName"),
			DecksUsedToday: firstInt(obj, todayDeckExtractors),
			BoatAttacks:    firstInt(obj, boatAttackExtractors),
			Repairs:        firstInt(obj, repairExtractors),
		}
		if v := firstInt(obj, cumulativeDeckExtractors); v != nil {
			counters.DecksUsed = *v
		}
		if v := firstInt(obj, fameExtractors); v != nil {
			counters.Fame = *v
		}
		snapshot.Participants = append(snapshot.Participants, counters)
	}
	return snapshot, nil
}

// DecodeRoster decodes a raw upstream member-list response. The member
// list may be keyed "items" or "memberList" depending on the endpoint
// generation.
func DecodeRoster(data []byte) ([]RosterEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	members, ok := raw["items"].([]any)
	if !ok {
		members, _ = raw["memberList"].([]any)
	}
	entries := []RosterEntry{}
	for _, m := range members {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		memberID := firstString(obj, "tag", "memberId")
		if memberID == "" {
			continue
		}
		entries = append(entries, RosterEntry{
			MemberID:    memberID,
			DisplayName: firstString(obj, "name", "displayName"),
			Rank:        ParseRank(firstString(obj, "role", "rank")),
		})
	}
	return entries, nil
}
