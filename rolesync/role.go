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

package rolesync

import (
	"context"

	"github.com/clanwatch/clanwatch/roster"
)

// Role is a downstream entitlement derived from an upstream clan rank.
// RoleUnassigned is the sentinel for "not present in the roster" and maps
// to a restricted-access role downstream.
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleMember     Role = "member"
	RoleElder      Role = "elder"
	RoleCoLeader   Role = "coLeader"
	RoleLeader     Role = "leader"
)

// RoleFromRank maps an upstream clan rank onto a downstream role. An
// unknown or absent rank maps to the unassigned sentinel.
func RoleFromRank(rank roster.Rank) Role {
	switch rank {
	case roster.RankMember:
		return RoleMember
	case roster.RankElder:
		return RoleElder
	case roster.RankCoLeader:
		return RoleCoLeader
	case roster.RankLeader:
		return RoleLeader
	default:
		return RoleUnassigned
	}
}

// Applier is the downstream side of role reconciliation. Implementations
// are expected to be idempotent: applying the same role twice is a no-op.
// When no Applier is wired, the engine falls back to a persisted mirror of
// the last role it commanded and emits commands on the event bus only.
type Applier interface {
	CurrentRole(ctx context.Context, accountId string) (Role, error)
	ApplyRole(ctx context.Context, accountId string, role Role) error
}
