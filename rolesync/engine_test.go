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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clanwatch/clanwatch/checkpoint"
	"github.com/clanwatch/clanwatch/database"
	"github.com/clanwatch/clanwatch/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory checkpoint store for tests
type memStore struct {
	data map[string]string
	mu   sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		data: make(map[string]string),
	}
}

func (m *memStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", checkpoint.ErrKeyNotFound
	}
	return val, nil
}

func (m *memStore) Set(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Close() error {
	return nil
}

// mockApplier records applied roles in memory
type mockApplier struct {
	roles    map[string]Role
	applied  []string
	failFor  map[string]error
	mu       sync.Mutex
}

func newMockApplier() *mockApplier {
	return &mockApplier{
		roles:   make(map[string]Role),
		failFor: make(map[string]error),
	}
}

func (a *mockApplier) CurrentRole(
	_ context.Context,
	accountId string,
) (Role, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.failFor[accountId]; ok {
		return RoleUnassigned, err
	}
	role, ok := a.roles[accountId]
	if !ok {
		return RoleUnassigned, nil
	}
	return role, nil
}

func (a *mockApplier) ApplyRole(
	_ context.Context,
	accountId string,
	role Role,
) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.failFor[accountId]; ok {
		return err
	}
	a.roles[accountId] = role
	a.applied = append(a.applied, accountId+":"+string(role))
	return nil
}

func (a *mockApplier) appliedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func linkedAccount(accountId, memberId string) database.LinkedAccount {
	return database.LinkedAccount{
		AccountID:        accountId,
		ExternalMemberID: memberId,
		LinkedAt:         time.Now(),
	}
}

func rosterWith(rank roster.Rank, memberIds ...string) []roster.RosterEntry {
	var entries []roster.RosterEntry
	for _, id := range memberIds {
		entries = append(entries, roster.RosterEntry{
			MemberID:    id,
			DisplayName: "Member " + id,
			Rank:        rank,
		})
	}
	return entries
}

func newTestEngine(t *testing.T, applier Applier) *Engine {
	t.Helper()
	engine, err := NewEngine(
		EngineConfig{
			Checkpoints: newMemStore(),
			Applier:     applier,
		},
	)
	require.NoError(t, err)
	return engine
}

func TestEngineSettlesAfterTwoAgreeingPolls(t *testing.T) {
	applier := newMockApplier()
	engine := newTestEngine(t, applier)
	accounts := []database.LinkedAccount{linkedAccount("acct-1", "#AAA")}
	ctx := context.Background()
	// Poll 1: member absent from roster, desired is unassigned
	require.NoError(t, engine.Reconcile(ctx, accounts, nil))
	assert.Equal(t, 0, applier.appliedCount())
	// Poll 2: member appears as elder, first agreement only
	require.NoError(
		t,
		engine.Reconcile(ctx, accounts, rosterWith(roster.RankElder, "#AAA")),
	)
	assert.Equal(t, 0, applier.appliedCount())
	// Poll 3: second consecutive agreement, role is applied
	require.NoError(
		t,
		engine.Reconcile(ctx, accounts, rosterWith(roster.RankElder, "#AAA")),
	)
	assert.Equal(t, 1, applier.appliedCount())
	assert.Equal(t, []string{"acct-1:elder"}, applier.applied)
	// Further matching polls are no-ops
	require.NoError(
		t,
		engine.Reconcile(ctx, accounts, rosterWith(roster.RankElder, "#AAA")),
	)
	assert.Equal(t, 1, applier.appliedCount())
}

func TestEngineNoFlap(t *testing.T) {
	applier := newMockApplier()
	applier.roles["acct-1"] = RoleElder
	engine := newTestEngine(t, applier)
	accounts := []database.LinkedAccount{linkedAccount("acct-1", "#AAA")}
	ctx := context.Background()
	// Settled as elder
	require.NoError(
		t,
		engine.Reconcile(ctx, accounts, rosterWith(roster.RankElder, "#AAA")),
	)
	// Single-poll anomaly reports member, then flips back
	require.NoError(
		t,
		engine.Reconcile(ctx, accounts, rosterWith(roster.RankMember, "#AAA")),
	)
	require.NoError(
		t,
		engine.Reconcile(ctx, accounts, rosterWith(roster.RankElder, "#AAA")),
	)
	assert.Equal(t, 0, applier.appliedCount())
	assert.Equal(t, RoleElder, applier.roles["acct-1"])
}

func TestEngineConvergesAfterOscillation(t *testing.T) {
	applier := newMockApplier()
	engine := newTestEngine(t, applier)
	accounts := []database.LinkedAccount{linkedAccount("acct-1", "#AAA")}
	ctx := context.Background()
	// Oscillating observations never reach the settle threshold
	oscillation := []roster.Rank{
		roster.RankMember,
		roster.RankElder,
		roster.RankMember,
		roster.RankCoLeader,
	}
	for _, rank := range oscillation {
		require.NoError(
			t,
			engine.Reconcile(ctx, accounts, rosterWith(rank, "#AAA")),
		)
	}
	assert.Equal(t, 0, applier.appliedCount())
	// Stabilizing on a rank for two consecutive polls emits exactly one
	// command regardless of the prior noise
	for range 2 {
		require.NoError(
			t,
			engine.Reconcile(ctx, accounts, rosterWith(roster.RankLeader, "#AAA")),
		)
	}
	assert.Equal(t, 1, applier.appliedCount())
	assert.Equal(t, []string{"acct-1:leader"}, applier.applied)
}

func TestEngineUnassignsDepartedMember(t *testing.T) {
	applier := newMockApplier()
	applier.roles["acct-1"] = RoleMember
	engine := newTestEngine(t, applier)
	accounts := []database.LinkedAccount{linkedAccount("acct-1", "#AAA")}
	ctx := context.Background()
	// Member left the clan; two consecutive absent polls demote to the
	// unassigned sentinel
	require.NoError(t, engine.Reconcile(ctx, accounts, nil))
	assert.Equal(t, 0, applier.appliedCount())
	require.NoError(t, engine.Reconcile(ctx, accounts, nil))
	assert.Equal(t, 1, applier.appliedCount())
	assert.Equal(t, RoleUnassigned, applier.roles["acct-1"])
}

func TestEngineFailsSoftPerAccount(t *testing.T) {
	applier := newMockApplier()
	applier.failFor["acct-1"] = errors.New("account no longer resolvable")
	engine := newTestEngine(t, applier)
	accounts := []database.LinkedAccount{
		linkedAccount("acct-1", "#AAA"),
		linkedAccount("acct-2", "#BBB"),
	}
	ctx := context.Background()
	entries := rosterWith(roster.RankElder, "#AAA", "#BBB")
	// The failing account is skipped without aborting the pass, so the
	// healthy account still settles
	require.NoError(t, engine.Reconcile(ctx, accounts, entries))
	require.NoError(t, engine.Reconcile(ctx, accounts, entries))
	require.NoError(t, engine.Reconcile(ctx, accounts, entries))
	assert.Equal(t, []string{"acct-2:elder"}, applier.applied)
}

func TestEngineMirrorFallback(t *testing.T) {
	// No applier wired: the engine tracks applied roles via the persisted
	// mirror and never emits the same role twice
	checkpoints := newMemStore()
	engine, err := NewEngine(
		EngineConfig{
			Checkpoints: checkpoints,
		},
	)
	require.NoError(t, err)
	accounts := []database.LinkedAccount{linkedAccount("acct-1", "#AAA")}
	ctx := context.Background()
	for range 4 {
		require.NoError(
			t,
			engine.Reconcile(ctx, accounts, rosterWith(roster.RankElder, "#AAA")),
		)
	}
	mirror, err := checkpoints.Get("role_sync:applied:acct-1")
	require.NoError(t, err)
	assert.Equal(t, string(RoleElder), mirror)
}
