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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/clanwatch/clanwatch/checkpoint"
	"github.com/clanwatch/clanwatch/database"
	"github.com/clanwatch/clanwatch/event"
	"github.com/clanwatch/clanwatch/roster"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// settleThreshold is the number of consecutive agreeing polls required
	// before a role change is applied downstream. Upstream rank data can be
	// transiently stale across adjacent polls, so a single observation is
	// never acted on.
	settleThreshold = 2

	// agreementCap bounds the persisted agreement counter so long-settled
	// accounts don't accumulate meaningless large values
	agreementCap = 5

	checkpointKeyPendingPrefix = "role_sync:pending:"
	checkpointKeyAppliedPrefix = "role_sync:applied:"

	settleSchemaVersion = 1
)

// SettleState is the per-account hysteresis record. It is created lazily
// on the first poll that sees an account and updated every poll after
// that. Stale entries for unlinked accounts are harmless.
type SettleState struct {
	SchemaVersion         int  `json:"schemaVersion"`
	DesiredRole           Role `json:"desiredRole"`
	ConsecutiveAgreements int  `json:"consecutiveAgreements"`
}

type EngineConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Checkpoints  checkpoint.Store
	Applier      Applier
}

// Engine reconciles downstream roles against the upstream roster. Each
// pass compares every linked account's clan rank to its downstream role
// and commands a change only after the desired role has settled.
type Engine struct {
	config  EngineConfig
	metrics *engineMetrics
}

type engineMetrics struct {
	commands *prometheus.CounterVec
	errors   prometheus.Counter
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Checkpoints == nil {
		return nil, errors.New("no checkpoint store provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		config: cfg,
	}
	if cfg.PromRegistry != nil {
		e.registerMetrics(cfg.PromRegistry)
	}
	return e, nil
}

func (e *Engine) registerMetrics(promRegistry prometheus.Registerer) {
	commands := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolesync_commands_total",
			Help: "Total number of role-set commands emitted",
		},
		[]string{"role"},
	)
	errs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rolesync_account_errors_total",
			Help: "Total number of per-account reconciliation errors skipped",
		},
	)
	promRegistry.MustRegister(commands, errs)
	e.metrics = &engineMetrics{
		commands: commands,
		errors:   errs,
	}
}

// Reconcile runs one full reconciliation pass over the linked-account
// table against a freshly fetched roster. Per-account failures are logged
// and skipped; they never abort the pass.
func (e *Engine) Reconcile(
	ctx context.Context,
	accounts []database.LinkedAccount,
	entries []roster.RosterEntry,
) error {
	byMember := make(map[string]roster.RosterEntry, len(entries))
	for _, entry := range entries {
		byMember[entry.MemberID] = entry
	}
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.reconcileAccount(ctx, account, byMember); err != nil {
			if e.metrics != nil {
				e.metrics.errors.Inc()
			}
			e.config.Logger.Warn(
				"skipping account after reconcile error",
				"component", "rolesync",
				"account_id", account.AccountID,
				"error", err,
			)
		}
	}
	return nil
}

func (e *Engine) reconcileAccount(
	ctx context.Context,
	account database.LinkedAccount,
	byMember map[string]roster.RosterEntry,
) error {
	newDesired := RoleUnassigned
	if entry, ok := byMember[account.ExternalMemberID]; ok {
		newDesired = RoleFromRank(entry.Rank)
	}
	applied, appliedKnown, err := e.appliedRole(ctx, account.AccountID)
	if err != nil {
		return err
	}
	if appliedKnown && applied == newDesired {
		// Already settled downstream, refresh the settle state and skip
		return e.persistSettleState(
			account.AccountID,
			SettleState{
				SchemaVersion:         settleSchemaVersion,
				DesiredRole:           newDesired,
				ConsecutiveAgreements: settleThreshold,
			},
		)
	}
	state, err := e.settleState(account.AccountID)
	if err != nil {
		return err
	}
	if state.DesiredRole == newDesired {
		state.ConsecutiveAgreements++
		if state.ConsecutiveAgreements > agreementCap {
			state.ConsecutiveAgreements = agreementCap
		}
	} else {
		state = SettleState{
			SchemaVersion:         settleSchemaVersion,
			DesiredRole:           newDesired,
			ConsecutiveAgreements: 1,
		}
	}
	if state.ConsecutiveAgreements >= settleThreshold {
		if err := e.applyRole(ctx, account.AccountID, applied, newDesired); err != nil {
			return err
		}
	}
	return e.persistSettleState(account.AccountID, state)
}

// applyRole commands the downstream role change and records it in the
// applied-role mirror checkpoint
func (e *Engine) applyRole(
	ctx context.Context,
	accountId string,
	prev Role,
	role Role,
) error {
	if e.config.Applier != nil {
		if err := e.config.Applier.ApplyRole(ctx, accountId, role); err != nil {
			return fmt.Errorf("failed to apply role: %w", err)
		}
	}
	if e.config.EventBus != nil {
		e.config.EventBus.Publish(
			event.RoleCommandEventType,
			event.NewEvent(
				event.RoleCommandEventType,
				event.RoleCommandEvent{
					AccountID: accountId,
					NewRole:   string(role),
					PrevRole:  string(prev),
				},
			),
		)
	}
	if err := e.config.Checkpoints.Set(
		checkpointKeyAppliedPrefix+accountId,
		string(role),
	); err != nil {
		return fmt.Errorf("failed to persist applied role: %w", err)
	}
	if e.metrics != nil {
		e.metrics.commands.WithLabelValues(string(role)).Inc()
	}
	e.config.Logger.Info(
		"role change applied",
		"component", "rolesync",
		"account_id", accountId,
		"prev_role", prev,
		"new_role", role,
	)
	return nil
}

// appliedRole resolves the account's currently applied downstream role.
// It prefers the live Applier when one is wired and falls back to the
// persisted mirror of the last commanded role.
func (e *Engine) appliedRole(
	ctx context.Context,
	accountId string,
) (Role, bool, error) {
	if e.config.Applier != nil {
		role, err := e.config.Applier.CurrentRole(ctx, accountId)
		if err != nil {
			return RoleUnassigned, false, fmt.Errorf(
				"failed to resolve current role: %w",
				err,
			)
		}
		return role, true, nil
	}
	val, err := e.config.Checkpoints.Get(checkpointKeyAppliedPrefix + accountId)
	if err != nil {
		if errors.Is(err, checkpoint.ErrKeyNotFound) {
			return RoleUnassigned, false, nil
		}
		return RoleUnassigned, false, fmt.Errorf(
			"failed to read applied-role checkpoint: %w",
			err,
		)
	}
	return Role(val), true, nil
}

func (e *Engine) settleState(accountId string) (SettleState, error) {
	state := SettleState{
		SchemaVersion:         settleSchemaVersion,
		DesiredRole:           RoleUnassigned,
		ConsecutiveAgreements: 0,
	}
	val, err := e.config.Checkpoints.Get(checkpointKeyPendingPrefix + accountId)
	if err != nil {
		if errors.Is(err, checkpoint.ErrKeyNotFound) {
			return state, nil
		}
		return state, fmt.Errorf("failed to read settle checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return state, fmt.Errorf("failed to decode settle checkpoint: %w", err)
	}
	return state, nil
}

func (e *Engine) persistSettleState(accountId string, state SettleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode settle checkpoint: %w", err)
	}
	if err := e.config.Checkpoints.Set(
		checkpointKeyPendingPrefix+accountId,
		string(data),
	); err != nil {
		return fmt.Errorf("failed to persist settle checkpoint: %w", err)
	}
	return nil
}
