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

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/clanwatch/clanwatch/checkpoint"
	"github.com/clanwatch/clanwatch/event"
)

const (
	defaultRequestTimeout = 10 * time.Second

	checkpointKeyLastPeriodKey = "notify:last_period_key"
)

type WebhookSinkConfig struct {
	Logger      *slog.Logger
	EventBus    *event.EventBus
	Checkpoints checkpoint.Store
	HTTPClient  *http.Client
	URL         string
}

// WebhookSink forwards role commands and period summaries to an external
// webhook endpoint. Period summaries are deduplicated on their durable key
// so a rollover retried after a crash never posts twice.
type WebhookSink struct {
	config      WebhookSinkConfig
	roleSubId   event.EventSubscriberId
	periodSubId event.EventSubscriberId
	started     bool
}

func NewWebhookSink(cfg WebhookSinkConfig) (*WebhookSink, error) {
	if cfg.EventBus == nil {
		return nil, errors.New("no event bus provided")
	}
	if cfg.URL == "" {
		return nil, errors.New("no webhook URL provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &WebhookSink{
		config: cfg,
	}, nil
}

// Start subscribes the sink to role-command and period-closed events
func (w *WebhookSink) Start() error {
	if w.started {
		return errors.New("webhook sink already started")
	}
	w.started = true
	w.roleSubId = w.config.EventBus.SubscribeFunc(
		event.RoleCommandEventType,
		w.handleRoleCommand,
	)
	w.periodSubId = w.config.EventBus.SubscribeFunc(
		event.PeriodClosedEventType,
		w.handlePeriodClosed,
	)
	return nil
}

// Stop unsubscribes the sink from the event bus
func (w *WebhookSink) Stop() error {
	if !w.started {
		return nil
	}
	w.started = false
	w.config.EventBus.Unsubscribe(event.RoleCommandEventType, w.roleSubId)
	w.config.EventBus.Unsubscribe(event.PeriodClosedEventType, w.periodSubId)
	return nil
}

func (w *WebhookSink) handleRoleCommand(evt event.Event) {
	data, ok := evt.Data.(event.RoleCommandEvent)
	if !ok {
		return
	}
	payload := map[string]any{
		"kind":      "role_command",
		"accountId": data.AccountID,
		"newRole":   data.NewRole,
		"prevRole":  data.PrevRole,
		"at":        evt.Timestamp,
	}
	if err := w.post(payload); err != nil {
		w.config.Logger.Error(
			"failed to deliver role command",
			"component", "notify",
			"account_id", data.AccountID,
			"error", err,
		)
	}
}

func (w *WebhookSink) handlePeriodClosed(evt event.Event) {
	data, ok := evt.Data.(event.PeriodClosedEvent)
	if !ok {
		return
	}
	if w.config.Checkpoints != nil {
		lastKey, err := w.config.Checkpoints.Get(checkpointKeyLastPeriodKey)
		if err != nil && !errors.Is(err, checkpoint.ErrKeyNotFound) {
			w.config.Logger.Error(
				"failed to read period-key checkpoint",
				"component", "notify",
				"error", err,
			)
		}
		if lastKey == data.Key {
			w.config.Logger.Info(
				"dropping duplicate period summary",
				"component", "notify",
				"key", data.Key,
			)
			return
		}
	}
	payload := map[string]any{
		"kind":       "period_summary",
		"key":        data.Key,
		"periodType": data.PeriodType,
		"endAt":      data.EndAt,
	}
	if data.DayIndex != nil {
		payload["dayIndex"] = *data.DayIndex
	}
	if err := w.post(payload); err != nil {
		w.config.Logger.Error(
			"failed to deliver period summary",
			"component", "notify",
			"key", data.Key,
			"error", err,
		)
		return
	}
	if w.config.Checkpoints != nil {
		if err := w.config.Checkpoints.Set(checkpointKeyLastPeriodKey, data.Key); err != nil {
			w.config.Logger.Error(
				"failed to persist period-key checkpoint",
				"component", "notify",
				"key", data.Key,
				"error", err,
			)
		}
	}
}

func (w *WebhookSink) post(payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(
		context.Background(),
		defaultRequestTimeout,
	)
	defer cancel()
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		w.config.URL,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf(
			"webhook returned status %d: %s",
			resp.StatusCode,
			string(respBody),
		)
	}
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
