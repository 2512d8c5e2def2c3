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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/clanwatch/clanwatch/checkpoint"
	"github.com/clanwatch/clanwatch/database"
	"github.com/clanwatch/clanwatch/period"
	"github.com/clanwatch/clanwatch/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
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

func intPtr(i int) *int {
	return &i
}

func newTestApi(t *testing.T) (*Api, *period.HistoryStore, *database.Database) {
	t.Helper()
	history, err := period.NewHistoryStore(
		period.HistoryStoreConfig{
			Checkpoints: newMemStore(),
		},
	)
	require.NoError(t, err)
	db, err := database.New(t.TempDir(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return New(Config{}, history, db, nil), history, db
}

func TestHealthAndRoot(t *testing.T) {
	a, _, _ := newTestApi(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.True(t, health.Healthy)

	resp2, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var info infoResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&info))
	assert.Equal(t, "clanwatch", info.Name)
}

func TestPeriodQueries(t *testing.T) {
	a, history, _ := newTestApi(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	// Empty history returns 404
	resp, err := http.Get(srv.URL + "/api/v1/periods/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	endAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, history.Append(period.ClosedSnapshot{
		Key:        "warDay:1@100",
		EndAt:      endAt.Add(-24 * time.Hour),
		PeriodType: roster.PeriodTypeWarDay,
		DayIndex:   intPtr(1),
	}))
	require.NoError(t, history.Append(period.ClosedSnapshot{
		Key:        "warDay:2@200",
		EndAt:      endAt,
		PeriodType: roster.PeriodTypeWarDay,
		DayIndex:   intPtr(2),
	}))

	resp, err = http.Get(srv.URL + "/api/v1/periods/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var latest period.ClosedSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	assert.Equal(t, "warDay:2@200", latest.Key)

	resp, err = http.Get(srv.URL + "/api/v1/periods/ago/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ago period.ClosedSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ago))
	assert.Equal(t, "warDay:1@100", ago.Key)

	resp, err = http.Get(srv.URL + "/api/v1/periods/ago/5")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/periods/ago/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/periods/day/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var byDay period.ClosedSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&byDay))
	assert.Equal(t, "warDay:1@100", byDay.Key)
}

func TestAccountListing(t *testing.T) {
	a, _, db := newTestApi(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	_, err := db.LinkAccount(context.Background(), "acct-1", "#AAA")
	require.NoError(t, err)
	_, err = db.LinkAccount(context.Background(), "acct-2", "#BBB")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/accounts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accounts []accountResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accounts))
	require.Len(t, accounts, 2)
	assert.Equal(t, "acct-1", accounts[0].AccountID)
	assert.Equal(t, "#AAA", accounts[0].ExternalMemberID)
}

func TestStartAndStop(t *testing.T) {
	a, _, _ := newTestApi(t)
	a.config.ListenAddress = "127.0.0.1:0"

	// Binding port 0 exercises the listen-first startup path
	require.NoError(t, a.Start(context.Background()))
	require.Error(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
}