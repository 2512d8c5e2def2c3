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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderFetchRoster(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/clans/%23CLAN/members", r.URL.EscapedPath())
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"items": [
					{"tag": "#AAA", "name": "Alpha", "role": "leader"}
				]
			}`))
		}),
	)
	defer server.Close()
	provider := NewHTTPProvider(
		server.URL,
		WithAPIToken("test-token"),
	)
	entries, err := provider.FetchRoster(context.Background(), "#CLAN")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "#AAA", entries[0].MemberID)
	assert.Equal(t, RankLeader, entries[0].Rank)
}

func TestHTTPProviderFetchCurrentSnapshot(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(
				t,
				"/clans/%23CLAN/currentriverrace",
				r.URL.EscapedPath(),
			)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"periodType": "warDay",
				"periodIndex": 4,
				"clan": {
					"participants": [
						{"tag": "#AAA", "decksUsed": 3, "fame": 300}
					]
				}
			}`))
		}),
	)
	defer server.Close()
	provider := NewHTTPProvider(server.URL)
	snapshot, err := provider.FetchCurrentSnapshot(context.Background(), "#CLAN")
	require.NoError(t, err)
	assert.Equal(t, PeriodTypeWarDay, snapshot.PeriodType)
	require.NotNil(t, snapshot.RawIndex)
	assert.Equal(t, 4, *snapshot.RawIndex)
	require.Len(t, snapshot.Participants, 1)
	assert.False(t, snapshot.FetchedAt.IsZero())
}

func TestHTTPProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"reason":"accessDenied"}`, http.StatusForbidden)
		}),
	)
	defer server.Close()
	provider := NewHTTPProvider(server.URL)
	_, err := provider.FetchRoster(context.Background(), "#CLAN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}
