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

package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStoreInMemory(t *testing.T) {
	store, err := NewBadgerStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get("role_sync:pending:acct-1")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Set("role_sync:pending:acct-1", `{"v":1}`))
	val, err := store.Get("role_sync:pending:acct-1")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, val)

	// Overwrite
	require.NoError(t, store.Set("role_sync:pending:acct-1", `{"v":2}`))
	val, err = store.Get("role_sync:pending:acct-1")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, val)

	require.NoError(t, store.Delete("role_sync:pending:acct-1"))
	_, err = store.Get("role_sync:pending:acct-1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBadgerStorePersistence(t *testing.T) {
	dataDir := t.TempDir()
	store, err := NewBadgerStore(
		WithDataDir(dataDir),
	)
	require.NoError(t, err)
	require.NoError(t, store.Set("period:last_emitted_key", "warDay:3@1767225600"))
	require.NoError(t, store.Close())

	// Reopen from the same directory
	reopened, err := NewBadgerStore(
		WithDataDir(dataDir),
	)
	require.NoError(t, err)
	defer reopened.Close()
	val, err := reopened.Get("period:last_emitted_key")
	require.NoError(t, err)
	assert.Equal(t, "warDay:3@1767225600", val)
}

func TestBadgerStoreDeleteMissingKey(t *testing.T) {
	store, err := NewBadgerStore()
	require.NoError(t, err)
	defer store.Close()
	// Deleting a key that was never written is not an error
	assert.NoError(t, store.Delete("period:last_identity"))
}
