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

import "errors"

// ErrKeyNotFound is returned by Get when no value exists for a key
var ErrKeyNotFound = errors.New("checkpoint key not found")

// Store is a durable key/value map used to persist every stateful decision
// made by the reconciliation and rollover engines. Writes are single-key
// and last-write-wins; implementations must guarantee that a Set is atomic
// so that a crash never leaves a partially written value behind.
type Store interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Delete(key string) error
	Close() error
}
