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

// RoleCommandEventType is the event type for settled role changes
const RoleCommandEventType = EventType("role.command")

// RoleCommandEvent is emitted when the role reconciliation engine has
// settled on a new downstream role for a linked account. Applying the same
// role twice is a no-op downstream, so consumers may treat delivery as
// at-least-once.
type RoleCommandEvent struct {
	// AccountID is the downstream account identity
	AccountID string
	// NewRole is the settled role, "unassigned" for the restricted state
	NewRole string
	// PrevRole is the role that was applied before this command
	PrevRole string
}
