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

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrAccountNotFound is returned when no linked account matches a lookup
var ErrAccountNotFound = errors.New("linked account not found")

// LinkedAccount maps a downstream account to an upstream clan member.
// Rows are created on successful link validation and deleted on unlink;
// the role reconciliation engine only ever reads them.
type LinkedAccount struct {
	ID               uint   `gorm:"primaryKey"`
	AccountID        string `gorm:"uniqueIndex"`
	ExternalMemberID string `gorm:"uniqueIndex"`
	LinkedAt         time.Time
}

func (LinkedAccount) TableName() string {
	return "linked_account"
}

// LinkAccount creates a link between a downstream account and an upstream
// member. Linking either side a second time replaces the existing link.
func (d *Database) LinkAccount(
	ctx context.Context,
	accountId string,
	externalMemberId string,
) (*LinkedAccount, error) {
	account := &LinkedAccount{
		AccountID:        accountId,
		ExternalMemberID: externalMemberId,
		LinkedAt:         time.Now(),
	}
	err := d.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Remove any existing link for either identity so the unique
		// indexes hold
		if result := tx.Where(
			"account_id = ? OR external_member_id = ?",
			accountId,
			externalMemberId,
		).Delete(&LinkedAccount{}); result.Error != nil {
			return result.Error
		}
		if result := tx.Create(account); result.Error != nil {
			return result.Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to link account: %w", err)
	}
	return account, nil
}

// UnlinkAccount removes the link for a downstream account. Unlinking an
// account with no link is a no-op.
func (d *Database) UnlinkAccount(ctx context.Context, accountId string) error {
	result := d.DB().WithContext(ctx).
		Where("account_id = ?", accountId).
		Delete(&LinkedAccount{})
	if result.Error != nil {
		return fmt.Errorf("failed to unlink account: %w", result.Error)
	}
	return nil
}

// LinkedAccounts returns the full linked-account table
func (d *Database) LinkedAccounts(ctx context.Context) ([]LinkedAccount, error) {
	var accounts []LinkedAccount
	result := d.DB().WithContext(ctx).
		Order("linked_at").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", result.Error)
	}
	return accounts, nil
}

// LinkedAccountByMember looks up a link by upstream member identity
func (d *Database) LinkedAccountByMember(
	ctx context.Context,
	externalMemberId string,
) (*LinkedAccount, error) {
	var account LinkedAccount
	result := d.DB().WithContext(ctx).
		Where("external_member_id = ?", externalMemberId).
		First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lookup linked account: %w", result.Error)
	}
	return &account, nil
}
