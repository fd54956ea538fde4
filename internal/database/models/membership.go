package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/dbretry"
	"github.com/groupwarden/warden/internal/database/types"
)

// MembershipModel handles database operations for per-group member state.
type MembershipModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewMembership creates a new MembershipModel instance.
func NewMembership(db *bun.DB, logger *zap.Logger) *MembershipModel {
	return &MembershipModel{
		db:     db,
		logger: logger.Named("db_membership"),
	}
}

// SetApproved marks a member approved or unapproved. The upsert is
// idempotent; calling it twice leaves exactly one record.
func (m *MembershipModel) SetApproved(ctx context.Context, groupID, userID int64, approved bool) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		record := &types.Membership{
			GroupID:   groupID,
			UserID:    userID,
			Approved:  approved,
			UpdatedAt: time.Now(),
		}

		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (group_id, user_id) DO UPDATE").
			Set("approved = EXCLUDED.approved").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set approved flag: %w", err)
		}

		return nil
	})
}

// IsApproved reports whether a member bypasses the content stages.
// Missing records mean not approved.
func (m *MembershipModel) IsApproved(ctx context.Context, groupID, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		var record types.Membership

		err := m.db.NewSelect().
			Model(&record).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}

			return false, fmt.Errorf("failed to check approved flag: %w", err)
		}

		return record.Approved, nil
	})
}

// IncrementMessageCount bumps the informational message counter.
func (m *MembershipModel) IncrementMessageCount(ctx context.Context, groupID, userID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		record := &types.Membership{
			GroupID:      groupID,
			UserID:       userID,
			MessageCount: 1,
			UpdatedAt:    time.Now(),
		}

		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (group_id, user_id) DO UPDATE").
			Set("message_count = memberships.message_count + 1").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment message count: %w", err)
		}

		return nil
	})
}
