package models

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/dbretry"
	"github.com/groupwarden/warden/internal/database/types"
)

// WarningModel handles database operations for warning records. Records
// are append-only; escalation deletes all rows for a key in one statement.
type WarningModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewWarning creates a new WarningModel instance.
func NewWarning(db *bun.DB, logger *zap.Logger) *WarningModel {
	return &WarningModel{
		db:     db,
		logger: logger.Named("db_warning"),
	}
}

// Append records one warning and returns the new live count for the key.
func (m *WarningModel) Append(ctx context.Context, record *types.Warning) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		var count int

		err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert warning: %w", err)
			}

			c, err := tx.NewSelect().
				Model((*types.Warning)(nil)).
				Where("group_id = ? AND user_id = ?", record.GroupID, record.UserID).
				Count(ctx)
			if err != nil {
				return fmt.Errorf("failed to count warnings: %w", err)
			}

			count = c

			return nil
		})

		return count, err
	})
}

// Count returns the live warning count for a (group,user) key.
func (m *WarningModel) Count(ctx context.Context, groupID, userID int64) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.Warning)(nil)).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count warnings: %w", err)
		}

		return count, nil
	})
}

// List returns all live warnings for a key, oldest first.
func (m *WarningModel) List(ctx context.Context, groupID, userID int64) ([]*types.Warning, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Warning, error) {
		var warnings []*types.Warning

		err := m.db.NewSelect().
			Model(&warnings).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Order("issued_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list warnings: %w", err)
		}

		return warnings, nil
	})
}

// DeleteAll removes every warning for a key. Called when escalation fires
// or an admin clears the record.
func (m *WarningModel) DeleteAll(ctx context.Context, groupID, userID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.Warning)(nil)).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete warnings: %w", err)
		}

		return nil
	})
}

// RemoveLast deletes only the most recent warning for a key. Returns true
// if a record was removed.
func (m *WarningModel) RemoveLast(ctx context.Context, groupID, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewDelete().
			Model((*types.Warning)(nil)).
			Where("id = (?)", m.db.NewSelect().
				Model((*types.Warning)(nil)).
				Column("id").
				Where("group_id = ? AND user_id = ?", groupID, userID).
				Order("issued_at DESC").
				Limit(1)).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to remove last warning: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, err
		}

		return affected > 0, nil
	})
}
