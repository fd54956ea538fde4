package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/dbretry"
	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
)

// BlacklistModel handles database operations for per-group trigger words.
type BlacklistModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewBlacklist creates a new BlacklistModel instance.
func NewBlacklist(db *bun.DB, logger *zap.Logger) *BlacklistModel {
	return &BlacklistModel{
		db:     db,
		logger: logger.Named("db_blacklist"),
	}
}

// Add creates or updates a trigger word. Words are stored lowercase so
// matching stays case-insensitive.
func (m *BlacklistModel) Add(ctx context.Context, groupID int64, word string, action enum.Action, addedBy int64) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q is not a valid blacklist action", ErrInvalidConfig, action)
	}

	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return fmt.Errorf("%w: blacklist word must not be empty", ErrInvalidConfig)
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		record := &types.BlacklistWord{
			GroupID:   groupID,
			Word:      word,
			Action:    action,
			AddedBy:   addedBy,
			CreatedAt: time.Now(),
		}

		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (group_id, word) DO UPDATE").
			Set("action = EXCLUDED.action").
			Set("added_by = EXCLUDED.added_by").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add blacklist word: %w", err)
		}

		return nil
	})
}

// Remove deletes a trigger word. Removing a missing word is a no-op.
func (m *BlacklistModel) Remove(ctx context.Context, groupID int64, word string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.BlacklistWord)(nil)).
			Where("group_id = ? AND word = ?", groupID, strings.ToLower(strings.TrimSpace(word))).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to remove blacklist word: %w", err)
		}

		return nil
	})
}

// List returns all trigger words for a group.
func (m *BlacklistModel) List(ctx context.Context, groupID int64) ([]*types.BlacklistWord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.BlacklistWord, error) {
		var words []*types.BlacklistWord

		err := m.db.NewSelect().
			Model(&words).
			Where("group_id = ?", groupID).
			Order("word ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blacklist words: %w", err)
		}

		return words, nil
	})
}
