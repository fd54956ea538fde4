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
)

// FilterModel handles database operations for keyword auto-replies.
type FilterModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewFilter creates a new FilterModel instance.
func NewFilter(db *bun.DB, logger *zap.Logger) *FilterModel {
	return &FilterModel{
		db:     db,
		logger: logger.Named("db_filter"),
	}
}

// Add creates or updates a keyword filter.
func (m *FilterModel) Add(ctx context.Context, groupID int64, keyword, reply string, addedBy int64) error {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || reply == "" {
		return fmt.Errorf("%w: filter keyword and reply must not be empty", ErrInvalidConfig)
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		record := &types.Filter{
			GroupID:   groupID,
			Keyword:   keyword,
			Reply:     reply,
			AddedBy:   addedBy,
			CreatedAt: time.Now(),
		}

		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (group_id, keyword) DO UPDATE").
			Set("reply = EXCLUDED.reply").
			Set("added_by = EXCLUDED.added_by").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}

		return nil
	})
}

// Remove deletes a keyword filter. Removing a missing filter is a no-op.
func (m *FilterModel) Remove(ctx context.Context, groupID int64, keyword string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.Filter)(nil)).
			Where("group_id = ? AND keyword = ?", groupID, strings.ToLower(strings.TrimSpace(keyword))).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to remove filter: %w", err)
		}

		return nil
	})
}

// List returns all keyword filters for a group.
func (m *FilterModel) List(ctx context.Context, groupID int64) ([]*types.Filter, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Filter, error) {
		var filters []*types.Filter

		err := m.db.NewSelect().
			Model(&filters).
			Where("group_id = ?", groupID).
			Order("keyword ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list filters: %w", err)
		}

		return filters, nil
	})
}
