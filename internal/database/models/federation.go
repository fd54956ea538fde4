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

// ErrFederationNotFound indicates an operation referenced a federation
// that does not exist.
var ErrFederationNotFound = errors.New("federation not found")

// FederationModel handles database operations for federations and their
// admin, ban and member-group sets.
type FederationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewFederation creates a new FederationModel instance.
func NewFederation(db *bun.DB, logger *zap.Logger) *FederationModel {
	return &FederationModel{
		db:     db,
		logger: logger.Named("db_federation"),
	}
}

// Create inserts a new federation.
func (m *FederationModel) Create(ctx context.Context, fed *types.Federation) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().Model(fed).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create federation: %w", err)
		}

		return nil
	})
}

// Get returns a federation by ID.
func (m *FederationModel) Get(ctx context.Context, fedID string) (*types.Federation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Federation, error) {
		var fed types.Federation

		err := m.db.NewSelect().
			Model(&fed).
			Where("id = ?", fedID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrFederationNotFound
			}

			return nil, fmt.Errorf("failed to get federation: %w", err)
		}

		return &fed, nil
	})
}

// Delete removes a federation and cascades to its admin, ban and group sets.
func (m *FederationModel) Delete(ctx context.Context, fedID string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		return m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, model := range []any{
				(*types.FedBan)(nil),
				(*types.FedAdmin)(nil),
			} {
				if _, err := tx.NewDelete().Model(model).Where("fed_id = ?", fedID).Exec(ctx); err != nil {
					return fmt.Errorf("failed to delete federation set for %T: %w", model, err)
				}
			}

			// Detach member groups
			if _, err := tx.NewDelete().
				Model((*types.FedGroup)(nil)).
				Where("fed_id = ?", fedID).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to detach member groups: %w", err)
			}

			if _, err := tx.NewDelete().
				Model((*types.Federation)(nil)).
				Where("id = ?", fedID).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete federation: %w", err)
			}

			return nil
		})
	})
}

// AddAdmin adds a delegated admin. Adding an existing admin is a no-op.
func (m *FederationModel) AddAdmin(ctx context.Context, fedID string, userID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(&types.FedAdmin{FedID: fedID, UserID: userID}).
			On("CONFLICT (fed_id, user_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add federation admin: %w", err)
		}

		return nil
	})
}

// RemoveAdmin removes a delegated admin.
func (m *FederationModel) RemoveAdmin(ctx context.Context, fedID string, userID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.FedAdmin)(nil)).
			Where("fed_id = ? AND user_id = ?", fedID, userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to remove federation admin: %w", err)
		}

		return nil
	})
}

// IsAdmin reports whether a user is the owner or a delegated admin.
func (m *FederationModel) IsAdmin(ctx context.Context, fedID string, userID int64) (bool, error) {
	fed, err := m.Get(ctx, fedID)
	if err != nil {
		return false, err
	}

	if fed.OwnerID == userID {
		return true, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		exists, err := m.db.NewSelect().
			Model((*types.FedAdmin)(nil)).
			Where("fed_id = ? AND user_id = ?", fedID, userID).
			Exists(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to check federation admin: %w", err)
		}

		return exists, nil
	})
}

// JoinGroup attaches a group to a federation. A group belongs to at most
// one federation; re-joining moves it (last writer wins).
func (m *FederationModel) JoinGroup(ctx context.Context, fedID string, groupID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		record := &types.FedGroup{
			GroupID:  groupID,
			FedID:    fedID,
			JoinedAt: time.Now(),
		}

		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (group_id) DO UPDATE").
			Set("fed_id = EXCLUDED.fed_id").
			Set("joined_at = EXCLUDED.joined_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to join group to federation: %w", err)
		}

		return nil
	})
}

// LeaveGroup detaches a group from whichever federation it belongs to.
func (m *FederationModel) LeaveGroup(ctx context.Context, groupID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.FedGroup)(nil)).
			Where("group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to detach group: %w", err)
		}

		return nil
	})
}

// MemberGroups returns the IDs of all member groups of a federation.
func (m *FederationModel) MemberGroups(ctx context.Context, fedID string) ([]int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]int64, error) {
		var groupIDs []int64

		err := m.db.NewSelect().
			Model((*types.FedGroup)(nil)).
			Column("group_id").
			Where("fed_id = ?", fedID).
			Scan(ctx, &groupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list member groups: %w", err)
		}

		return groupIDs, nil
	})
}

// GroupFederation returns the federation a group belongs to, or "" if none.
func (m *FederationModel) GroupFederation(ctx context.Context, groupID int64) (string, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (string, error) {
		var record types.FedGroup

		err := m.db.NewSelect().
			Model(&record).
			Where("group_id = ?", groupID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil
			}

			return "", fmt.Errorf("failed to get group federation: %w", err)
		}

		return record.FedID, nil
	})
}

// AddBan records a ban on the federation's list. The list is the durable
// decision; fan-out to member groups happens afterwards.
func (m *FederationModel) AddBan(ctx context.Context, record *types.FedBan) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (fed_id, user_id) DO UPDATE").
			Set("reason = EXCLUDED.reason").
			Set("banned_by = EXCLUDED.banned_by").
			Set("banned_at = EXCLUDED.banned_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add federation ban: %w", err)
		}

		return nil
	})
}

// RemoveBan removes a ban from the federation's list. Returns true if a
// ban was removed, false if the user wasn't banned.
func (m *FederationModel) RemoveBan(ctx context.Context, fedID string, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewDelete().
			Model((*types.FedBan)(nil)).
			Where("fed_id = ? AND user_id = ?", fedID, userID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to remove federation ban: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, err
		}

		return affected > 0, nil
	})
}

// IsBanned checks if a user is on the federation's ban list.
func (m *FederationModel) IsBanned(ctx context.Context, fedID string, userID int64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		exists, err := m.db.NewSelect().
			Model((*types.FedBan)(nil)).
			Where("fed_id = ? AND user_id = ?", fedID, userID).
			Exists(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to check federation ban: %w", err)
		}

		return exists, nil
	})
}

// Bans returns the full ban list of a federation. Used to re-apply bans to
// a newly joined group.
func (m *FederationModel) Bans(ctx context.Context, fedID string) ([]*types.FedBan, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.FedBan, error) {
		var bans []*types.FedBan

		err := m.db.NewSelect().
			Model(&bans).
			Where("fed_id = ?", fedID).
			Order("banned_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list federation bans: %w", err)
		}

		return bans, nil
	})
}
