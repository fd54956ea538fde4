package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/dbretry"
	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
)

// ErrInvalidConfig indicates a setting value outside its accepted range.
// The mutation is rejected before any state changes.
var ErrInvalidConfig = errors.New("invalid configuration value")

// PolicyDefaults seeds a group policy the first time a group is seen.
type PolicyDefaults struct {
	WarnLimit      int
	WarnAction     enum.Action
	FloodLimit     int
	FloodWindow    int
	FloodAction    enum.Action
	AntilinkAction enum.Action
	CaptchaMode    enum.CaptchaMode
	CaptchaTimeout int
	MuteDuration   int
}

// PolicyModel handles database operations for per-group moderation policies.
// Every mutation is an explicit per-field setter so settings are never
// toggled through string-built column names.
type PolicyModel struct {
	db       *bun.DB
	defaults PolicyDefaults
	logger   *zap.Logger
}

// NewPolicy creates a new PolicyModel instance.
func NewPolicy(db *bun.DB, logger *zap.Logger) *PolicyModel {
	return &PolicyModel{
		db: db,
		defaults: PolicyDefaults{
			WarnLimit:      3,
			WarnAction:     enum.ActionBan,
			FloodLimit:     10,
			FloodWindow:    5,
			FloodAction:    enum.ActionMute,
			AntilinkAction: enum.ActionDelete,
			CaptchaMode:    enum.CaptchaModeButton,
			CaptchaTimeout: 300,
			MuteDuration:   0,
		},
		logger: logger.Named("db_policy"),
	}
}

// SetDefaults overrides the seed values applied to newly seen groups.
func (m *PolicyModel) SetDefaults(d PolicyDefaults) {
	m.defaults = d
}

// Get returns the policy for a group, creating it with defaults on first
// use. Policies are never deleted, only reset.
func (m *PolicyModel) Get(ctx context.Context, groupID int64) (*types.GroupPolicy, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.GroupPolicy, error) {
		policy := m.defaultPolicy(groupID)

		_, err := m.db.NewInsert().
			Model(policy).
			On("CONFLICT (group_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure policy row: %w", err)
		}

		err = m.db.NewSelect().
			Model(policy).
			Where("group_id = ?", groupID).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get policy: %w", err)
		}

		return policy, nil
	})
}

// Reset restores a group's policy to the configured defaults.
func (m *PolicyModel) Reset(ctx context.Context, groupID int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		policy := m.defaultPolicy(groupID)

		_, err := m.db.NewInsert().
			Model(policy).
			On("CONFLICT (group_id) DO UPDATE").
			Set("locks_active = EXCLUDED.locks_active").
			Set("blacklist_active = EXCLUDED.blacklist_active").
			Set("antilink_active = EXCLUDED.antilink_active").
			Set("antiflood_active = EXCLUDED.antiflood_active").
			Set("captcha_active = EXCLUDED.captcha_active").
			Set("warn_limit = EXCLUDED.warn_limit").
			Set("warn_action = EXCLUDED.warn_action").
			Set("flood_limit = EXCLUDED.flood_limit").
			Set("flood_window_seconds = EXCLUDED.flood_window_seconds").
			Set("flood_action = EXCLUDED.flood_action").
			Set("antilink_action = EXCLUDED.antilink_action").
			Set("locked_types = EXCLUDED.locked_types").
			Set("captcha_mode = EXCLUDED.captcha_mode").
			Set("captcha_timeout_seconds = EXCLUDED.captcha_timeout_seconds").
			Set("mute_duration_seconds = EXCLUDED.mute_duration_seconds").
			Set("night_mode_active = EXCLUDED.night_mode_active").
			Set("night_start_hour = EXCLUDED.night_start_hour").
			Set("night_end_hour = EXCLUDED.night_end_hour").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to reset policy: %w", err)
		}

		return nil
	})
}

// SetWarnLimit sets the escalation threshold for a group.
func (m *PolicyModel) SetWarnLimit(ctx context.Context, groupID int64, limit int) error {
	if limit < 1 {
		return fmt.Errorf("%w: warn limit must be >= 1, got %d", ErrInvalidConfig, limit)
	}

	return m.setColumn(ctx, groupID, "warn_limit", limit)
}

// SetWarnAction sets the action taken when the warn limit is reached.
func (m *PolicyModel) SetWarnAction(ctx context.Context, groupID int64, action enum.Action) error {
	if !action.EscalationAction() {
		return fmt.Errorf("%w: %q is not a valid warn action", ErrInvalidConfig, action)
	}

	return m.setColumn(ctx, groupID, "warn_action", action)
}

// SetAntiflood configures the flood detector for a group. A zero window
// keeps the current one.
func (m *PolicyModel) SetAntiflood(
	ctx context.Context, groupID int64, enabled bool, limit int, windowSeconds int, action enum.Action,
) error {
	if enabled {
		if limit < 1 {
			return fmt.Errorf("%w: flood limit must be >= 1, got %d", ErrInvalidConfig, limit)
		}

		if !action.EscalationAction() {
			return fmt.Errorf("%w: %q is not a valid flood action", ErrInvalidConfig, action)
		}
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.Get(ctx, groupID); err != nil {
			return err
		}

		query := m.db.NewUpdate().
			Model((*types.GroupPolicy)(nil)).
			Set("antiflood_active = ?", enabled).
			Set("updated_at = ?", time.Now()).
			Where("group_id = ?", groupID)

		if enabled {
			query = query.
				Set("flood_limit = ?", limit).
				Set("flood_action = ?", action)
			if windowSeconds > 0 {
				query = query.Set("flood_window_seconds = ?", windowSeconds)
			}
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to set antiflood: %w", err)
		}

		return nil
	})
}

// SetAntilink enables or disables the link filter and its action.
func (m *PolicyModel) SetAntilink(ctx context.Context, groupID int64, enabled bool, action enum.Action) error {
	if enabled && !action.Valid() {
		return fmt.Errorf("%w: %q is not a valid antilink action", ErrInvalidConfig, action)
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.Get(ctx, groupID); err != nil {
			return err
		}

		query := m.db.NewUpdate().
			Model((*types.GroupPolicy)(nil)).
			Set("antilink_active = ?", enabled).
			Set("updated_at = ?", time.Now()).
			Where("group_id = ?", groupID)
		if enabled {
			query = query.Set("antilink_action = ?", action)
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to set antilink: %w", err)
		}

		return nil
	})
}

// SetBlacklistActive enables or disables the blacklist stage.
func (m *PolicyModel) SetBlacklistActive(ctx context.Context, groupID int64, enabled bool) error {
	return m.setColumn(ctx, groupID, "blacklist_active", enabled)
}

// Lock adds a content type to the locked set.
func (m *PolicyModel) Lock(ctx context.Context, groupID int64, ct enum.ContentType) error {
	if !ct.Valid() {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidConfig, ct)
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		policy, err := m.Get(ctx, groupID)
		if err != nil {
			return err
		}

		if policy.Locked(ct) {
			return nil
		}

		locked := append(policy.LockedTypes, ct)

		_, err = m.db.NewUpdate().
			Model((*types.GroupPolicy)(nil)).
			Set("locked_types = ?", locked).
			Set("locks_active = ?", true).
			Set("updated_at = ?", time.Now()).
			Where("group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to lock content type: %w", err)
		}

		return nil
	})
}

// Unlock removes a content type from the locked set. Unlocking a type that
// is not locked is a no-op.
func (m *PolicyModel) Unlock(ctx context.Context, groupID int64, ct enum.ContentType) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		policy, err := m.Get(ctx, groupID)
		if err != nil {
			return err
		}

		locked := make([]enum.ContentType, 0, len(policy.LockedTypes))
		for _, t := range policy.LockedTypes {
			if t != ct {
				locked = append(locked, t)
			}
		}

		if len(locked) == len(policy.LockedTypes) {
			return nil
		}

		_, err = m.db.NewUpdate().
			Model((*types.GroupPolicy)(nil)).
			Set("locked_types = ?", locked).
			Set("locks_active = ?", len(locked) > 0).
			Set("updated_at = ?", time.Now()).
			Where("group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to unlock content type: %w", err)
		}

		return nil
	})
}

// SetCaptcha enables or disables join-time verification and its mode.
func (m *PolicyModel) SetCaptcha(ctx context.Context, groupID int64, enabled bool, mode enum.CaptchaMode) error {
	if enabled && !mode.Valid() {
		return fmt.Errorf("%w: %q is not a valid captcha mode", ErrInvalidConfig, mode)
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.Get(ctx, groupID); err != nil {
			return err
		}

		query := m.db.NewUpdate().
			Model((*types.GroupPolicy)(nil)).
			Set("captcha_active = ?", enabled).
			Set("updated_at = ?", time.Now()).
			Where("group_id = ?", groupID)
		if enabled {
			query = query.Set("captcha_mode = ?", mode)
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to set captcha: %w", err)
		}

		return nil
	})
}

// SetNightMode configures the night-mode window for a group.
func (m *PolicyModel) SetNightMode(ctx context.Context, groupID int64, enabled bool, startHour, endHour int) error {
	if enabled && (startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23) {
		return fmt.Errorf("%w: night mode hours must be 0-23, got %d-%d", ErrInvalidConfig, startHour, endHour)
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.Get(ctx, groupID); err != nil {
			return err
		}

		query := m.db.NewUpdate().
			Model((*types.GroupPolicy)(nil)).
			Set("night_mode_active = ?", enabled).
			Set("updated_at = ?", time.Now()).
			Where("group_id = ?", groupID)
		if enabled {
			query = query.
				Set("night_start_hour = ?", startHour).
				Set("night_end_hour = ?", endHour)
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to set night mode: %w", err)
		}

		return nil
	})
}

// SetMuteDuration sets the mute length applied by mute actions.
func (m *PolicyModel) SetMuteDuration(ctx context.Context, groupID int64, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: mute duration must be >= 0, got %d", ErrInvalidConfig, seconds)
	}

	return m.setColumn(ctx, groupID, "mute_duration_seconds", seconds)
}

// setColumn updates one named column after ensuring the policy row exists.
func (m *PolicyModel) setColumn(ctx context.Context, groupID int64, column string, value any) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.Get(ctx, groupID); err != nil {
			return err
		}

		_, err := m.db.NewUpdate().
			Model((*types.GroupPolicy)(nil)).
			Set(column+" = ?", value).
			Set("updated_at = ?", time.Now()).
			Where("group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set %s: %w", column, err)
		}

		return nil
	})
}

// defaultPolicy builds a policy row seeded with the configured defaults.
func (m *PolicyModel) defaultPolicy(groupID int64) *types.GroupPolicy {
	return &types.GroupPolicy{
		GroupID:               groupID,
		WarnLimit:             m.defaults.WarnLimit,
		WarnAction:            m.defaults.WarnAction,
		FloodLimit:            m.defaults.FloodLimit,
		FloodWindowSeconds:    m.defaults.FloodWindow,
		FloodAction:           m.defaults.FloodAction,
		AntilinkAction:        m.defaults.AntilinkAction,
		LockedTypes:           []enum.ContentType{},
		CaptchaMode:           m.defaults.CaptchaMode,
		CaptchaTimeoutSeconds: m.defaults.CaptchaTimeout,
		MuteDurationSeconds:   m.defaults.MuteDuration,
		UpdatedAt:             time.Now(),
	}
}
