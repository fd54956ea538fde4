// Package escalation drives the per (group,user) warning state machine.
package escalation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/executor"
	"github.com/groupwarden/warden/pkg/utils"
)

// WarningStore persists warning records.
type WarningStore interface {
	// Append records one warning and returns the new live count.
	Append(ctx context.Context, record *types.Warning) (int, error)
	Count(ctx context.Context, groupID, userID int64) (int, error)
	DeleteAll(ctx context.Context, groupID, userID int64) error
	RemoveLast(ctx context.Context, groupID, userID int64) (bool, error)
}

// ActionExecutor performs the escalation action.
type ActionExecutor interface {
	Execute(ctx context.Context, req *executor.Request) error
}

// Outcome reports what one warning did.
type Outcome struct {
	// Count is the live warning count after the event settles. Zero when
	// escalation fired.
	Count int
	// Limit is the group's warn limit at evaluation time.
	Limit int
	// Escalated is true when this warning reached the limit and the
	// action was attempted.
	Escalated bool
	// EscalationErr is set when the action was attempted but failed. The
	// counter is reset regardless so the same target cannot re-trigger
	// indefinitely.
	EscalationErr error
}

// Engine accumulates warnings and fires the configured action when the
// limit is reached. The increment-compare-reset sequence holds a per-key
// lock, so two concurrent warnings cannot both observe the limit.
type Engine struct {
	warnings WarningStore
	exec     ActionExecutor
	keys     *utils.KeyMutex
	logger   *zap.Logger
}

// New creates an escalation engine.
func New(warnings WarningStore, exec ActionExecutor, logger *zap.Logger) *Engine {
	return &Engine{
		warnings: warnings,
		exec:     exec,
		keys:     utils.NewKeyMutex(utils.DefaultKeyMutexShards),
		logger:   logger.Named("escalation"),
	}
}

// Warn appends one warning for the key and fires the policy's warn action
// if the post-increment count reaches the limit. Firing deletes every
// warning for the key in the same critical section, so no settled state
// ever shows count == limit.
func (e *Engine) Warn(
	ctx context.Context, policy *types.GroupPolicy, userID int64, reason string, issuerID int64,
) (*Outcome, error) {
	key := fmt.Sprintf("%d:%d", policy.GroupID, userID)
	e.keys.Lock(key)
	defer e.keys.Unlock(key)

	count, err := e.warnings.Append(ctx, &types.Warning{
		GroupID:  policy.GroupID,
		UserID:   userID,
		Reason:   reason,
		IssuerID: issuerID,
		IssuedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append warning: %w", err)
	}

	outcome := &Outcome{Count: count, Limit: policy.WarnLimit}

	if count < policy.WarnLimit {
		return outcome, nil
	}

	// Threshold reached: act, then reset. A failed action is reported but
	// still resets the counter so an untouchable target does not
	// re-trigger on every message.
	outcome.Escalated = true
	outcome.Count = 0

	actionErr := e.exec.Execute(ctx, &executor.Request{
		GroupID:      policy.GroupID,
		UserID:       userID,
		Action:       policy.WarnAction,
		MuteDuration: time.Duration(policy.MuteDurationSeconds) * time.Second,
	})
	if actionErr != nil {
		outcome.EscalationErr = actionErr

		e.logger.Warn("Escalation action failed",
			zap.Int64("groupID", policy.GroupID),
			zap.Int64("userID", userID),
			zap.String("action", string(policy.WarnAction)),
			zap.Error(actionErr))
	}

	if err := e.warnings.DeleteAll(ctx, policy.GroupID, userID); err != nil {
		return nil, fmt.Errorf("failed to reset warnings after escalation: %w", err)
	}

	return outcome, nil
}

// RemoveLast deletes only the most recent warning for the key and returns
// the remaining count. Removing from a clean record is a no-op.
func (e *Engine) RemoveLast(ctx context.Context, groupID, userID int64) (int, bool, error) {
	key := fmt.Sprintf("%d:%d", groupID, userID)
	e.keys.Lock(key)
	defer e.keys.Unlock(key)

	removed, err := e.warnings.RemoveLast(ctx, groupID, userID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to remove last warning: %w", err)
	}

	count, err := e.warnings.Count(ctx, groupID, userID)
	if err != nil {
		return 0, removed, fmt.Errorf("failed to count warnings: %w", err)
	}

	return count, removed, nil
}

// Clear deletes every warning for the key without any action.
func (e *Engine) Clear(ctx context.Context, groupID, userID int64) error {
	key := fmt.Sprintf("%d:%d", groupID, userID)
	e.keys.Lock(key)
	defer e.keys.Unlock(key)

	return e.warnings.DeleteAll(ctx, groupID, userID)
}

// Count returns the live warning count for the key.
func (e *Engine) Count(ctx context.Context, groupID, userID int64) (int, error) {
	return e.warnings.Count(ctx, groupID, userID)
}
