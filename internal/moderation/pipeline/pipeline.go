// Package pipeline evaluates one inbound message against the ordered
// content filters of a group.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/moderation/permission"
)

// BlacklistStore supplies the trigger words of a group.
type BlacklistStore interface {
	List(ctx context.Context, groupID int64) ([]*types.BlacklistWord, error)
}

// FilterStore supplies the keyword auto-replies of a group.
type FilterStore interface {
	List(ctx context.Context, groupID int64) ([]*types.Filter, error)
}

// Violation is a claim by one stage. At most one punitive violation is
// produced per message because the punitive stages short-circuit.
type Violation struct {
	// Stage that claimed the message.
	Stage string
	// Action proposed by the stage.
	Action enum.Action
	// Reason describes the match for the warning record.
	Reason string
}

// Result is the outcome of evaluating one message.
type Result struct {
	// Violation is nil when no punitive stage claimed the message.
	Violation *Violation
	// Reply is a keyword-filter auto-reply, independent of violations.
	Reply string
}

// Pipeline runs the stages in a fixed order: night mode, content locks,
// blacklist, antilink. The first stage to claim stops the chain. Locks are
// structural and cheapest; the blacklist is user-authored and more
// specific than link heuristics, so links are checked last.
type Pipeline struct {
	blacklist BlacklistStore
	filters   FilterStore
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a pipeline over the given stores.
func New(blacklist BlacklistStore, filters FilterStore, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		blacklist: blacklist,
		filters:   filters,
		logger:    logger.Named("pipeline"),
		now:       time.Now,
	}
}

// Evaluate runs the stages for one message. Tiers of Admin and above
// bypass everything except keyword replies; Approved bypasses the content
// stages but still receives replies.
func (p *Pipeline) Evaluate(
	ctx context.Context, policy *types.GroupPolicy, msg *event.Event, tier permission.Tier,
) (*Result, error) {
	result := &Result{}

	// Keyword replies run for every tier and never claim
	reply, err := p.matchFilter(ctx, msg)
	if err != nil {
		return nil, err
	}

	result.Reply = reply

	if tier.BypassesPipeline() || tier == permission.TierApproved {
		return result, nil
	}

	if v := p.checkNightMode(policy, msg); v != nil {
		result.Violation = v
		return result, nil
	}

	if v := p.checkLocks(policy, msg); v != nil {
		result.Violation = v
		return result, nil
	}

	v, err := p.checkBlacklist(ctx, policy, msg)
	if err != nil {
		return nil, err
	}

	if v != nil {
		result.Violation = v
		return result, nil
	}

	if v := p.checkAntilink(policy, msg); v != nil {
		result.Violation = v
		return result, nil
	}

	return result, nil
}
