// Package dispatch routes inbound events onto sharded workers. Events for
// one (group,user) pair always land on the same shard, so per-key handling
// is single-writer and observes platform order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/executor"
	"github.com/groupwarden/warden/internal/moderation/escalation"
	"github.com/groupwarden/warden/internal/moderation/permission"
	"github.com/groupwarden/warden/internal/moderation/pipeline"
	"github.com/groupwarden/warden/internal/moderation/verification"
	"github.com/groupwarden/warden/internal/platform"
)

// PolicyStore loads group policies, creating defaults on first touch.
type PolicyStore interface {
	Get(ctx context.Context, groupID int64) (*types.GroupPolicy, error)
}

// MembershipStore records per-member activity.
type MembershipStore interface {
	IncrementMessageCount(ctx context.Context, groupID, userID int64) error
}

// TierResolver maps an actor to their permission tier.
type TierResolver interface {
	Resolve(ctx context.Context, groupID, userID int64) permission.Tier
}

// Evaluator runs the content stages for one message.
type Evaluator interface {
	Evaluate(
		ctx context.Context, policy *types.GroupPolicy, msg *event.Event, tier permission.Tier,
	) (*pipeline.Result, error)
}

// FloodDetector counts messages toward the flood limit.
type FloodDetector interface {
	Observe(ctx context.Context, policy *types.GroupPolicy, userID int64) (bool, error)
}

// Warner runs the warning escalation for pipeline warn claims.
type Warner interface {
	Warn(
		ctx context.Context, policy *types.GroupPolicy, userID int64, reason string, issuerID int64,
	) (*escalation.Outcome, error)
}

// ActionRunner performs decided actions and notifications.
type ActionRunner interface {
	Execute(ctx context.Context, req *executor.Request) error
	Notify(ctx context.Context, msg *platform.Message) error
}

// Verifier gates joins and resolves challenge callbacks.
type Verifier interface {
	OnJoin(ctx context.Context, policy *types.GroupPolicy, userID int64) error
	Resolve(ctx context.Context, payload *verification.Payload, actorID int64) (verification.Resolution, error)
}

// Dispatcher fans events across a fixed set of shard workers, each
// draining a bounded channel. Enqueueing blocks when a shard is full;
// backpressure propagates to the platform poller instead of dropping
// events.
type Dispatcher struct {
	policies    PolicyStore
	memberships MembershipStore
	resolver    TierResolver
	pipeline    Evaluator
	flood       FloodDetector
	warner      Warner
	actions     ActionRunner
	verifier    Verifier
	logger      *zap.Logger

	shards []chan *event.Event
	wg     sync.WaitGroup
}

// Deps bundles the collaborators a Dispatcher routes to.
type Deps struct {
	Policies    PolicyStore
	Memberships MembershipStore
	Resolver    TierResolver
	Pipeline    Evaluator
	Flood       FloodDetector
	Warner      Warner
	Actions     ActionRunner
	Verifier    Verifier
}

// New creates a dispatcher with the given shard count and per-shard
// buffer.
func New(deps Deps, shardCount, buffer int, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		policies:    deps.Policies,
		memberships: deps.Memberships,
		resolver:    deps.Resolver,
		pipeline:    deps.Pipeline,
		flood:       deps.Flood,
		warner:      deps.Warner,
		actions:     deps.Actions,
		verifier:    deps.Verifier,
		logger:      logger.Named("dispatch"),
		shards:      make([]chan *event.Event, shardCount),
	}

	for i := range d.shards {
		d.shards[i] = make(chan *event.Event, buffer)
	}

	return d
}

// Start launches one worker per shard. Workers run until their channel is
// closed by Close and drain whatever is still queued.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, shard := range d.shards {
		d.wg.Add(1)

		go func(id int, events <-chan *event.Event) {
			defer d.wg.Done()

			for evt := range events {
				d.handle(ctx, evt)
			}
		}(i, shard)
	}

	d.logger.Info("Dispatcher started", zap.Int("shards", len(d.shards)))
}

// Dispatch enqueues one event onto its shard. Events for the same
// (group,user) pair map to the same shard and are handled in arrival
// order.
func (d *Dispatcher) Dispatch(evt *event.Event) {
	d.shards[d.shardFor(evt.GroupID, evt.UserID)] <- evt
}

// Close stops accepting events and waits for the shards to drain.
func (d *Dispatcher) Close() {
	for _, shard := range d.shards {
		close(shard)
	}

	d.wg.Wait()
}

// shardFor hashes the (group,user) key onto a shard index.
func (d *Dispatcher) shardFor(groupID, userID int64) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%d", groupID, userID)

	return int(h.Sum32() % uint32(len(d.shards)))
}

// handle routes one event by kind. Handler errors are logged, never
// propagated; one failing event must not stall its shard.
func (d *Dispatcher) handle(ctx context.Context, evt *event.Event) {
	var err error

	switch evt.Kind {
	case event.KindMessage:
		err = d.handleMessage(ctx, evt)
	case event.KindJoin:
		err = d.handleJoin(ctx, evt)
	case event.KindCallback:
		err = d.handleCallback(ctx, evt)
	case event.KindLeave:
		// Leaves carry no moderation state to update
	default:
		d.logger.Warn("Unknown event kind", zap.String("kind", string(evt.Kind)))
	}

	if err != nil {
		d.logger.Error("Failed to handle event",
			zap.String("kind", string(evt.Kind)),
			zap.Int64("groupID", evt.GroupID),
			zap.Int64("userID", evt.UserID),
			zap.Error(err))
	}
}

// handleMessage runs the content pipeline and the flood detector for one
// message. Both are independent: a message can draw a content violation
// and a flood action at the same time.
func (d *Dispatcher) handleMessage(ctx context.Context, evt *event.Event) error {
	policy, err := d.policies.Get(ctx, evt.GroupID)
	if err != nil {
		return err
	}

	if err := d.memberships.IncrementMessageCount(ctx, evt.GroupID, evt.UserID); err != nil {
		d.logger.Warn("Failed to record member activity",
			zap.Int64("groupID", evt.GroupID),
			zap.Int64("userID", evt.UserID),
			zap.Error(err))
	}

	tier := d.resolver.Resolve(ctx, evt.GroupID, evt.UserID)

	result, err := d.pipeline.Evaluate(ctx, policy, evt, tier)
	if err != nil {
		return err
	}

	if result.Reply != "" {
		err := d.actions.Notify(ctx, &platform.Message{
			GroupID: evt.GroupID,
			Text:    result.Reply,
			ReplyTo: evt.MessageID,
		})
		if err != nil {
			d.logger.Warn("Failed to send filter reply",
				zap.Int64("groupID", evt.GroupID),
				zap.Error(err))
		}
	}

	// A failed violation action must not hide the message from the
	// flood window; counting happens regardless of the content outcome
	var violationErr error
	if result.Violation != nil {
		violationErr = d.applyViolation(ctx, policy, evt, result.Violation)
	}

	// Admins and above are exempt from flood counting; approved members
	// are not, approval only covers content stages
	if !tier.BypassesPipeline() {
		flooded, err := d.flood.Observe(ctx, policy, evt.UserID)
		if err != nil {
			return errors.Join(violationErr, err)
		}

		if flooded {
			err := d.actions.Execute(ctx, &executor.Request{
				GroupID:      evt.GroupID,
				UserID:       evt.UserID,
				Action:       policy.FloodAction,
				MuteDuration: time.Duration(policy.MuteDurationSeconds) * time.Second,
			})
			if err != nil {
				return errors.Join(violationErr, fmt.Errorf("failed to execute flood action: %w", err))
			}
		}
	}

	return violationErr
}

// applyViolation deletes the offending message and applies the claimed
// action. Warn claims go through the escalation engine; everything else
// goes straight to the executor.
func (d *Dispatcher) applyViolation(
	ctx context.Context, policy *types.GroupPolicy, evt *event.Event, v *pipeline.Violation,
) error {
	err := d.actions.Execute(ctx, &executor.Request{
		GroupID:   evt.GroupID,
		UserID:    evt.UserID,
		Action:    enum.ActionDelete,
		MessageID: evt.MessageID,
	})
	if err != nil {
		d.logger.Warn("Failed to delete violating message",
			zap.Int64("groupID", evt.GroupID),
			zap.Int64("messageID", evt.MessageID),
			zap.String("stage", v.Stage),
			zap.Error(err))
	}

	switch v.Action {
	case enum.ActionDelete:
		return nil

	case enum.ActionWarn:
		outcome, err := d.warner.Warn(ctx, policy, evt.UserID, v.Reason, 0)
		if err != nil {
			return fmt.Errorf("failed to warn for %s violation: %w", v.Stage, err)
		}

		if outcome.Escalated {
			d.logger.Info("Warning limit reached",
				zap.Int64("groupID", evt.GroupID),
				zap.Int64("userID", evt.UserID),
				zap.String("action", string(policy.WarnAction)))
		}

		return nil

	default:
		err := d.actions.Execute(ctx, &executor.Request{
			GroupID:      evt.GroupID,
			UserID:       evt.UserID,
			Action:       v.Action,
			MuteDuration: time.Duration(policy.MuteDurationSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to execute %s action: %w", v.Stage, err)
		}

		return nil
	}
}

// handleJoin routes a join to the verification gate.
func (d *Dispatcher) handleJoin(ctx context.Context, evt *event.Event) error {
	policy, err := d.policies.Get(ctx, evt.GroupID)
	if err != nil {
		return err
	}

	return d.verifier.OnJoin(ctx, policy, evt.UserID)
}

// handleCallback decodes the payload and routes it to challenge
// resolution. Payloads that do not decode are platform noise, not errors.
func (d *Dispatcher) handleCallback(ctx context.Context, evt *event.Event) error {
	payload, err := verification.DecodePayload(evt.Payload)
	if err != nil {
		d.logger.Debug("Ignoring undecodable callback",
			zap.Int64("groupID", evt.GroupID),
			zap.Int64("userID", evt.UserID),
			zap.Error(err))

		return nil
	}

	_, err = d.verifier.Resolve(ctx, payload, evt.UserID)

	return err
}
