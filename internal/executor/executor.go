// Package executor translates decided actions into platform calls.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/platform"
	"github.com/groupwarden/warden/pkg/utils"
)

// Request describes one action to perform against a member.
type Request struct {
	GroupID int64
	UserID  int64
	Action  enum.Action
	// MessageID is the message to delete for delete actions.
	MessageID int64
	// MuteDuration applies to mute actions; zero means permanent.
	MuteDuration time.Duration
}

// Executor performs platform calls with a per-call timeout and a bounded
// retry on transient errors. Calls are serialized per (group,user) key so
// an escalation ban cannot interleave with a racing manual unban; calls
// for unrelated keys proceed concurrently.
type Executor struct {
	client      platform.Client
	keys        *utils.KeyMutex
	callTimeout time.Duration
	maxRetries  uint64
	retryDelay  time.Duration
	logger      *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithCallTimeout sets the per-platform-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) { e.callTimeout = d }
}

// WithRetry sets the transient retry budget.
func WithRetry(maxRetries uint64, delay time.Duration) Option {
	return func(e *Executor) {
		e.maxRetries = maxRetries
		e.retryDelay = delay
	}
}

// New creates an executor over the platform client.
func New(client platform.Client, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		client:      client,
		keys:        utils.NewKeyMutex(utils.DefaultKeyMutexShards),
		callTimeout: 10 * time.Second,
		maxRetries:  3,
		retryDelay:  500 * time.Millisecond,
		logger:      logger.Named("executor"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute performs the requested action. Warn requests are not handled
// here; the escalation engine owns warning state and calls Execute only
// for the resulting action.
func (e *Executor) Execute(ctx context.Context, req *Request) error {
	key := fmt.Sprintf("%d:%d", req.GroupID, req.UserID)
	e.keys.Lock(key)
	defer e.keys.Unlock(key)

	var err error

	switch req.Action {
	case enum.ActionDelete:
		err = e.call(ctx, func(ctx context.Context) error {
			return e.client.DeleteMessage(ctx, req.GroupID, req.MessageID)
		})
	case enum.ActionMute:
		err = e.call(ctx, func(ctx context.Context) error {
			return e.client.RestrictMember(ctx, req.GroupID, req.UserID, req.MuteDuration)
		})
	case enum.ActionKick:
		err = e.call(ctx, func(ctx context.Context) error {
			return e.client.KickMember(ctx, req.GroupID, req.UserID)
		})
	case enum.ActionBan:
		err = e.call(ctx, func(ctx context.Context) error {
			return e.client.BanMember(ctx, req.GroupID, req.UserID)
		})
	default:
		return fmt.Errorf("executor: cannot execute action %q", req.Action)
	}

	if err != nil {
		e.logger.Warn("Action failed",
			zap.Int64("groupID", req.GroupID),
			zap.Int64("userID", req.UserID),
			zap.String("action", string(req.Action)),
			zap.Error(err))

		return err
	}

	return nil
}

// Ban bans a member, serialized on the same key as every other action for
// the pair. Used directly by the federation fan-out.
func (e *Executor) Ban(ctx context.Context, groupID, userID int64) error {
	return e.Execute(ctx, &Request{GroupID: groupID, UserID: userID, Action: enum.ActionBan})
}

// Kick removes a member without banning them. Used directly by the
// verification gate for failed challenges.
func (e *Executor) Kick(ctx context.Context, groupID, userID int64) error {
	return e.Execute(ctx, &Request{GroupID: groupID, UserID: userID, Action: enum.ActionKick})
}

// Unban lifts a ban for a member.
func (e *Executor) Unban(ctx context.Context, groupID, userID int64) error {
	key := fmt.Sprintf("%d:%d", groupID, userID)
	e.keys.Lock(key)
	defer e.keys.Unlock(key)

	return e.call(ctx, func(ctx context.Context) error {
		return e.client.UnbanMember(ctx, groupID, userID)
	})
}

// Restrict removes a member's posting rights, used by the verification
// gate while a challenge is pending.
func (e *Executor) Restrict(ctx context.Context, groupID, userID int64, duration time.Duration) error {
	key := fmt.Sprintf("%d:%d", groupID, userID)
	e.keys.Lock(key)
	defer e.keys.Unlock(key)

	return e.call(ctx, func(ctx context.Context) error {
		return e.client.RestrictMember(ctx, groupID, userID, duration)
	})
}

// Unrestrict restores a member's posting rights.
func (e *Executor) Unrestrict(ctx context.Context, groupID, userID int64) error {
	key := fmt.Sprintf("%d:%d", groupID, userID)
	e.keys.Lock(key)
	defer e.keys.Unlock(key)

	return e.call(ctx, func(ctx context.Context) error {
		return e.client.UnrestrictMember(ctx, groupID, userID)
	})
}

// Notify sends a message without per-key serialization; notifications
// never race state changes.
func (e *Executor) Notify(ctx context.Context, msg *platform.Message) error {
	return e.call(ctx, func(ctx context.Context) error {
		return e.client.SendMessage(ctx, msg)
	})
}

// call runs one platform operation with a timeout and retries transient
// failures within the retry budget. Permission and not-found errors are
// surfaced immediately.
func (e *Executor) call(ctx context.Context, op func(context.Context) error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.retryDelay),
	), e.maxRetries)

	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}

		if !platform.IsTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(b, ctx))
}
