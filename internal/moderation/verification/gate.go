// Package verification gates new members behind a join-time challenge.
// A joining member is restricted until they solve the challenge; an
// unanswered challenge removes them when it expires.
package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/platform"
)

// keyPrefix namespaces challenge state. Keys are "captcha:{groupID}:{userID}".
const keyPrefix = "captcha:"

// Resolution is the outcome of one callback answer.
type Resolution int

const (
	// ResolutionNone means the callback changed nothing: no challenge is
	// pending or the actor is not the challenged member.
	ResolutionNone Resolution = iota
	// ResolutionVerified means the member passed and was unrestricted.
	ResolutionVerified
	// ResolutionRetry means the answer was wrong but attempts remain.
	ResolutionRetry
	// ResolutionFailed means the member exhausted their attempts and was
	// removed.
	ResolutionFailed
	// ResolutionExpired means the challenge had already passed its
	// deadline; the member was removed.
	ResolutionExpired
)

// ActionClient is the subset of executor operations the gate needs.
type ActionClient interface {
	Restrict(ctx context.Context, groupID, userID int64, duration time.Duration) error
	Unrestrict(ctx context.Context, groupID, userID int64) error
	Kick(ctx context.Context, groupID, userID int64) error
	Notify(ctx context.Context, msg *platform.Message) error
}

// Gate issues challenges on join and resolves callback answers. Pending
// state lives in Redis so a restart never leaves a member restricted
// forever: the challenge carries its own deadline, the key TTL outlives
// it, and a touch past the deadline removes the member even when the
// timer was lost.
type Gate struct {
	client  rueidis.Client
	actions ActionClient
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewGate creates a verification gate over the given Redis client.
func NewGate(client rueidis.Client, actions ActionClient, logger *zap.Logger) *Gate {
	return &Gate{
		client:  client,
		actions: actions,
		logger:  logger.Named("verification"),
		now:     time.Now,
		timers:  make(map[string]*time.Timer),
	}
}

// OnJoin restricts the joining member and issues a challenge per the
// group policy. A member who re-joins while a challenge is pending gets
// a fresh challenge; the old timer is cancelled.
func (g *Gate) OnJoin(ctx context.Context, policy *types.GroupPolicy, userID int64) error {
	if !policy.CaptchaActive {
		return nil
	}

	groupID := policy.GroupID

	if err := g.actions.Restrict(ctx, groupID, userID, 0); err != nil {
		return fmt.Errorf("failed to restrict joining member: %w", err)
	}

	timeout := time.Duration(policy.CaptchaTimeoutSeconds) * time.Second

	challenge, image, err := newChallenge(groupID, userID, policy.CaptchaMode, timeout, g.now())
	if err != nil {
		return err
	}

	data, err := sonic.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	key := challengeKey(groupID, userID)

	// The key TTL is twice the deadline: the deadline itself lives in
	// the challenge, and the key must still exist when the removal
	// timer fires for its delete to count as the claim
	err = g.client.Do(ctx, g.client.B().Set().Key(key).Value(string(data)).
		Ex(2*timeout).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	msg := &platform.Message{
		GroupID: groupID,
		Text:    challenge.Question(),
		Buttons: challengeButtons(challenge),
		Photo:   image,
	}

	if err := g.actions.Notify(ctx, msg); err != nil {
		g.logger.Warn("Failed to send challenge message",
			zap.Int64("groupID", groupID),
			zap.Int64("userID", userID),
			zap.Error(err))
	}

	g.armTimer(key, groupID, userID, timeout)

	g.logger.Debug("Challenge issued",
		zap.Int64("groupID", groupID),
		zap.Int64("userID", userID),
		zap.String("mode", string(policy.CaptchaMode)))

	return nil
}

// Resolve applies one callback answer. Answers from anyone other than
// the challenged member change nothing. The challenge is removed on
// success, failure or expiry; a wrong answer with attempts remaining
// keeps it pending.
func (g *Gate) Resolve(ctx context.Context, payload *Payload, actorID int64) (Resolution, error) {
	if actorID != payload.UserID {
		return ResolutionNone, nil
	}

	key := challengeKey(payload.GroupID, payload.UserID)

	data, err := g.client.Do(ctx, g.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return ResolutionNone, nil
		}

		return ResolutionNone, fmt.Errorf("failed to load challenge: %w", err)
	}

	var challenge Challenge
	if err := sonic.Unmarshal(data, &challenge); err != nil {
		return ResolutionNone, fmt.Errorf("failed to decode challenge: %w", err)
	}

	// Backstop for a timer lost to a restart
	if challenge.Expired(g.now()) {
		if g.claim(ctx, key) {
			g.remove(ctx, payload.GroupID, payload.UserID, "expired")
		}

		return ResolutionExpired, nil
	}

	if challenge.Answer == "" || payload.Answer == challenge.Answer {
		if !g.claim(ctx, key) {
			return ResolutionNone, nil
		}

		g.cancelTimer(key)

		if err := g.actions.Unrestrict(ctx, payload.GroupID, payload.UserID); err != nil {
			return ResolutionVerified, fmt.Errorf("failed to unrestrict verified member: %w", err)
		}

		g.logger.Debug("Member verified",
			zap.Int64("groupID", payload.GroupID),
			zap.Int64("userID", payload.UserID))

		return ResolutionVerified, nil
	}

	challenge.AttemptsRemaining--
	if challenge.AttemptsRemaining > 0 {
		updated, err := sonic.Marshal(&challenge)
		if err != nil {
			return ResolutionRetry, fmt.Errorf("failed to encode challenge: %w", err)
		}

		// Keepttl preserves the original deadline
		err = g.client.Do(ctx, g.client.B().Set().Key(key).Value(string(updated)).
			Keepttl().Build()).Error()
		if err != nil {
			return ResolutionRetry, fmt.Errorf("failed to update challenge: %w", err)
		}

		return ResolutionRetry, nil
	}

	if !g.claim(ctx, key) {
		return ResolutionNone, nil
	}

	g.cancelTimer(key)
	g.remove(ctx, payload.GroupID, payload.UserID, "attempts exhausted")

	return ResolutionFailed, nil
}

// Close stops all pending removal timers. Challenge state stays in Redis
// and expires on its own TTL.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true

	for key, timer := range g.timers {
		timer.Stop()
		delete(g.timers, key)
	}
}

// armTimer schedules the removal for an unanswered challenge, replacing
// any timer pending for the same key.
func (g *Gate) armTimer(key string, groupID, userID int64, timeout time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}

	if timer, ok := g.timers[key]; ok {
		timer.Stop()
	}

	g.timers[key] = time.AfterFunc(timeout, func() {
		g.onTimeout(key, groupID, userID)
	})
}

// cancelTimer stops the pending removal for a key.
func (g *Gate) cancelTimer(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if timer, ok := g.timers[key]; ok {
		timer.Stop()
		delete(g.timers, key)
	}
}

// onTimeout removes a member whose challenge expired. The Redis delete
// is the claim: whichever path deletes the key performs the removal, so
// a timeout racing a last-instant answer acts at most once.
func (g *Gate) onTimeout(key string, groupID, userID int64) {
	g.mu.Lock()
	delete(g.timers, key)
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !g.claim(ctx, key) {
		return
	}

	g.remove(ctx, groupID, userID, "timeout")
}

// claim deletes the challenge key and reports whether this caller owned
// it. A false return means another path already resolved the challenge.
func (g *Gate) claim(ctx context.Context, key string) bool {
	deleted, err := g.client.Do(ctx, g.client.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		g.logger.Warn("Failed to claim challenge",
			zap.String("key", key),
			zap.Error(err))

		return false
	}

	return deleted == 1
}

// remove kicks a member who failed or timed out their challenge.
func (g *Gate) remove(ctx context.Context, groupID, userID int64, reason string) {
	if err := g.actions.Kick(ctx, groupID, userID); err != nil {
		g.logger.Warn("Failed to remove unverified member",
			zap.Int64("groupID", groupID),
			zap.Int64("userID", userID),
			zap.String("reason", reason),
			zap.Error(err))

		return
	}

	g.logger.Debug("Unverified member removed",
		zap.Int64("groupID", groupID),
		zap.Int64("userID", userID),
		zap.String("reason", reason))
}

// challengeButtons builds the inline keyboard for a challenge.
func challengeButtons(c *Challenge) [][]platform.Button {
	if len(c.Options) == 0 {
		data, _ := EncodePayload(&Payload{
			Kind:    PayloadVerify,
			GroupID: c.GroupID,
			UserID:  c.UserID,
		})

		return [][]platform.Button{{{Label: "I'm human", Data: data}}}
	}

	row := make([]platform.Button, 0, len(c.Options))
	for _, option := range c.Options {
		data, _ := EncodePayload(&Payload{
			Kind:    PayloadVerify,
			GroupID: c.GroupID,
			UserID:  c.UserID,
			Answer:  option,
		})

		row = append(row, platform.Button{Label: option, Data: data})
	}

	return [][]platform.Button{row}
}

// challengeKey builds the Redis key for a pending challenge.
func challengeKey(groupID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", keyPrefix, groupID, userID)
}
