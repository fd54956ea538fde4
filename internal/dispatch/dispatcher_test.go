package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/dispatch"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/executor"
	"github.com/groupwarden/warden/internal/moderation/escalation"
	"github.com/groupwarden/warden/internal/moderation/permission"
	"github.com/groupwarden/warden/internal/moderation/pipeline"
	"github.com/groupwarden/warden/internal/moderation/verification"
	"github.com/groupwarden/warden/internal/platform"
)

// deps is a full set of recording fakes behind the dispatcher.
type deps struct {
	mu       sync.Mutex
	policy   *types.GroupPolicy
	tier     permission.Tier
	seen     map[string][]int64 // key -> message IDs in handled order
	flooded  func(userID int64) bool
	violates func(msg *event.Event) *pipeline.Violation
	reply    string
	warnErr  error
	warns    []int64
	observes []int64
	executed []executor.Request
	notified []platform.Message
	joins    []int64
	resolved []verification.Payload
}

func newDeps() *deps {
	return &deps{
		policy: &types.GroupPolicy{GroupID: 10, WarnLimit: 3, WarnAction: enum.ActionBan,
			FloodAction: enum.ActionMute},
		tier: permission.TierMember,
		seen: make(map[string][]int64),
	}
}

func (d *deps) Get(_ context.Context, groupID int64) (*types.GroupPolicy, error) {
	policy := *d.policy
	policy.GroupID = groupID

	return &policy, nil
}

func (d *deps) IncrementMessageCount(context.Context, int64, int64) error { return nil }

func (d *deps) Resolve(context.Context, int64, int64) permission.Tier { return d.tier }

func (d *deps) Evaluate(
	_ context.Context, _ *types.GroupPolicy, msg *event.Event, _ permission.Tier,
) (*pipeline.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := fmt.Sprintf("%d:%d", msg.GroupID, msg.UserID)
	d.seen[key] = append(d.seen[key], msg.MessageID)

	result := &pipeline.Result{Reply: d.reply}
	if d.violates != nil {
		result.Violation = d.violates(msg)
	}

	return result, nil
}

func (d *deps) Observe(_ context.Context, _ *types.GroupPolicy, userID int64) (bool, error) {
	d.mu.Lock()
	d.observes = append(d.observes, userID)
	d.mu.Unlock()

	if d.flooded == nil {
		return false, nil
	}

	return d.flooded(userID), nil
}

func (d *deps) Warn(
	_ context.Context, _ *types.GroupPolicy, userID int64, _ string, _ int64,
) (*escalation.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.warns = append(d.warns, userID)

	if d.warnErr != nil {
		return nil, d.warnErr
	}

	return &escalation.Outcome{Count: 1, Limit: 3}, nil
}

func (d *deps) Execute(_ context.Context, req *executor.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.executed = append(d.executed, *req)

	return nil
}

func (d *deps) Notify(_ context.Context, msg *platform.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.notified = append(d.notified, *msg)

	return nil
}

func (d *deps) OnJoin(_ context.Context, _ *types.GroupPolicy, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.joins = append(d.joins, userID)

	return nil
}

func (d *deps) ResolveChallenge(
	_ context.Context, payload *verification.Payload, _ int64,
) (verification.Resolution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resolved = append(d.resolved, *payload)

	return verification.ResolutionVerified, nil
}

func setupTest(t *testing.T, d *deps, shards int) *dispatch.Dispatcher {
	t.Helper()

	dispatcher := dispatch.New(dispatch.Deps{
		Policies:    d,
		Memberships: d,
		Resolver:    d,
		Pipeline:    d,
		Flood:       d,
		Warner:      d,
		Actions:     d,
		Verifier:    verifierAdapter{d},
	}, shards, 64, zap.NewNop())

	dispatcher.Start(context.Background())

	return dispatcher
}

// verifierAdapter bridges the fake's ResolveChallenge to the Verifier
// interface without colliding with the fake's tier Resolve.
type verifierAdapter struct{ d *deps }

func (a verifierAdapter) OnJoin(ctx context.Context, policy *types.GroupPolicy, userID int64) error {
	return a.d.OnJoin(ctx, policy, userID)
}

func (a verifierAdapter) Resolve(
	ctx context.Context, payload *verification.Payload, actorID int64,
) (verification.Resolution, error) {
	return a.d.ResolveChallenge(ctx, payload, actorID)
}

func TestMessagesForOneKeyKeepArrivalOrder(t *testing.T) {
	t.Parallel()

	d := newDeps()
	dispatcher := setupTest(t, d, 4)

	// 200 messages for the same member across shards of other traffic
	for i := int64(1); i <= 200; i++ {
		dispatcher.Dispatch(&event.Event{
			Kind: event.KindMessage, GroupID: 10, UserID: 4, MessageID: i,
		})
		dispatcher.Dispatch(&event.Event{
			Kind: event.KindMessage, GroupID: 10, UserID: i + 1000, MessageID: i,
		})
	}

	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	ids := d.seen["10:4"]
	require.Len(t, ids, 200)

	for i, id := range ids {
		assert.Equal(t, int64(i+1), id, "message %d handled out of order", i)
	}
}

func TestWarnViolationRoutesThroughEscalation(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.violates = func(msg *event.Event) *pipeline.Violation {
		return &pipeline.Violation{Stage: "blacklist", Action: enum.ActionWarn, Reason: "matched"}
	}

	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{Kind: event.KindMessage, GroupID: 10, UserID: 4, MessageID: 7})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	// The message is deleted and the warn goes to the engine, not the executor
	require.Equal(t, []int64{4}, d.warns)
	require.Len(t, d.executed, 1)
	assert.Equal(t, enum.ActionDelete, d.executed[0].Action)
	assert.Equal(t, int64(7), d.executed[0].MessageID)
}

func TestMuteViolationExecutesDirectly(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.policy.MuteDurationSeconds = 3600
	d.violates = func(msg *event.Event) *pipeline.Violation {
		return &pipeline.Violation{Stage: "antilink", Action: enum.ActionMute, Reason: "link"}
	}

	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{Kind: event.KindMessage, GroupID: 10, UserID: 4, MessageID: 7})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	require.Len(t, d.executed, 2)
	assert.Equal(t, enum.ActionDelete, d.executed[0].Action)
	assert.Equal(t, enum.ActionMute, d.executed[1].Action)
	assert.Equal(t, time.Hour, d.executed[1].MuteDuration)
	assert.Empty(t, d.warns)
}

func TestFloodActionIndependentOfPipeline(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.flooded = func(userID int64) bool { return true }

	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{Kind: event.KindMessage, GroupID: 10, UserID: 4, MessageID: 7})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	require.Len(t, d.executed, 1)
	assert.Equal(t, enum.ActionMute, d.executed[0].Action)
	assert.Equal(t, int64(4), d.executed[0].UserID)
}

func TestFloodCountedWhenViolationActionFails(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.warnErr = errors.New("engine unavailable")
	d.flooded = func(userID int64) bool { return true }
	d.violates = func(msg *event.Event) *pipeline.Violation {
		return &pipeline.Violation{Stage: "blacklist", Action: enum.ActionWarn, Reason: "matched"}
	}

	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{Kind: event.KindMessage, GroupID: 10, UserID: 4, MessageID: 7})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	// The failed warn does not hide the message from the flood window
	require.Equal(t, []int64{4}, d.observes)
	require.Len(t, d.executed, 2)
	assert.Equal(t, enum.ActionDelete, d.executed[0].Action)
	assert.Equal(t, enum.ActionMute, d.executed[1].Action)
}

func TestAdminsSkipFloodCounting(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.tier = permission.TierAdmin
	d.flooded = func(userID int64) bool { return true }

	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{Kind: event.KindMessage, GroupID: 10, UserID: 4, MessageID: 7})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	assert.Empty(t, d.executed)
}

func TestJoinRoutesToVerifier(t *testing.T) {
	t.Parallel()

	d := newDeps()
	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{Kind: event.KindJoin, GroupID: 10, UserID: 4})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	assert.Equal(t, []int64{4}, d.joins)
}

func TestCallbackRoutesToChallengeResolution(t *testing.T) {
	t.Parallel()

	payload, err := verification.EncodePayload(&verification.Payload{
		Kind: verification.PayloadVerify, GroupID: 10, UserID: 4, Answer: "42",
	})
	require.NoError(t, err)

	d := newDeps()
	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{
		Kind: event.KindCallback, GroupID: 10, UserID: 4, Payload: []byte(payload),
	})
	dispatcher.Dispatch(&event.Event{
		Kind: event.KindCallback, GroupID: 10, UserID: 4, Payload: []byte("not json"),
	})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	// The garbage payload is dropped, the valid one resolves
	require.Len(t, d.resolved, 1)
	assert.Equal(t, "42", d.resolved[0].Answer)
}

func TestKeywordReplyIsSent(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.reply = "welcome aboard"

	dispatcher := setupTest(t, d, 2)
	dispatcher.Dispatch(&event.Event{Kind: event.KindMessage, GroupID: 10, UserID: 4, MessageID: 7})
	dispatcher.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	require.Len(t, d.notified, 1)
	assert.Equal(t, "welcome aboard", d.notified[0].Text)
	assert.Equal(t, int64(7), d.notified[0].ReplyTo)
	assert.Empty(t, d.executed)
}
