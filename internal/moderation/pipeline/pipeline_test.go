package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/moderation/permission"
)

type blacklistStub []*types.BlacklistWord

func (s blacklistStub) List(_ context.Context, _ int64) ([]*types.BlacklistWord, error) {
	return s, nil
}

type filterStub []*types.Filter

func (s filterStub) List(_ context.Context, _ int64) ([]*types.Filter, error) {
	return s, nil
}

func newTestPipeline(blacklist blacklistStub, filters filterStub) *Pipeline {
	return New(blacklist, filters, zap.NewNop())
}

func testPolicy() *types.GroupPolicy {
	return &types.GroupPolicy{
		GroupID:         10,
		LocksActive:     true,
		BlacklistActive: true,
		AntilinkActive:  true,
		AntilinkAction:  enum.ActionWarn,
		LockedTypes:     []enum.ContentType{enum.ContentTypeSticker},
	}
}

func message(text string, tags ...enum.ContentType) *event.Event {
	return &event.Event{
		Kind:        event.KindMessage,
		GroupID:     10,
		UserID:      4,
		MessageID:   100,
		Text:        text,
		ContentTags: tags,
	}
}

func TestStageOrder(t *testing.T) {
	t.Parallel()

	blacklist := blacklistStub{{GroupID: 10, Word: "spam", Action: enum.ActionBan}}
	p := newTestPipeline(blacklist, nil)

	// A sticker containing a blacklisted word and a link: the lock stage
	// is first and must be the only claim
	msg := message("spam https://evil.example", enum.ContentTypeSticker)

	result, err := p.Evaluate(context.Background(), testPolicy(), msg, permission.TierMember)
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, "lock", result.Violation.Stage)
	assert.Equal(t, enum.ActionDelete, result.Violation.Action)
}

func TestBlacklistBeforeAntilink(t *testing.T) {
	t.Parallel()

	blacklist := blacklistStub{{GroupID: 10, Word: "evil.example", Action: enum.ActionBan}}
	p := newTestPipeline(blacklist, nil)

	// The text matches both the blacklist and the link heuristic; the
	// more specific blacklist action must win
	result, err := p.Evaluate(context.Background(), testPolicy(), message("see https://evil.example now"), permission.TierMember)
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, "blacklist", result.Violation.Stage)
	assert.Equal(t, enum.ActionBan, result.Violation.Action)
}

func TestBlacklistCaseInsensitive(t *testing.T) {
	t.Parallel()

	blacklist := blacklistStub{{GroupID: 10, Word: "casino", Action: enum.ActionMute}}
	p := newTestPipeline(blacklist, nil)

	result, err := p.Evaluate(context.Background(), testPolicy(), message("best CASINO in town"), permission.TierMember)
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, enum.ActionMute, result.Violation.Action)
}

func TestAntilink(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(nil, nil)

	tests := []struct {
		name  string
		text  string
		tags  []enum.ContentType
		claim bool
	}{
		{"http link", "visit https://spam.example/offer", nil, true},
		{"bare domain", "visit spam.shop now", nil, true},
		{"tme link", "join t.me/freestuff", nil, true},
		{"mention", "join @freestuffchannel", nil, true},
		{"url entity without text match", "look here", []enum.ContentType{enum.ContentTypeURL}, true},
		{"plain text", "hello there friends", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Evaluate(context.Background(), testPolicy(), message(tt.text, tt.tags...), permission.TierMember)
			require.NoError(t, err)

			if tt.claim {
				require.NotNil(t, result.Violation)
				assert.Equal(t, "antilink", result.Violation.Stage)
				assert.Equal(t, enum.ActionWarn, result.Violation.Action)
			} else {
				assert.Nil(t, result.Violation)
			}
		})
	}
}

func TestApprovedBypass(t *testing.T) {
	t.Parallel()

	blacklist := blacklistStub{{GroupID: 10, Word: "spam", Action: enum.ActionBan}}
	filters := filterStub{{GroupID: 10, Keyword: "rules", Reply: "Be nice."}}
	p := newTestPipeline(blacklist, filters)

	msg := message("spam about the rules https://evil.example", enum.ContentTypeSticker)

	// Approved members bypass every punitive stage but still get replies
	result, err := p.Evaluate(context.Background(), testPolicy(), msg, permission.TierApproved)
	require.NoError(t, err)
	assert.Nil(t, result.Violation)
	assert.Equal(t, "Be nice.", result.Reply)

	// The same message from a plain member is claimed
	result, err = p.Evaluate(context.Background(), testPolicy(), msg, permission.TierMember)
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
}

func TestAdminBypass(t *testing.T) {
	t.Parallel()

	blacklist := blacklistStub{{GroupID: 10, Word: "spam", Action: enum.ActionBan}}
	p := newTestPipeline(blacklist, nil)

	for _, tier := range []permission.Tier{
		permission.TierAdmin, permission.TierCreator, permission.TierSudo, permission.TierOwner,
	} {
		result, err := p.Evaluate(context.Background(), testPolicy(), message("spam"), tier)
		require.NoError(t, err)
		assert.Nil(t, result.Violation, "tier %s must bypass", tier)
	}
}

func TestNightMode(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(nil, nil)
	p.now = func() time.Time {
		return time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC)
	}

	policy := testPolicy()
	policy.NightModeActive = true
	policy.NightStartHour = 23
	policy.NightEndHour = 6

	result, err := p.Evaluate(context.Background(), policy, message("good night"), permission.TierMember)
	require.NoError(t, err)
	require.NotNil(t, result.Violation)
	assert.Equal(t, "nightmode", result.Violation.Stage)
	assert.Equal(t, enum.ActionDelete, result.Violation.Action)

	// Outside the window the stage passes
	p.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	result, err = p.Evaluate(context.Background(), policy, message("good afternoon"), permission.TierMember)
	require.NoError(t, err)
	assert.Nil(t, result.Violation)
}

func TestDisabledStagesPass(t *testing.T) {
	t.Parallel()

	blacklist := blacklistStub{{GroupID: 10, Word: "spam", Action: enum.ActionBan}}
	p := newTestPipeline(blacklist, nil)

	policy := testPolicy()
	policy.LocksActive = false
	policy.BlacklistActive = false
	policy.AntilinkActive = false

	msg := message("spam https://evil.example", enum.ContentTypeSticker)

	result, err := p.Evaluate(context.Background(), policy, msg, permission.TierMember)
	require.NoError(t, err)
	assert.Nil(t, result.Violation)
}
