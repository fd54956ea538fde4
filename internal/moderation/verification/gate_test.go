package verification_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/executor"
	"github.com/groupwarden/warden/internal/moderation/verification"
	"github.com/groupwarden/warden/internal/platform/platformtest"
)

func setupTest(t *testing.T) (*verification.Gate, *platformtest.Fake, *miniredis.Miniredis) {
	t.Helper()

	// Start miniredis server
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// Create Redis client
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	fake := platformtest.New()
	exec := executor.New(fake, zap.NewNop(), executor.WithRetry(0, time.Millisecond))

	gate := verification.NewGate(client, exec, zap.NewNop())
	t.Cleanup(gate.Close)

	return gate, fake, mr
}

func captchaPolicy(mode enum.CaptchaMode, timeoutSeconds int) *types.GroupPolicy {
	return &types.GroupPolicy{
		GroupID:               10,
		CaptchaActive:         true,
		CaptchaMode:           mode,
		CaptchaTimeoutSeconds: timeoutSeconds,
	}
}

// storedChallenge reads the pending challenge state back out of Redis.
func storedChallenge(t *testing.T, mr *miniredis.Miniredis, groupID, userID int64) *verification.Challenge {
	t.Helper()

	data, err := mr.Get(fmt.Sprintf("captcha:%d:%d", groupID, userID))
	require.NoError(t, err)

	var challenge verification.Challenge
	require.NoError(t, sonic.Unmarshal([]byte(data), &challenge))

	return &challenge
}

func TestJoinRestrictsAndIssuesChallenge(t *testing.T) {
	t.Parallel()

	gate, fake, mr := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeButton, 60)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	// The member is restricted and the challenge message carries a button
	require.Len(t, fake.CallsOf("restrict"), 1)
	require.Len(t, fake.CallsOf("send"), 1)

	challenge := storedChallenge(t, mr, 10, 4)
	assert.Equal(t, enum.CaptchaModeButton, challenge.Mode)
	assert.Empty(t, challenge.Answer)
}

func TestJoinWithCaptchaDisabledDoesNothing(t *testing.T) {
	t.Parallel()

	gate, fake, _ := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeButton, 60)
	policy.CaptchaActive = false

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))
	assert.Empty(t, fake.Calls())
}

func TestVerifyBeforeExpiryCancelsRemoval(t *testing.T) {
	t.Parallel()

	gate, fake, _ := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeButton, 1)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	payload := &verification.Payload{Kind: verification.PayloadVerify, GroupID: 10, UserID: 4}

	resolution, err := gate.Resolve(context.Background(), payload, 4)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionVerified, resolution)
	assert.Len(t, fake.CallsOf("unrestrict"), 1)

	// The removal timer was cancelled; the deadline passes without a kick
	time.Sleep(1500 * time.Millisecond)
	assert.Empty(t, fake.CallsOf("kick"))
}

func TestTimeoutRemovesExactlyOnce(t *testing.T) {
	t.Parallel()

	gate, fake, _ := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeButton, 1)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	require.Eventually(t, func() bool {
		return len(fake.CallsOf("kick")) == 1
	}, 3*time.Second, 50*time.Millisecond)

	// A late answer finds no pending challenge and changes nothing
	payload := &verification.Payload{Kind: verification.PayloadVerify, GroupID: 10, UserID: 4}

	resolution, err := gate.Resolve(context.Background(), payload, 4)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionNone, resolution)
	assert.Len(t, fake.CallsOf("kick"), 1)
	assert.Empty(t, fake.CallsOf("unrestrict"))
}

func TestTimeoutFiresAfterRedisPassesDeadline(t *testing.T) {
	t.Parallel()

	gate, fake, mr := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeButton, 1)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	// Redis time passes the challenge deadline before the removal timer
	// fires; the key TTL outlives the deadline so the timer still claims
	mr.FastForward(1100 * time.Millisecond)

	require.Eventually(t, func() bool {
		return len(fake.CallsOf("kick")) == 1
	}, 3*time.Second, 50*time.Millisecond)

	payload := &verification.Payload{Kind: verification.PayloadVerify, GroupID: 10, UserID: 4}

	resolution, err := gate.Resolve(context.Background(), payload, 4)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionNone, resolution)
	assert.Len(t, fake.CallsOf("kick"), 1)
	assert.Empty(t, fake.CallsOf("unrestrict"))
}

func TestLostTimerExpiredChallengeRemovesOnTouch(t *testing.T) {
	t.Parallel()

	gate, fake, _ := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeButton, 1)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	// Closing the gate drops the removal timer, the way a restart would
	gate.Close()

	// The deadline passes while the key is still stored
	time.Sleep(1100 * time.Millisecond)

	payload := &verification.Payload{Kind: verification.PayloadVerify, GroupID: 10, UserID: 4}

	resolution, err := gate.Resolve(context.Background(), payload, 4)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionExpired, resolution)
	assert.Len(t, fake.CallsOf("kick"), 1)
	assert.Empty(t, fake.CallsOf("unrestrict"))
}

func TestOnlyTargetMemberResolves(t *testing.T) {
	t.Parallel()

	gate, fake, _ := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeButton, 60)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	payload := &verification.Payload{Kind: verification.PayloadVerify, GroupID: 10, UserID: 4}

	// Someone else pressing the button changes nothing
	resolution, err := gate.Resolve(context.Background(), payload, 99)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionNone, resolution)
	assert.Empty(t, fake.CallsOf("unrestrict"))

	// The challenged member still verifies afterwards
	resolution, err = gate.Resolve(context.Background(), payload, 4)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionVerified, resolution)
}

func TestMathChallengeCorrectAnswer(t *testing.T) {
	t.Parallel()

	gate, fake, mr := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeMath, 60)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	challenge := storedChallenge(t, mr, 10, 4)
	require.NotEmpty(t, challenge.Answer)
	require.Contains(t, challenge.Options, challenge.Answer)

	payload := &verification.Payload{
		Kind:    verification.PayloadVerify,
		GroupID: 10,
		UserID:  4,
		Answer:  challenge.Answer,
	}

	resolution, err := gate.Resolve(context.Background(), payload, 4)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionVerified, resolution)
	assert.Len(t, fake.CallsOf("unrestrict"), 1)
}

func TestMathChallengeAttemptsExhausted(t *testing.T) {
	t.Parallel()

	gate, fake, mr := setupTest(t)
	policy := captchaPolicy(enum.CaptchaModeMath, 60)

	require.NoError(t, gate.OnJoin(context.Background(), policy, 4))

	challenge := storedChallenge(t, mr, 10, 4)

	var wrong string

	for _, option := range challenge.Options {
		if option != challenge.Answer {
			wrong = option
			break
		}
	}

	require.NotEmpty(t, wrong)

	payload := &verification.Payload{
		Kind:    verification.PayloadVerify,
		GroupID: 10,
		UserID:  4,
		Answer:  wrong,
	}

	// Two wrong answers leave the challenge pending
	for i := 0; i < 2; i++ {
		resolution, err := gate.Resolve(context.Background(), payload, 4)
		require.NoError(t, err)
		assert.Equal(t, verification.ResolutionRetry, resolution)
	}

	// The third wrong answer fails the challenge and removes the member
	resolution, err := gate.Resolve(context.Background(), payload, 4)
	require.NoError(t, err)
	assert.Equal(t, verification.ResolutionFailed, resolution)
	assert.Len(t, fake.CallsOf("kick"), 1)
	assert.Empty(t, fake.CallsOf("unrestrict"))
}
