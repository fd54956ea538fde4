package admin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/admin"
	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/federation"
	"github.com/groupwarden/warden/internal/moderation/escalation"
	"github.com/groupwarden/warden/internal/moderation/permission"
)

// fakeGate resolves tiers from a static map, defaulting to Member.
type fakeGate struct {
	tiers map[int64]permission.Tier
}

func (g *fakeGate) Resolve(_ context.Context, _ int64, userID int64) permission.Tier {
	return g.tiers[userID]
}

func (g *fakeGate) Require(
	ctx context.Context, groupID, userID int64, min permission.Tier,
) (permission.Tier, error) {
	tier := g.Resolve(ctx, groupID, userID)
	if tier < min {
		return tier, permission.ErrInsufficientTier
	}

	return tier, nil
}

// recorder counts calls reaching the mutation surfaces.
type recorder struct {
	calls []string
}

func (r *recorder) record(name string) { r.calls = append(r.calls, name) }

func (r *recorder) Get(_ context.Context, groupID int64) (*types.GroupPolicy, error) {
	return &types.GroupPolicy{GroupID: groupID, WarnLimit: 3, WarnAction: enum.ActionBan}, nil
}
func (r *recorder) Reset(context.Context, int64) error { r.record("reset"); return nil }
func (r *recorder) SetWarnLimit(context.Context, int64, int) error {
	r.record("setWarnLimit")
	return nil
}
func (r *recorder) SetWarnAction(context.Context, int64, enum.Action) error {
	r.record("setWarnAction")
	return nil
}
func (r *recorder) SetAntiflood(context.Context, int64, bool, int, int, enum.Action) error {
	r.record("setAntiflood")
	return nil
}
func (r *recorder) SetAntilink(context.Context, int64, bool, enum.Action) error {
	r.record("setAntilink")
	return nil
}
func (r *recorder) SetBlacklistActive(context.Context, int64, bool) error {
	r.record("setBlacklistActive")
	return nil
}
func (r *recorder) Lock(context.Context, int64, enum.ContentType) error {
	r.record("lock")
	return nil
}
func (r *recorder) Unlock(context.Context, int64, enum.ContentType) error {
	r.record("unlock")
	return nil
}
func (r *recorder) SetCaptcha(context.Context, int64, bool, enum.CaptchaMode) error {
	r.record("setCaptcha")
	return nil
}
func (r *recorder) SetNightMode(context.Context, int64, bool, int, int) error {
	r.record("setNightMode")
	return nil
}
func (r *recorder) SetMuteDuration(context.Context, int64, int) error {
	r.record("setMuteDuration")
	return nil
}

func (r *recorder) SetApproved(context.Context, int64, int64, bool) error {
	r.record("setApproved")
	return nil
}

func (r *recorder) Add(context.Context, int64, string, enum.Action, int64) error {
	r.record("blacklistAdd")
	return nil
}
func (r *recorder) Remove(context.Context, int64, string) error {
	r.record("blacklistRemove")
	return nil
}
func (r *recorder) List(context.Context, int64) ([]*types.BlacklistWord, error) { return nil, nil }

// filterRecorder avoids method collisions with the blacklist recorder.
type filterRecorder struct{ r *recorder }

func (f filterRecorder) Add(context.Context, int64, string, string, int64) error {
	f.r.record("filterAdd")
	return nil
}
func (f filterRecorder) Remove(context.Context, int64, string) error {
	f.r.record("filterRemove")
	return nil
}
func (f filterRecorder) List(context.Context, int64) ([]*types.Filter, error) { return nil, nil }

// fakeWarns records warning commands.
type fakeWarns struct {
	warned []int64
}

func (w *fakeWarns) Warn(
	_ context.Context, _ *types.GroupPolicy, userID int64, _ string, _ int64,
) (*escalation.Outcome, error) {
	w.warned = append(w.warned, userID)
	return &escalation.Outcome{Count: 1, Limit: 3}, nil
}

func (w *fakeWarns) RemoveLast(context.Context, int64, int64) (int, bool, error) {
	return 0, true, nil
}
func (w *fakeWarns) Clear(context.Context, int64, int64) error      { return nil }
func (w *fakeWarns) Count(context.Context, int64, int64) (int, error) { return 1, nil }

// fakeFeds records federation commands.
type fakeFeds struct {
	calls []string
}

func (f *fakeFeds) Create(_ context.Context, name string, ownerID int64) (*types.Federation, error) {
	f.calls = append(f.calls, "create")
	return &types.Federation{ID: "fed-1", Name: name, OwnerID: ownerID}, nil
}

func (f *fakeFeds) Delete(context.Context, string, int64) error {
	f.calls = append(f.calls, "delete")
	return nil
}

func (f *fakeFeds) AddAdmin(context.Context, string, int64, int64) error {
	f.calls = append(f.calls, "addAdmin")
	return nil
}

func (f *fakeFeds) RemoveAdmin(context.Context, string, int64, int64) error {
	f.calls = append(f.calls, "removeAdmin")
	return nil
}

func (f *fakeFeds) JoinGroup(context.Context, string, int64) (*federation.FanOutResult, error) {
	f.calls = append(f.calls, "join")
	return &federation.FanOutResult{}, nil
}

func (f *fakeFeds) LeaveGroup(context.Context, int64) error {
	f.calls = append(f.calls, "leave")
	return nil
}

func (f *fakeFeds) Ban(context.Context, string, int64, int64, string) (*federation.FanOutResult, error) {
	f.calls = append(f.calls, "ban")
	return &federation.FanOutResult{}, nil
}

func (f *fakeFeds) Unban(context.Context, string, int64, int64) (*federation.FanOutResult, error) {
	f.calls = append(f.calls, "unban")
	return &federation.FanOutResult{}, nil
}

func setupTest(_ *testing.T) (*admin.Service, *recorder, *fakeWarns, *fakeFeds) {
	gate := &fakeGate{tiers: map[int64]permission.Tier{
		1: permission.TierCreator,
		2: permission.TierAdmin,
		3: permission.TierMember,
	}}

	rec := &recorder{}
	warns := &fakeWarns{}
	feds := &fakeFeds{}
	service := admin.New(gate, rec, rec, rec, filterRecorder{rec}, warns, feds, zap.NewNop())

	return service, rec, warns, feds
}

func TestPolicyOperationsRequireAdmin(t *testing.T) {
	t.Parallel()

	service, rec, _, _ := setupTest(t)

	// A plain member is rejected before any mutation
	err := service.SetWarnLimit(context.Background(), 10, 3, 5)
	require.ErrorIs(t, err, permission.ErrInsufficientTier)
	assert.Empty(t, rec.calls)

	// An admin passes through
	require.NoError(t, service.SetWarnLimit(context.Background(), 10, 2, 5))
	require.NoError(t, service.SetAntiflood(context.Background(), 10, 2, true, 10, 15, enum.ActionMute))
	require.NoError(t, service.Lock(context.Background(), 10, 2, enum.ContentTypeSticker))
	require.NoError(t, service.Approve(context.Background(), 10, 2, 4))
	require.NoError(t, service.AddBlacklistWord(context.Background(), 10, 2, "spam", enum.ActionWarn))
	require.NoError(t, service.AddFilter(context.Background(), 10, 2, "rules", "read the pinned message"))
	assert.Equal(t, []string{
		"setWarnLimit", "setAntiflood", "lock", "setApproved", "blacklistAdd", "filterAdd",
	}, rec.calls)
}

func TestPolicyResetRequiresCreator(t *testing.T) {
	t.Parallel()

	service, rec, _, _ := setupTest(t)

	err := service.ResetPolicy(context.Background(), 10, 2)
	require.ErrorIs(t, err, permission.ErrInsufficientTier)
	assert.Empty(t, rec.calls)

	require.NoError(t, service.ResetPolicy(context.Background(), 10, 1))
	assert.Equal(t, []string{"reset"}, rec.calls)
}

func TestWarnRejectsProtectedTarget(t *testing.T) {
	t.Parallel()

	service, _, warns, _ := setupTest(t)

	// Warning another admin is refused without touching the engine
	_, err := service.Warn(context.Background(), 10, 2, 1, "test")
	require.ErrorIs(t, err, admin.ErrTargetProtected)
	assert.Empty(t, warns.warned)

	// Warning a plain member goes through
	outcome, err := service.Warn(context.Background(), 10, 2, 3, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Count)
	assert.Equal(t, []int64{3}, warns.warned)
}

func TestFederationMembershipRequiresCreator(t *testing.T) {
	t.Parallel()

	service, _, _, feds := setupTest(t)

	_, err := service.JoinFederation(context.Background(), 10, 2, "fed-1")
	require.ErrorIs(t, err, permission.ErrInsufficientTier)

	_, err = service.JoinFederation(context.Background(), 10, 1, "fed-1")
	require.NoError(t, err)
	require.NoError(t, service.LeaveFederation(context.Background(), 10, 1))
	assert.Equal(t, []string{"join", "leave"}, feds.calls)
}

func TestFederationBanDelegatesToRegistry(t *testing.T) {
	t.Parallel()

	service, _, _, feds := setupTest(t)

	// The registry owns federation-level permission checks
	fed, err := service.CreateFederation(context.Background(), 3, "my fed")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fed.OwnerID)

	_, err = service.FedBan(context.Background(), fed.ID, 3, 666, "spam")
	require.NoError(t, err)
	_, err = service.FedUnban(context.Background(), fed.ID, 3, 666)
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "ban", "unban"}, feds.calls)
}
