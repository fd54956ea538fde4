// Package admin is the administrative surface of the rule engine. Every
// operation declares a minimum tier checked once through the permission
// resolver before anything mutates.
package admin

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/federation"
	"github.com/groupwarden/warden/internal/moderation/escalation"
	"github.com/groupwarden/warden/internal/moderation/permission"
)

// ErrTargetProtected is returned when the target holds a tier the actor
// cannot act on.
var ErrTargetProtected = errors.New("target outranks actor")

// PolicyAdmin is the policy mutation surface.
type PolicyAdmin interface {
	Get(ctx context.Context, groupID int64) (*types.GroupPolicy, error)
	Reset(ctx context.Context, groupID int64) error
	SetWarnLimit(ctx context.Context, groupID int64, limit int) error
	SetWarnAction(ctx context.Context, groupID int64, action enum.Action) error
	SetAntiflood(ctx context.Context, groupID int64, enabled bool, limit, windowSeconds int, action enum.Action) error
	SetAntilink(ctx context.Context, groupID int64, enabled bool, action enum.Action) error
	SetBlacklistActive(ctx context.Context, groupID int64, enabled bool) error
	Lock(ctx context.Context, groupID int64, ct enum.ContentType) error
	Unlock(ctx context.Context, groupID int64, ct enum.ContentType) error
	SetCaptcha(ctx context.Context, groupID int64, enabled bool, mode enum.CaptchaMode) error
	SetNightMode(ctx context.Context, groupID int64, enabled bool, startHour, endHour int) error
	SetMuteDuration(ctx context.Context, groupID int64, seconds int) error
}

// MembershipAdmin is the approval surface.
type MembershipAdmin interface {
	SetApproved(ctx context.Context, groupID, userID int64, approved bool) error
}

// BlacklistAdmin is the blacklist word surface.
type BlacklistAdmin interface {
	Add(ctx context.Context, groupID int64, word string, action enum.Action, addedBy int64) error
	Remove(ctx context.Context, groupID int64, word string) error
	List(ctx context.Context, groupID int64) ([]*types.BlacklistWord, error)
}

// FilterAdmin is the keyword filter surface.
type FilterAdmin interface {
	Add(ctx context.Context, groupID int64, keyword, reply string, addedBy int64) error
	Remove(ctx context.Context, groupID int64, keyword string) error
	List(ctx context.Context, groupID int64) ([]*types.Filter, error)
}

// WarnEngine is the escalation surface for manual warning commands.
type WarnEngine interface {
	Warn(ctx context.Context, policy *types.GroupPolicy, userID int64, reason string, issuerID int64) (*escalation.Outcome, error)
	RemoveLast(ctx context.Context, groupID, userID int64) (int, bool, error)
	Clear(ctx context.Context, groupID, userID int64) error
	Count(ctx context.Context, groupID, userID int64) (int, error)
}

// FedRegistry is the federation surface. The registry enforces its own
// owner/admin checks; the service only gates the group-side operations.
type FedRegistry interface {
	Create(ctx context.Context, name string, ownerID int64) (*types.Federation, error)
	Delete(ctx context.Context, fedID string, actorID int64) error
	AddAdmin(ctx context.Context, fedID string, actorID, userID int64) error
	RemoveAdmin(ctx context.Context, fedID string, actorID, userID int64) error
	JoinGroup(ctx context.Context, fedID string, groupID int64) (*federation.FanOutResult, error)
	LeaveGroup(ctx context.Context, groupID int64) error
	Ban(ctx context.Context, fedID string, actorID, userID int64, reason string) (*federation.FanOutResult, error)
	Unban(ctx context.Context, fedID string, actorID, userID int64) (*federation.FanOutResult, error)
}

// Gatekeeper checks actor tiers.
type Gatekeeper interface {
	Resolve(ctx context.Context, groupID, userID int64) permission.Tier
	Require(ctx context.Context, groupID, userID int64, min permission.Tier) (permission.Tier, error)
}

// Service wires tier checks in front of the mutation surfaces.
type Service struct {
	gate        Gatekeeper
	policies    PolicyAdmin
	memberships MembershipAdmin
	blacklist   BlacklistAdmin
	filters     FilterAdmin
	warns       WarnEngine
	feds        FedRegistry
	logger      *zap.Logger
}

// New creates the administrative service.
func New(
	gate Gatekeeper,
	policies PolicyAdmin,
	memberships MembershipAdmin,
	blacklist BlacklistAdmin,
	filters FilterAdmin,
	warns WarnEngine,
	feds FedRegistry,
	logger *zap.Logger,
) *Service {
	return &Service{
		gate:        gate,
		policies:    policies,
		memberships: memberships,
		blacklist:   blacklist,
		filters:     filters,
		warns:       warns,
		feds:        feds,
		logger:      logger.Named("admin"),
	}
}

// SetWarnLimit sets the warning threshold. Admin and above.
func (s *Service) SetWarnLimit(ctx context.Context, groupID, actorID int64, limit int) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetWarnLimit(ctx, groupID, limit)
}

// SetWarnAction sets the action taken when the warning limit is reached.
func (s *Service) SetWarnAction(ctx context.Context, groupID, actorID int64, action enum.Action) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetWarnAction(ctx, groupID, action)
}

// SetAntiflood configures the flood detector for a group.
func (s *Service) SetAntiflood(
	ctx context.Context, groupID, actorID int64, enabled bool, limit, windowSeconds int, action enum.Action,
) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetAntiflood(ctx, groupID, enabled, limit, windowSeconds, action)
}

// SetAntilink configures the link stage for a group.
func (s *Service) SetAntilink(ctx context.Context, groupID, actorID int64, enabled bool, action enum.Action) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetAntilink(ctx, groupID, enabled, action)
}

// SetBlacklistActive toggles the blacklist stage for a group.
func (s *Service) SetBlacklistActive(ctx context.Context, groupID, actorID int64, enabled bool) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetBlacklistActive(ctx, groupID, enabled)
}

// Lock adds a content type to the locked set.
func (s *Service) Lock(ctx context.Context, groupID, actorID int64, ct enum.ContentType) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.Lock(ctx, groupID, ct)
}

// Unlock removes a content type from the locked set.
func (s *Service) Unlock(ctx context.Context, groupID, actorID int64, ct enum.ContentType) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.Unlock(ctx, groupID, ct)
}

// SetCaptcha toggles join verification and selects the challenge mode.
func (s *Service) SetCaptcha(ctx context.Context, groupID, actorID int64, enabled bool, mode enum.CaptchaMode) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetCaptcha(ctx, groupID, enabled, mode)
}

// SetNightMode configures the quiet window for a group.
func (s *Service) SetNightMode(
	ctx context.Context, groupID, actorID int64, enabled bool, startHour, endHour int,
) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetNightMode(ctx, groupID, enabled, startHour, endHour)
}

// SetMuteDuration sets how long mute actions last.
func (s *Service) SetMuteDuration(ctx context.Context, groupID, actorID int64, seconds int) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.policies.SetMuteDuration(ctx, groupID, seconds)
}

// ResetPolicy restores the group policy to defaults. Creator and above;
// a full reset discards every admin's configuration at once.
func (s *Service) ResetPolicy(ctx context.Context, groupID, actorID int64) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierCreator); err != nil {
		return err
	}

	return s.policies.Reset(ctx, groupID)
}

// AddBlacklistWord adds a trigger word with its action.
func (s *Service) AddBlacklistWord(
	ctx context.Context, groupID, actorID int64, word string, action enum.Action,
) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.blacklist.Add(ctx, groupID, word, action, actorID)
}

// RemoveBlacklistWord removes a trigger word. Removing an unknown word is
// a no-op.
func (s *Service) RemoveBlacklistWord(ctx context.Context, groupID, actorID int64, word string) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.blacklist.Remove(ctx, groupID, word)
}

// AddFilter adds a keyword auto-reply.
func (s *Service) AddFilter(ctx context.Context, groupID, actorID int64, keyword, reply string) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.filters.Add(ctx, groupID, keyword, reply, actorID)
}

// RemoveFilter removes a keyword auto-reply.
func (s *Service) RemoveFilter(ctx context.Context, groupID, actorID int64, keyword string) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.filters.Remove(ctx, groupID, keyword)
}

// Approve marks a member as trusted, bypassing the content stages.
// Approving an already approved member changes nothing.
func (s *Service) Approve(ctx context.Context, groupID, actorID, userID int64) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.memberships.SetApproved(ctx, groupID, userID, true)
}

// Unapprove removes a member's trusted status.
func (s *Service) Unapprove(ctx context.Context, groupID, actorID, userID int64) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.memberships.SetApproved(ctx, groupID, userID, false)
}

// Warn issues a manual warning against a member. Approval does not shield
// the target, but a target at admin tier or above cannot be warned.
func (s *Service) Warn(
	ctx context.Context, groupID, actorID, userID int64, reason string,
) (*escalation.Outcome, error) {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return nil, err
	}

	if s.gate.Resolve(ctx, groupID, userID).BypassesPipeline() {
		return nil, ErrTargetProtected
	}

	policy, err := s.policies.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}

	return s.warns.Warn(ctx, policy, userID, reason, actorID)
}

// RemoveLastWarning removes the most recent warning and returns the
// remaining count.
func (s *Service) RemoveLastWarning(ctx context.Context, groupID, actorID, userID int64) (int, bool, error) {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return 0, false, err
	}

	return s.warns.RemoveLast(ctx, groupID, userID)
}

// ClearWarnings resets a member's warning count to zero.
func (s *Service) ClearWarnings(ctx context.Context, groupID, actorID, userID int64) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return err
	}

	return s.warns.Clear(ctx, groupID, userID)
}

// Warnings returns a member's current warning count.
func (s *Service) Warnings(ctx context.Context, groupID, actorID, userID int64) (int, error) {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierAdmin); err != nil {
		return 0, err
	}

	return s.warns.Count(ctx, groupID, userID)
}

// CreateFederation registers a new federation owned by the actor. Any
// user may create one; administration stays with the creator.
func (s *Service) CreateFederation(ctx context.Context, actorID int64, name string) (*types.Federation, error) {
	return s.feds.Create(ctx, name, actorID)
}

// DeleteFederation removes a federation. The registry enforces ownership.
func (s *Service) DeleteFederation(ctx context.Context, actorID int64, fedID string) error {
	return s.feds.Delete(ctx, fedID, actorID)
}

// JoinFederation attaches the group to a federation and applies its ban
// list. Creator only; joining hands the group's ban surface to the
// federation's admins.
func (s *Service) JoinFederation(
	ctx context.Context, groupID, actorID int64, fedID string,
) (*federation.FanOutResult, error) {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierCreator); err != nil {
		return nil, err
	}

	return s.feds.JoinGroup(ctx, fedID, groupID)
}

// LeaveFederation detaches the group from its federation. Creator only.
func (s *Service) LeaveFederation(ctx context.Context, groupID, actorID int64) error {
	if _, err := s.gate.Require(ctx, groupID, actorID, permission.TierCreator); err != nil {
		return err
	}

	return s.feds.LeaveGroup(ctx, groupID)
}

// FedBan bans a user across the federation. The registry enforces
// federation-level admin rights.
func (s *Service) FedBan(
	ctx context.Context, fedID string, actorID, userID int64, reason string,
) (*federation.FanOutResult, error) {
	return s.feds.Ban(ctx, fedID, actorID, userID, reason)
}

// FedUnban lifts a federation ban.
func (s *Service) FedUnban(
	ctx context.Context, fedID string, actorID, userID int64,
) (*federation.FanOutResult, error) {
	return s.feds.Unban(ctx, fedID, actorID, userID)
}

// FedAddAdmin delegates federation administration.
func (s *Service) FedAddAdmin(ctx context.Context, fedID string, actorID, userID int64) error {
	return s.feds.AddAdmin(ctx, fedID, actorID, userID)
}

// FedRemoveAdmin revokes a delegated federation admin.
func (s *Service) FedRemoveAdmin(ctx context.Context, fedID string, actorID, userID int64) error {
	return s.feds.RemoveAdmin(ctx, fedID, actorID, userID)
}
