// Package permission resolves actors to capability tiers.
package permission

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/platform"
)

// Tier is an actor's capability level within a group. Higher values carry
// every capability of the lower ones.
type Tier int

const (
	TierMember Tier = iota
	TierApproved
	TierAdmin
	TierCreator
	TierSudo
	TierOwner
)

// String returns the lowercase name of the tier.
func (t Tier) String() string {
	switch t {
	case TierOwner:
		return "owner"
	case TierSudo:
		return "sudo"
	case TierCreator:
		return "creator"
	case TierAdmin:
		return "admin"
	case TierApproved:
		return "approved"
	default:
		return "member"
	}
}

// BypassesPipeline reports whether the tier skips the content stages
// entirely. Approved members get a narrower bypass handled inside the
// pipeline itself.
func (t Tier) BypassesPipeline() bool {
	return t >= TierAdmin
}

// ErrInsufficientTier indicates an actor below the required tier tried to
// perform a gated operation.
var ErrInsufficientTier = errors.New("insufficient permission tier")

// ApprovalStore answers whether a member is approved in a group.
type ApprovalStore interface {
	IsApproved(ctx context.Context, groupID, userID int64) (bool, error)
}

// Resolver maps an actor and group onto a tier. The global owner and sudo
// lists come from configuration; group roles from the platform; approval
// from local storage.
type Resolver struct {
	ownerID   int64
	sudoIDs   map[int64]struct{}
	client    platform.Client
	approvals ApprovalStore
	logger    *zap.Logger
}

// NewResolver creates a resolver over the given collaborators.
func NewResolver(
	ownerID int64, sudoIDs []int64, client platform.Client, approvals ApprovalStore, logger *zap.Logger,
) *Resolver {
	sudo := make(map[int64]struct{}, len(sudoIDs))
	for _, id := range sudoIDs {
		sudo[id] = struct{}{}
	}

	return &Resolver{
		ownerID:   ownerID,
		sudoIDs:   sudo,
		client:    client,
		approvals: approvals,
		logger:    logger.Named("permission"),
	}
}

// Resolve returns the actor's tier in a group. Pass groupID 0 for private
// context, which resolves only the global lists. A failing platform role
// query resolves to Member, never to a higher tier.
func (r *Resolver) Resolve(ctx context.Context, groupID, userID int64) Tier {
	if userID == r.ownerID {
		return TierOwner
	}

	if _, ok := r.sudoIDs[userID]; ok {
		return TierSudo
	}

	if groupID == 0 {
		return TierMember
	}

	role, err := r.client.GetMemberRole(ctx, groupID, userID)
	if err != nil {
		// Fail closed: an unanswerable role query must never grant rights
		r.logger.Warn("Role query failed, resolving as member",
			zap.Int64("groupID", groupID),
			zap.Int64("userID", userID),
			zap.Error(err))

		return TierMember
	}

	switch role {
	case platform.RoleCreator:
		return TierCreator
	case platform.RoleAdmin:
		return TierAdmin
	}

	approved, err := r.approvals.IsApproved(ctx, groupID, userID)
	if err != nil {
		r.logger.Warn("Approval lookup failed, resolving as member",
			zap.Int64("groupID", groupID),
			zap.Int64("userID", userID),
			zap.Error(err))

		return TierMember
	}

	if approved {
		return TierApproved
	}

	return TierMember
}

// Require resolves the actor's tier and returns ErrInsufficientTier when
// it is below min. Gated operations call this once before dispatch.
func (r *Resolver) Require(ctx context.Context, groupID, userID int64, min Tier) (Tier, error) {
	tier := r.Resolve(ctx, groupID, userID)
	if tier < min {
		return tier, ErrInsufficientTier
	}

	return tier, nil
}
