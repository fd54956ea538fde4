// Package federation shares one ban list across member groups. The list
// is the durable decision; fan-out to member groups is best effort and
// never rolls the decision back.
package federation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
)

// ErrNotFederationAdmin is returned when the actor is neither the owner
// nor a delegated admin of the federation.
var ErrNotFederationAdmin = errors.New("not a federation admin")

// ErrNotFederationOwner is returned when an owner-only operation is
// attempted by someone else.
var ErrNotFederationOwner = errors.New("not the federation owner")

// Store is the durable federation state behind the registry.
type Store interface {
	Create(ctx context.Context, fed *types.Federation) error
	Get(ctx context.Context, fedID string) (*types.Federation, error)
	Delete(ctx context.Context, fedID string) error
	AddAdmin(ctx context.Context, fedID string, userID int64) error
	RemoveAdmin(ctx context.Context, fedID string, userID int64) error
	IsAdmin(ctx context.Context, fedID string, userID int64) (bool, error)
	JoinGroup(ctx context.Context, fedID string, groupID int64) error
	LeaveGroup(ctx context.Context, groupID int64) error
	MemberGroups(ctx context.Context, fedID string) ([]int64, error)
	GroupFederation(ctx context.Context, groupID int64) (string, error)
	AddBan(ctx context.Context, record *types.FedBan) error
	RemoveBan(ctx context.Context, fedID string, userID int64) (bool, error)
	IsBanned(ctx context.Context, fedID string, userID int64) (bool, error)
	Bans(ctx context.Context, fedID string) ([]*types.FedBan, error)
}

// BanClient is the subset of executor operations the fan-out needs.
type BanClient interface {
	Ban(ctx context.Context, groupID, userID int64) error
	Unban(ctx context.Context, groupID, userID int64) error
}

// FanOutResult reports the per-group outcome of one fan-out. Failed
// groups lag the registry until their next reconciliation; the registry
// entry itself is already durable.
type FanOutResult struct {
	Succeeded []int64
	Failed    []int64
}

// Registry manages federations and fans their ban list out to member
// groups.
type Registry struct {
	store       Store
	bans        BanClient
	logger      *zap.Logger
	callTimeout time.Duration
	concurrency int
	privileged  func(userID int64) bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithFanOut sets the per-group call timeout and the fan-out concurrency.
func WithFanOut(callTimeout time.Duration, concurrency int) Option {
	return func(r *Registry) {
		r.callTimeout = callTimeout
		r.concurrency = concurrency
	}
}

// WithPrivileged marks users allowed to administer any federation,
// normally the global owner and sudo list.
func WithPrivileged(fn func(userID int64) bool) Option {
	return func(r *Registry) { r.privileged = fn }
}

// NewRegistry creates a federation registry.
func NewRegistry(store Store, bans BanClient, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		bans:        bans,
		logger:      logger.Named("federation"),
		callTimeout: 10 * time.Second,
		concurrency: 8,
		privileged:  func(int64) bool { return false },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Create registers a new federation owned by the creator and returns it.
func (r *Registry) Create(ctx context.Context, name string, ownerID int64) (*types.Federation, error) {
	fed := &types.Federation{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.store.Create(ctx, fed); err != nil {
		return nil, err
	}

	r.logger.Info("Federation created",
		zap.String("fedID", fed.ID),
		zap.String("name", name),
		zap.Int64("ownerID", ownerID))

	return fed, nil
}

// Get returns a federation by ID.
func (r *Registry) Get(ctx context.Context, fedID string) (*types.Federation, error) {
	return r.store.Get(ctx, fedID)
}

// Delete removes a federation with its admins, member groups and ban
// list. Only the owner may delete; bans already applied in member groups
// stay in place.
func (r *Registry) Delete(ctx context.Context, fedID string, actorID int64) error {
	fed, err := r.store.Get(ctx, fedID)
	if err != nil {
		return err
	}

	if fed.OwnerID != actorID && !r.privileged(actorID) {
		return ErrNotFederationOwner
	}

	return r.store.Delete(ctx, fedID)
}

// AddAdmin delegates federation administration to a user. Owner only.
func (r *Registry) AddAdmin(ctx context.Context, fedID string, actorID, userID int64) error {
	fed, err := r.store.Get(ctx, fedID)
	if err != nil {
		return err
	}

	if fed.OwnerID != actorID && !r.privileged(actorID) {
		return ErrNotFederationOwner
	}

	return r.store.AddAdmin(ctx, fedID, userID)
}

// RemoveAdmin revokes a delegated admin. Owner only.
func (r *Registry) RemoveAdmin(ctx context.Context, fedID string, actorID, userID int64) error {
	fed, err := r.store.Get(ctx, fedID)
	if err != nil {
		return err
	}

	if fed.OwnerID != actorID && !r.privileged(actorID) {
		return ErrNotFederationOwner
	}

	return r.store.RemoveAdmin(ctx, fedID, userID)
}

// JoinGroup adds a group to the federation and applies the existing ban
// list to it. A group already in another federation moves to this one.
func (r *Registry) JoinGroup(ctx context.Context, fedID string, groupID int64) (*FanOutResult, error) {
	if _, err := r.store.Get(ctx, fedID); err != nil {
		return nil, err
	}

	if err := r.store.JoinGroup(ctx, fedID, groupID); err != nil {
		return nil, err
	}

	// The joining group catches up with the full ban list
	bans, err := r.store.Bans(ctx, fedID)
	if err != nil {
		return nil, err
	}

	result := &FanOutResult{}

	for _, ban := range bans {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.bans.Ban(callCtx, groupID, ban.UserID)

		cancel()

		if err != nil {
			r.logger.Warn("Failed to apply federation ban to joining group",
				zap.String("fedID", fedID),
				zap.Int64("groupID", groupID),
				zap.Int64("userID", ban.UserID),
				zap.Error(err))

			result.Failed = append(result.Failed, ban.UserID)

			continue
		}

		result.Succeeded = append(result.Succeeded, ban.UserID)
	}

	return result, nil
}

// LeaveGroup removes a group from its federation. Bans already applied
// stay in place.
func (r *Registry) LeaveGroup(ctx context.Context, groupID int64) error {
	return r.store.LeaveGroup(ctx, groupID)
}

// GroupFederation returns the federation a group belongs to, or empty.
func (r *Registry) GroupFederation(ctx context.Context, groupID int64) (string, error) {
	return r.store.GroupFederation(ctx, groupID)
}

// Ban records a federation ban and fans it out to every member group.
// The registry entry is written first so a crash mid fan-out loses
// member-group bans, never the decision.
func (r *Registry) Ban(
	ctx context.Context, fedID string, actorID, userID int64, reason string,
) (*FanOutResult, error) {
	if err := r.requireAdmin(ctx, fedID, actorID); err != nil {
		return nil, err
	}

	record := &types.FedBan{
		FedID:    fedID,
		UserID:   userID,
		Reason:   reason,
		BannedBy: actorID,
		BannedAt: time.Now().UTC(),
	}

	if err := r.store.AddBan(ctx, record); err != nil {
		return nil, err
	}

	result, err := r.fanOut(ctx, fedID, func(ctx context.Context, groupID int64) error {
		return r.bans.Ban(ctx, groupID, userID)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Federation ban applied",
		zap.String("fedID", fedID),
		zap.Int64("userID", userID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)))

	return result, nil
}

// Unban removes a federation ban and lifts it in every member group.
// Unbanning a user who is not on the list changes nothing.
func (r *Registry) Unban(ctx context.Context, fedID string, actorID, userID int64) (*FanOutResult, error) {
	if err := r.requireAdmin(ctx, fedID, actorID); err != nil {
		return nil, err
	}

	removed, err := r.store.RemoveBan(ctx, fedID, userID)
	if err != nil {
		return nil, err
	}

	if !removed {
		return &FanOutResult{}, nil
	}

	return r.fanOut(ctx, fedID, func(ctx context.Context, groupID int64) error {
		return r.bans.Unban(ctx, groupID, userID)
	})
}

// IsBanned reports whether a user is on the federation's ban list.
func (r *Registry) IsBanned(ctx context.Context, fedID string, userID int64) (bool, error) {
	return r.store.IsBanned(ctx, fedID, userID)
}

// Bans returns the federation's ban list.
func (r *Registry) Bans(ctx context.Context, fedID string) ([]*types.FedBan, error) {
	return r.store.Bans(ctx, fedID)
}

// requireAdmin verifies the actor is the owner, a delegated admin or a
// globally privileged user.
func (r *Registry) requireAdmin(ctx context.Context, fedID string, actorID int64) error {
	if r.privileged(actorID) {
		return nil
	}

	isAdmin, err := r.store.IsAdmin(ctx, fedID, actorID)
	if err != nil {
		return err
	}

	if !isAdmin {
		return ErrNotFederationAdmin
	}

	return nil
}

// fanOut runs one operation against every member group with bounded
// concurrency. Per-group failures are collected, never propagated; a
// failed group lags the registry until its next join or manual retry.
func (r *Registry) fanOut(
	ctx context.Context, fedID string, op func(ctx context.Context, groupID int64) error,
) (*FanOutResult, error) {
	groups, err := r.store.MemberGroups(ctx, fedID)
	if err != nil {
		return nil, err
	}

	var (
		p      = pool.New().WithContext(ctx).WithMaxGoroutines(r.concurrency)
		mu     sync.Mutex
		result = &FanOutResult{}
	)

	for _, groupID := range groups {
		groupID := groupID
		p.Go(func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
			defer cancel()

			err := op(callCtx, groupID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				r.logger.Warn("Federation fan-out call failed",
					zap.String("fedID", fedID),
					zap.Int64("groupID", groupID),
					zap.Error(err))

				result.Failed = append(result.Failed, groupID)

				return nil
			}

			result.Succeeded = append(result.Succeeded, groupID)

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("federation fan-out interrupted: %w", err)
	}

	return result, nil
}
