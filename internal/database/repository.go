package database

import (
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/models"
)

// Repository provides access to all database models.
type Repository struct {
	policy     *models.PolicyModel
	warning    *models.WarningModel
	membership *models.MembershipModel
	blacklist  *models.BlacklistModel
	filter     *models.FilterModel
	federation *models.FederationModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		policy:     models.NewPolicy(db, logger),
		warning:    models.NewWarning(db, logger),
		membership: models.NewMembership(db, logger),
		blacklist:  models.NewBlacklist(db, logger),
		filter:     models.NewFilter(db, logger),
		federation: models.NewFederation(db, logger),
	}
}

// Policy returns the group policy model repository.
func (r *Repository) Policy() *models.PolicyModel {
	return r.policy
}

// Warning returns the warning model repository.
func (r *Repository) Warning() *models.WarningModel {
	return r.warning
}

// Membership returns the membership model repository.
func (r *Repository) Membership() *models.MembershipModel {
	return r.membership
}

// Blacklist returns the blacklist model repository.
func (r *Repository) Blacklist() *models.BlacklistModel {
	return r.blacklist
}

// Filter returns the keyword filter model repository.
func (r *Repository) Filter() *models.FilterModel {
	return r.filter
}

// Federation returns the federation model repository.
func (r *Repository) Federation() *models.FederationModel {
	return r.federation
}
