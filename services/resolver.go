// Package services exposes the messaging core operations to
// presentation code. It accepts an explicit viewer EntityRef, never an
// ambient identity, and returns plain domain values or typed errors.
package services

import (
	"context"
	stderrors "errors"
	"log/slog"

	"gigspot/contract"
	"gigspot/domain"
	"gigspot/errors"
)

// EntityResolver maps accounts to acting identities and entity refs to
// displayable identities. It also enforces the one load-bearing rule of
// the identity model: artists and venues are not directly messageable,
// conversations always ultimately address the owning spotter.
type EntityResolver struct {
	log      *slog.Logger
	entities contract.EntityStore
}

func NewEntityResolver(log *slog.Logger, entities contract.EntityStore) *EntityResolver {
	return &EntityResolver{log: log, entities: entities}
}

// ActingEntity determines which entity row the account currently acts
// as. A *errors.NotFoundError means the account cannot enter the
// messaging core at all.
func (r *EntityResolver) ActingEntity(ctx context.Context, accountID string) (domain.EntityRef, error) {
	ref, err := r.entities.ActingEntity(ctx, accountID)
	if err != nil {
		return domain.EntityRef{}, err
	}
	r.log.Debug("Acting entity resolved", "account", accountID, "entity", ref.String())
	return ref, nil
}

// DisplayIdentity returns the name and image for any entity ref.
func (r *EntityResolver) DisplayIdentity(ctx context.Context, ref domain.EntityRef) (domain.DisplayIdentity, error) {
	p, err := r.entities.Profile(ctx, ref)
	if err != nil {
		if stderrors.Is(err, errors.ErrProfileNotFound) {
			return domain.DisplayIdentity{}, &errors.ResolutionError{
				EntityID:   ref.ID,
				EntityType: string(ref.Type),
				Err:        err,
			}
		}
		return domain.DisplayIdentity{}, err
	}
	return p.Display(), nil
}

// ResolveMessageable substitutes an artist or venue ref with its owning
// spotter. The switch is exhaustive over the entity variant; an
// unmessageable or dangling ref fails with *errors.ResolutionError and
// the caller must abort conversation creation.
func (r *EntityResolver) ResolveMessageable(ctx context.Context, ref domain.EntityRef) (domain.EntityRef, error) {
	switch ref.Type {
	case domain.EntitySpotter:
		return ref, nil
	case domain.EntityArtist, domain.EntityVenue:
		owner, err := r.entities.OwnerSpotter(ctx, ref)
		if err != nil {
			return domain.EntityRef{}, &errors.ResolutionError{
				EntityID:   ref.ID,
				EntityType: string(ref.Type),
				Err:        err,
			}
		}
		r.log.Debug("Substituted owning spotter", "entity", ref.String(), "spotter", owner.ID)
		return owner, nil
	default:
		return domain.EntityRef{}, &errors.ResolutionError{
			EntityID:   ref.ID,
			EntityType: string(ref.Type),
			Err:        errors.ErrProfileNotFound,
		}
	}
}
