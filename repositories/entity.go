//go:generate go run go.uber.org/mock/mockgen -source=entity.go -destination=../mocks/mock_entity_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"gigspot/domain"
	"gigspot/errors"
)

// EntityRepository persists identity profiles and the account-to-entity
// index in BadgerDB. Keys:
//
//	profile:{type}:{id}          -> profileRow
//	account:{accountID}:{type}   -> entity id
type EntityRepository struct {
	db *badger.DB
}

func NewEntityRepository(db *badger.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

type profileRow struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	Image          string `json:"image,omitempty"`
	Location       string `json:"location,omitempty"`
	OwnerSpotterID string `json:"owner_spotter_id,omitempty"`
	AccountID      string `json:"account_id,omitempty"`
}

func profileKey(ref domain.EntityRef) []byte {
	return []byte(fmt.Sprintf("profile:%s:%s", ref.Type, ref.ID))
}

func accountKey(accountID string, t domain.EntityType) []byte {
	return []byte(fmt.Sprintf("account:%s:%s", accountID, t))
}

// PutProfile stores the profile row and, when the profile belongs to an
// account, the account index entry used by ActingEntity.
func (e *EntityRepository) PutProfile(ctx context.Context, p domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Ref.Type.Valid() {
		return fmt.Errorf("invalid entity type %q", p.Ref.Type)
	}
	data, err := json.Marshal(profileRow{
		ID:             p.Ref.ID,
		Type:           string(p.Ref.Type),
		Name:           p.Name,
		Image:          p.Image,
		Location:       p.Location,
		OwnerSpotterID: p.OwnerSpotterID,
		AccountID:      p.AccountID,
	})
	if err != nil {
		return fmt.Errorf("marshal profile row: %w", err)
	}
	return e.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(profileKey(p.Ref), data); err != nil {
			return err
		}
		if p.AccountID == "" {
			return nil
		}
		return txn.Set(accountKey(p.AccountID, p.Ref.Type), []byte(p.Ref.ID))
	})
}

// ActingEntity maps an account to the identity it acts as for
// messaging. Spotter wins over artist, artist over venue: messages are
// ultimately addressed between spotters, so the spotter row is the one
// that can actually converse.
func (e *EntityRepository) ActingEntity(ctx context.Context, accountID string) (domain.EntityRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.EntityRef{}, err
	}
	var ref domain.EntityRef
	err := e.db.View(func(txn *badger.Txn) error {
		for _, t := range domain.EntityTypes() {
			item, err := txn.Get(accountKey(accountID, t))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			ref = domain.EntityRef{ID: string(id), Type: t}
			return nil
		}
		return badger.ErrKeyNotFound
	})
	if err == badger.ErrKeyNotFound {
		return domain.EntityRef{}, &errors.NotFoundError{AccountID: accountID}
	}
	if err != nil {
		return domain.EntityRef{}, fmt.Errorf("acting entity lookup: %w", err)
	}
	return ref, nil
}

// Profile returns the stored profile behind a ref, or
// errors.ErrProfileNotFound when no row exists.
func (e *EntityRepository) Profile(ctx context.Context, ref domain.EntityRef) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}
	var row profileRow
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(ref))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Profile{}, errors.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("profile lookup: %w", err)
	}
	return domain.Profile{
		Ref:            domain.EntityRef{ID: row.ID, Type: domain.EntityType(row.Type)},
		Name:           row.Name,
		Image:          row.Image,
		Location:       row.Location,
		OwnerSpotterID: row.OwnerSpotterID,
		AccountID:      row.AccountID,
	}, nil
}

// OwnerSpotter resolves the spotter that owns an artist or venue
// profile. Spotter refs resolve to themselves; a missing link or a
// missing backing spotter row surfaces as ErrProfileNotFound.
func (e *EntityRepository) OwnerSpotter(ctx context.Context, ref domain.EntityRef) (domain.EntityRef, error) {
	if ref.Type == domain.EntitySpotter {
		return ref, nil
	}
	p, err := e.Profile(ctx, ref)
	if err != nil {
		return domain.EntityRef{}, err
	}
	if p.OwnerSpotterID == "" {
		return domain.EntityRef{}, errors.ErrProfileNotFound
	}
	owner := domain.EntityRef{ID: p.OwnerSpotterID, Type: domain.EntitySpotter}
	if _, err := e.Profile(ctx, owner); err != nil {
		return domain.EntityRef{}, err
	}
	return owner, nil
}
