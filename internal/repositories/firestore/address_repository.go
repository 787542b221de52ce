package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/dentastore/api/internal/domain"
	pfirestore "github.com/dentastore/api/internal/platform/firestore"
)

// AddressRepository proves delivery address ownership for checkout.
type AddressRepository struct {
	provider *pfirestore.Provider
}

func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// FindOwned returns the address only when it belongs to the given user. An
// address owned by someone else is reported as not found, never as forbidden,
// so the endpoint does not leak address existence.
func (r *AddressRepository) FindOwned(ctx context.Context, userID, addressID string) (domain.Address, error) {
	if r == nil || r.provider == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" {
		return domain.Address{}, errors.New("address find: user id is required")
	}
	if addressID == "" {
		return domain.Address{}, errors.New("address find: address id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.find", err)
	}
	snap, err := client.Collection(addressesCollection).Doc(addressID).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.find", err)
	}
	var doc addressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", addressID, err)
	}
	if !strings.EqualFold(strings.TrimSpace(doc.UserID), userID) {
		return domain.Address{}, pfirestore.NewNotFound("addresses.find", fmt.Errorf("address %s not found for user", addressID))
	}
	return domain.Address{ID: addressID, UserID: doc.UserID}, nil
}
