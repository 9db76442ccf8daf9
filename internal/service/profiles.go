package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/repository"
)

// ProfileService reads and renames user profiles.  Wallet addresses are
// only ever written by the wallet-link reconciliation.
type ProfileService struct {
	store repository.Tx
}

func NewProfileService(store repository.Tx) *ProfileService {
	return &ProfileService{store: store}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (model.UserProfile, error) {
	return s.store.GetProfileByUser(ctx, userID)
}

// Rename changes the profile's display name.
func (s *ProfileService) Rename(ctx context.Context, userID, name string) (model.UserProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 120 {
		return model.UserProfile{}, fmt.Errorf("%w: name must be 1-120 characters", ErrInvalidInput)
	}
	p, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		return model.UserProfile{}, err
	}
	if err := s.store.UpdateProfileName(ctx, p.ID, name); err != nil {
		return model.UserProfile{}, err
	}
	p.Name = name
	return p, nil
}
