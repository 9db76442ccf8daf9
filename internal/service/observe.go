package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/repository"
)

// ObserverService decides who may subscribe to a notification scope.
type ObserverService struct {
	store repository.Tx
}

func NewObserverService(store repository.Tx) *ObserverService {
	return &ObserverService{store: store}
}

// Authorize returns nil when userID may observe scope: room members for
// a room, the user themself, the paying participant for a payment and
// the profile's user for a signature request.
func (s *ObserverService) Authorize(ctx context.Context, userID, scope string) error {
	kind, id, ok := notify.ParseScope(scope)
	if !ok {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, scope)
	}
	switch kind {
	case notify.KindUser:
		if id != userID {
			return ErrPermissionDenied
		}
		return nil
	case notify.KindRoom:
		if _, err := s.store.GetRoom(ctx, id); err != nil {
			return err
		}
		ps, err := s.store.ListParticipants(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := (roomState{participants: ps}).member(userID); !ok {
			return ErrPermissionDenied
		}
		return nil
	case notify.KindPayment:
		p, err := s.store.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.ParticipantID == nil {
			return ErrPermissionDenied
		}
		payer, err := s.store.GetParticipant(ctx, *p.ParticipantID)
		if err != nil {
			return err
		}
		if payer.UserID != userID {
			return ErrPermissionDenied
		}
		return nil
	case notify.KindSignatureRequest:
		sr, err := s.store.GetSignatureRequest(ctx, id)
		if err != nil {
			return err
		}
		profile, err := s.store.GetProfile(ctx, sr.ProfileID)
		if err != nil {
			return err
		}
		if profile.UserID != userID {
			return ErrPermissionDenied
		}
		return nil
	}
	return ErrPermissionDenied
}
