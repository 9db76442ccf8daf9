package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/repository"
	"github.com/iliyamo/room-settlement/internal/split"
)

// ParticipantService is the participant ledger: membership, weights
// and paid flags, guarded by the room's lifecycle phase.
type ParticipantService struct {
	store    repository.Store
	notifier notify.Notifier
}

func NewParticipantService(store repository.Store, notifier notify.Notifier) *ParticipantService {
	return &ParticipantService{store: store, notifier: notifier}
}

// MaxWeight is the largest weight the participants.weight column holds.
const MaxWeight = math.MaxInt32

// ParticipantPatch carries optional changes; nil fields are left alone.
type ParticipantPatch struct {
	Payed  *bool `json:"payed"`
	Weight *int  `json:"weight"`
}

// ParticipantView is a participant with its current share and latest
// payment attempt.
type ParticipantView struct {
	model.ParticipantDetail
	Share         decimal.Decimal `json:"share"`
	LatestPayment *model.Payment  `json:"latest_payment"`
}

// Add puts a profile into a room with weight 1.  An empty profileID
// means the caller joins with their own profile; adding someone else's
// profile is reserved to the owner.  A closed room only accepts
// additions made by its owner.
func (s *ParticipantService) Add(ctx context.Context, userID, roomID, profileID string) (model.Participant, error) {
	var created model.Participant
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		rs, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if rs.room.HasSettled {
			return ErrAlreadySettled
		}
		if rs.room.IsReadyForSettlement {
			return ErrSettlementLocked
		}
		_, ownerErr := rs.requireOwner(userID)
		isOwner := ownerErr == nil
		if !rs.room.IsOpen && !isOwner {
			return ErrRoomClosed
		}

		var profile model.UserProfile
		if profileID == "" {
			profile, err = tx.GetProfileByUser(ctx, userID)
		} else {
			profile, err = tx.GetProfile(ctx, profileID)
		}
		if err != nil {
			return err
		}
		if profile.UserID != userID && !isOwner {
			return ErrPermissionDenied
		}
		if _, exists := rs.member(profile.UserID); exists {
			return ErrAlreadyParticipant
		}

		created = model.Participant{
			ID:        newID(),
			RoomID:    roomID,
			UserID:    profile.UserID,
			ProfileID: profile.ID,
			Role:      model.RoleNormal,
			Weight:    1,
		}
		if err := tx.CreateParticipant(ctx, &created); err != nil {
			if errors.Is(err, repository.ErrDuplicateParticipant) {
				return ErrAlreadyParticipant
			}
			return err
		}
		return nil
	})
	if err != nil {
		return model.Participant{}, err
	}
	notifyRoom(ctx, s.notifier, roomID, notify.ParticipantAdded, map[string]any{"participant_id": created.ID})
	s.notifier.Notify(ctx, notify.UserScope(created.UserID), notify.ParticipantAdded,
		map[string]any{"room_id": roomID, "participant_id": created.ID})
	return created, nil
}

// Update changes the paid flag and/or weight.  Only the participant
// themself or the room owner may do so; weights are frozen once the
// room is ready for settlement.
func (s *ParticipantService) Update(ctx context.Context, userID, participantID string, patch ParticipantPatch) (model.Participant, error) {
	if patch.Payed == nil && patch.Weight == nil {
		return model.Participant{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	roomID, err := roomOf(ctx, s.store, participantID)
	if err != nil {
		return model.Participant{}, err
	}
	var updated model.Participant
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		rs, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		target, ok := rs.participant(participantID)
		if !ok {
			return ErrParticipantNotFound
		}
		if !rs.isSelfOrOwner(userID, target) {
			return ErrPermissionDenied
		}
		// A settled room is also ready, so weight edits report the lock.
		if patch.Weight != nil && rs.room.IsReadyForSettlement {
			return ErrSettlementLocked
		}
		if rs.room.HasSettled {
			return ErrAlreadySettled
		}
		if patch.Weight != nil {
			if *patch.Weight <= 0 || *patch.Weight > MaxWeight {
				return ErrInvalidWeight
			}
			target.Weight = *patch.Weight
		}
		if patch.Payed != nil {
			target.Payed = *patch.Payed
		}
		if err := tx.UpdateParticipant(ctx, &target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return model.Participant{}, err
	}
	notifyRoom(ctx, s.notifier, roomID, notify.ParticipantUpdated, map[string]any{"participant_id": participantID})
	return updated, nil
}

// Remove deletes a participant.  The owner can never leave; the room
// has to be deleted instead.
func (s *ParticipantService) Remove(ctx context.Context, userID, participantID string) error {
	roomID, err := roomOf(ctx, s.store, participantID)
	if err != nil {
		return err
	}
	var removedUser string
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		rs, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		target, ok := rs.participant(participantID)
		if !ok {
			return ErrParticipantNotFound
		}
		if target.IsOwner() {
			return ErrOwnerCannotLeave
		}
		if !rs.isSelfOrOwner(userID, target) {
			return ErrPermissionDenied
		}
		if rs.room.HasSettled {
			return ErrAlreadySettled
		}
		if rs.room.IsReadyForSettlement {
			return ErrSettlementLocked
		}
		removedUser = target.UserID
		return tx.DeleteParticipant(ctx, participantID)
	})
	if err != nil {
		return err
	}
	notifyRoom(ctx, s.notifier, roomID, notify.ParticipantDeleted, map[string]any{"participant_id": participantID})
	s.notifier.Notify(ctx, notify.UserScope(removedUser), notify.ParticipantDeleted,
		map[string]any{"room_id": roomID, "participant_id": participantID})
	return nil
}

// Get returns one participant of a room to a member of that room.
func (s *ParticipantService) Get(ctx context.Context, userID, roomID, participantID string) (ParticipantView, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return ParticipantView{}, err
	}
	details, err := s.store.ListParticipantDetails(ctx, roomID)
	if err != nil {
		return ParticipantView{}, err
	}
	view, err := buildView(room, details, userID)
	if err != nil {
		return ParticipantView{}, err
	}
	if view.MyParticipantID == nil {
		return ParticipantView{}, ErrPermissionDenied
	}
	for _, ps := range view.Participants {
		if ps.ID != participantID {
			continue
		}
		out := ParticipantView{ParticipantDetail: ps.ParticipantDetail, Share: ps.Share}
		latest, err := s.store.LatestPaymentForParticipant(ctx, participantID)
		switch {
		case err == nil:
			out.LatestPayment = &latest
		case !errors.Is(err, repository.ErrPaymentNotFound):
			return ParticipantView{}, err
		}
		return out, nil
	}
	return ParticipantView{}, ErrParticipantNotFound
}

// CompletedPayment returns the participant's completed payment.  Only
// the participant's own user may read it.
func (s *ParticipantService) CompletedPayment(ctx context.Context, userID, participantID string) (model.Payment, error) {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return model.Payment{}, err
	}
	if p.UserID != userID {
		return model.Payment{}, ErrPermissionDenied
	}
	return s.store.CompletedPaymentForParticipant(ctx, participantID)
}

// shareOf computes what a participant owes right now.
func shareOf(rs roomState, participantID string) (decimal.Decimal, error) {
	return split.ShareOf(rs.room.TotalPrice, rs.participants, participantID)
}

// CheckRoom reports ErrParticipantNotFound unless participantID belongs
// to roomID.  Routes nest participants under their room.
func (s *ParticipantService) CheckRoom(ctx context.Context, roomID, participantID string) error {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if p.RoomID != roomID {
		return fmt.Errorf("%w: %s is not in room %s", ErrParticipantNotFound, participantID, roomID)
	}
	return nil
}
