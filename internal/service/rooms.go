package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/repository"
	"github.com/iliyamo/room-settlement/internal/split"
)

// RoomService owns the room lifecycle:
//
//	Open <-> Closed                   owner only, freely reversible
//	Open/Closed -> ReadyForSettlement owner only, one way, owner wallet required
//	ReadyForSettlement -> Settled     owner only, everyone must have paid
type RoomService struct {
	store    repository.Store
	notifier notify.Notifier
}

func NewRoomService(store repository.Store, notifier notify.Notifier) *RoomService {
	return &RoomService{store: store, notifier: notifier}
}

// RoomInput is the payload for creating a room.
type RoomInput struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=2000"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// RoomPatch carries optional room field changes.
type RoomPatch struct {
	Name        *string          `json:"name" validate:"omitempty,max=120"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	TotalPrice  *decimal.Decimal `json:"total_price"`
}

// ParticipantShare is a participant with the share it currently owes.
type ParticipantShare struct {
	model.ParticipantDetail
	Share decimal.Decimal `json:"share"`
}

// RoomView is the read model returned to room observers.  Shares are
// recomputed from the current weights on every read.
type RoomView struct {
	model.Room
	State            model.RoomState    `json:"state"`
	Participants     []ParticipantShare `json:"participants"`
	TotalWeight      int                `json:"total_weight"`
	HasEveryonePayed bool               `json:"has_everyone_payed"`
	MyParticipantID  *string            `json:"my_participant_id"`
}

func validPrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return fmt.Errorf("%w: total price must not be negative", ErrInvalidInput)
	}
	if !p.Equal(p.Round(2)) {
		return fmt.Errorf("%w: total price has more than two decimals", ErrInvalidInput)
	}
	return nil
}

// Create inserts a room and its owner participant in one transaction.
func (s *RoomService) Create(ctx context.Context, userID string, in RoomInput) (model.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Room{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validPrice(in.TotalPrice); err != nil {
		return model.Room{}, err
	}
	var room model.Room
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfileByUser(ctx, userID)
		if err != nil {
			return err
		}
		room = model.Room{
			ID:          newID(),
			Name:        name,
			Description: strings.TrimSpace(in.Description),
			TotalPrice:  in.TotalPrice.Round(2),
			IsOpen:      true,
		}
		if err := tx.CreateRoom(ctx, &room); err != nil {
			return err
		}
		owner := model.Participant{
			ID:        newID(),
			RoomID:    room.ID,
			UserID:    userID,
			ProfileID: profile.ID,
			Role:      model.RoleOwner,
			Weight:    1,
		}
		return tx.CreateParticipant(ctx, &owner)
	})
	if err != nil {
		return model.Room{}, err
	}
	s.notifier.Notify(ctx, notify.UserScope(userID), notify.RoomCreated, map[string]any{"room_id": room.ID})
	return room, nil
}

// Get returns the room view for any authenticated user; joining a room
// requires seeing it first.
func (s *RoomService) Get(ctx context.Context, userID, roomID string) (RoomView, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return RoomView{}, err
	}
	details, err := s.store.ListParticipantDetails(ctx, roomID)
	if err != nil {
		return RoomView{}, err
	}
	return buildView(room, details, userID)
}

func buildView(room model.Room, details []model.ParticipantDetail, userID string) (RoomView, error) {
	ps := make([]model.Participant, len(details))
	for i, d := range details {
		ps[i] = d.Participant
	}
	shares, err := split.Shares(room.TotalPrice, ps)
	if err != nil {
		return RoomView{}, err
	}
	v := RoomView{
		Room:             room,
		State:            room.State(),
		Participants:     make([]ParticipantShare, len(details)),
		TotalWeight:      split.TotalWeight(ps),
		HasEveryonePayed: model.HasEveryonePayed(ps),
	}
	for i, d := range details {
		v.Participants[i] = ParticipantShare{ParticipantDetail: d, Share: shares[d.ID]}
		if d.UserID == userID {
			v.MyParticipantID = strPtr(d.ID)
		}
	}
	return v, nil
}

// ListMine returns the rooms the user participates in.
func (s *RoomService) ListMine(ctx context.Context, userID string) ([]model.Room, error) {
	rooms, err := s.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	return rooms, nil
}

// Update changes name, description or total price.  The price is
// frozen once the room is ready for settlement.
func (s *RoomService) Update(ctx context.Context, userID, roomID string, patch RoomPatch) (model.Room, error) {
	room, err := s.ownerTransition(ctx, userID, roomID, func(rs *roomState) error {
		if rs.room.HasSettled {
			return ErrAlreadySettled
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return fmt.Errorf("%w: name is required", ErrInvalidInput)
			}
			rs.room.Name = name
		}
		if patch.Description != nil {
			rs.room.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.TotalPrice != nil {
			if rs.room.IsReadyForSettlement {
				return ErrSettlementLocked
			}
			if err := validPrice(*patch.TotalPrice); err != nil {
				return err
			}
			rs.room.TotalPrice = patch.TotalPrice.Round(2)
		}
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	s.notifyRoom(ctx, room.ID, notify.RoomUpdated, nil)
	return room, nil
}

// Delete removes the room; participants go first in the same
// transaction.  Payment records keep their history with a null
// participant reference.
func (s *RoomService) Delete(ctx context.Context, userID, roomID string) error {
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		rs, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if _, err := rs.requireOwner(userID); err != nil {
			return err
		}
		if _, err := tx.DeleteParticipantsByRoom(ctx, roomID); err != nil {
			return err
		}
		return tx.DeleteRoom(ctx, roomID)
	})
	if err != nil {
		return err
	}
	s.notifyRoom(ctx, roomID, notify.RoomDeleted, nil)
	return nil
}

// Open lets non-owners join again.
func (s *RoomService) Open(ctx context.Context, userID, roomID string) (model.Room, error) {
	return s.setOpen(ctx, userID, roomID, true)
}

// Close stops non-owners from joining.
func (s *RoomService) Close(ctx context.Context, userID, roomID string) (model.Room, error) {
	return s.setOpen(ctx, userID, roomID, false)
}

func (s *RoomService) setOpen(ctx context.Context, userID, roomID string, open bool) (model.Room, error) {
	room, err := s.ownerTransition(ctx, userID, roomID, func(rs *roomState) error {
		if rs.room.HasSettled {
			return ErrAlreadySettled
		}
		// a room cannot go back to Open/Closed once shares are frozen
		if rs.room.IsReadyForSettlement {
			return ErrSettlementLocked
		}
		rs.room.IsOpen = open
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	event := notify.RoomClosed
	if open {
		event = notify.RoomOpened
	}
	s.notifyRoom(ctx, room.ID, event, nil)
	return room, nil
}

// SetReadyForSettlement freezes membership, weights and price so
// participants can start paying the owner.
func (s *RoomService) SetReadyForSettlement(ctx context.Context, userID, roomID string) (model.Room, error) {
	room, err := s.ownerTransitionTx(ctx, userID, roomID, func(tx repository.Tx, rs *roomState) error {
		if rs.room.IsReadyForSettlement {
			return ErrAlreadyReady
		}
		owner, _ := rs.owner()
		profile, err := tx.GetProfile(ctx, owner.ProfileID)
		if err != nil {
			return err
		}
		if !profile.HasWallet() {
			return ErrOwnerWalletNotFound
		}
		rs.room.IsReadyForSettlement = true
		rs.room.IsOpen = false
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	s.notifyRoom(ctx, room.ID, notify.RoomReadyForSettlement, nil)
	return room, nil
}

// Settle closes the bill.  hasEveryonePayed is evaluated on the
// participant set read under the room lock, so a payment reconciled
// concurrently is either fully visible or not at all.
func (s *RoomService) Settle(ctx context.Context, userID, roomID string) (model.Room, error) {
	room, err := s.ownerTransition(ctx, userID, roomID, func(rs *roomState) error {
		if !rs.room.IsReadyForSettlement {
			return ErrNotReady
		}
		if rs.room.HasSettled {
			return ErrAlreadySettled
		}
		if !model.HasEveryonePayed(rs.participants) {
			return ErrNotAllPaid
		}
		rs.room.HasSettled = true
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	s.notifyRoom(ctx, room.ID, notify.RoomSettled, nil)
	return room, nil
}

func (s *RoomService) ownerTransition(ctx context.Context, userID, roomID string, fn func(rs *roomState) error) (model.Room, error) {
	return s.ownerTransitionTx(ctx, userID, roomID, func(_ repository.Tx, rs *roomState) error { return fn(rs) })
}

// ownerTransitionTx locks the room, checks ownership, applies fn and
// writes the room back.
func (s *RoomService) ownerTransitionTx(ctx context.Context, userID, roomID string, fn func(tx repository.Tx, rs *roomState) error) (model.Room, error) {
	var out model.Room
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		rs, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if _, err := rs.requireOwner(userID); err != nil {
			return err
		}
		if err := fn(tx, &rs); err != nil {
			return err
		}
		if err := tx.UpdateRoom(ctx, &rs.room); err != nil {
			return err
		}
		out = rs.room
		return nil
	})
	return out, err
}

func (s *RoomService) notifyRoom(ctx context.Context, roomID, event string, payload map[string]any) {
	notifyRoom(ctx, s.notifier, roomID, event, payload)
}

// notifyRoom emits a room-scoped event that always names the room.
func notifyRoom(ctx context.Context, n notify.Notifier, roomID, event string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["room_id"] = roomID
	n.Notify(ctx, notify.RoomScope(roomID), event, payload)
}
