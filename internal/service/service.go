// Package service implements the room settlement domain: the room state
// machine, the participant ledger, payment request issuance and the
// webhook reconciler.  Every room-scoped mutation runs in one store
// transaction that starts by locking the room row, and notifications
// are emitted only after that transaction has committed.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/provider"
	"github.com/iliyamo/room-settlement/internal/repository"
)

// Provider is the subset of the wallet-signing platform the services use.
type Provider interface {
	CreatePayload(ctx context.Context, req provider.PayloadRequest) (*provider.Created, error)
	GetPayload(ctx context.Context, uuid string) (*provider.Detail, error)
}

// roomState is a room read under lock together with its participants.
type roomState struct {
	room         model.Room
	participants []model.Participant
}

func lockRoom(ctx context.Context, tx repository.Tx, roomID string) (roomState, error) {
	room, err := tx.LockRoom(ctx, roomID)
	if err != nil {
		return roomState{}, err
	}
	ps, err := tx.ListParticipants(ctx, roomID)
	if err != nil {
		return roomState{}, err
	}
	return roomState{room: room, participants: ps}, nil
}

func (rs roomState) owner() (model.Participant, bool) {
	for _, p := range rs.participants {
		if p.IsOwner() {
			return p, true
		}
	}
	return model.Participant{}, false
}

// member returns the caller's participant record in the room.
func (rs roomState) member(userID string) (model.Participant, bool) {
	for _, p := range rs.participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return model.Participant{}, false
}

func (rs roomState) participant(id string) (model.Participant, bool) {
	for _, p := range rs.participants {
		if p.ID == id {
			return p, true
		}
	}
	return model.Participant{}, false
}

// requireOwner fails with ErrPermissionDenied unless userID owns the room.
func (rs roomState) requireOwner(userID string) (model.Participant, error) {
	o, ok := rs.owner()
	if !ok || o.UserID != userID {
		return model.Participant{}, ErrPermissionDenied
	}
	return o, nil
}

// isSelfOrOwner is the authorization predicate for participant mutations.
func (rs roomState) isSelfOrOwner(userID string, target model.Participant) bool {
	if target.UserID == userID {
		return true
	}
	o, ok := rs.owner()
	return ok && o.UserID == userID
}

// roomOf resolves the room a participant belongs to, outside any transaction.
func roomOf(ctx context.Context, store repository.Tx, participantID string) (string, error) {
	p, err := store.GetParticipant(ctx, participantID)
	if err != nil {
		return "", err
	}
	return p.RoomID, nil
}

func newID() string { return uuid.NewString() }

func strPtr(s string) *string { return &s }

func isNotFound(err error, sentinels ...error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
