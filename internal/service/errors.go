package service

import (
	"errors"

	"github.com/iliyamo/room-settlement/internal/repository"
)

// Authorization failures.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrOwnerCannotLeave = errors.New("owner cannot leave the room")
)

// State-precondition failures.
var (
	ErrRoomClosed          = errors.New("room is closed")
	ErrSettlementLocked    = errors.New("room is ready for settlement")
	ErrAlreadyReady        = errors.New("room is already ready for settlement")
	ErrNotReady            = errors.New("room is not ready for settlement")
	ErrAlreadySettled      = errors.New("room has already settled")
	ErrNotAllPaid          = errors.New("not every participant has paid")
	ErrOwnerWalletNotFound = errors.New("room owner has no linked wallet")
	ErrAlreadyPaid         = errors.New("participant has already paid")
	ErrAlreadyParticipant  = errors.New("profile already participates in room")
)

// Validation failures.
var (
	ErrInvalidWeight  = errors.New("weight must be a positive integer")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotSigned      = errors.New("provider does not confirm the signature")
)

// Not-found failures.  Repository sentinels are reused so errors.Is
// works whichever layer produced the error.
var (
	ErrWebhookEventNotFound = errors.New("no pending record for payload")
	ErrMissingReference     = errors.New("payment references a missing participant or room")
	ErrRoomNotFound         = repository.ErrRoomNotFound
	ErrParticipantNotFound  = repository.ErrParticipantNotFound
	ErrProfileNotFound      = repository.ErrProfileNotFound
	ErrPaymentNotFound      = repository.ErrPaymentNotFound
)

// ErrProviderError wraps any failure talking to the wallet provider.
var ErrProviderError = errors.New("payment provider error")
