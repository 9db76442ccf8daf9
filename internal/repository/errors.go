// Package repository defines the persistence layer and the sentinel
// errors reused across it.  Handlers and services distinguish failure
// scenarios with errors.Is against these values instead of inspecting
// driver errors; for example ErrNoChange tells the webhook reconciler
// that a correlation record already left PENDING, while ErrEmailExists
// signals a duplicate registration.
package repository

import "errors"

var (
	ErrRoomNotFound             = errors.New("room not found")
	ErrParticipantNotFound      = errors.New("participant not found")
	ErrProfileNotFound          = errors.New("profile not found")
	ErrUserNotFound             = errors.New("user not found")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrSignatureRequestNotFound = errors.New("signature request not found")
	ErrEmailExists              = errors.New("email already exists")
	ErrDuplicateParticipant     = errors.New("profile already participates in room")
	ErrTokenInvalid             = errors.New("refresh token invalid")
)

// ErrNoChange is returned by compare-and-swap updates that matched no
// row, e.g. resolving a payment that is no longer PENDING.
var ErrNoChange = errors.New("no change")
