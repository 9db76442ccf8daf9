// Package notify fans out "something changed" events to observers.
// Events are invalidation hints: they name what changed and carry ids,
// never authoritative state, and may be dropped or reordered.
package notify

import (
	"strings"
	"time"
)

// Event names.
const (
	RoomCreated             = "room-created"
	RoomOpened              = "room-opened"
	RoomClosed              = "room-closed"
	RoomUpdated             = "room-updated"
	RoomDeleted             = "room-deleted"
	RoomReadyForSettlement  = "room-ready-for-settlement"
	RoomSettled             = "room-settled"
	ParticipantAdded        = "participant-added"
	ParticipantUpdated      = "participant-updated"
	ParticipantDeleted      = "participant-deleted"
	ParticipantPayed        = "participant-payed"
	SignatureRequestUpdated = "signature-request-updated"
	PaymentUpdated          = "payment-updated"
)

// Scope kinds.
const (
	KindRoom             = "room"
	KindUser             = "user"
	KindPayment          = "payment"
	KindSignatureRequest = "signature-request"
)

// Event is one change notification.
type Event struct {
	Scope   string         `json:"scope"`
	Name    string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

func RoomScope(id string) string             { return KindRoom + "-" + id }
func UserScope(id string) string             { return KindUser + "-" + id }
func PaymentScope(id string) string          { return KindPayment + "-" + id }
func SignatureRequestScope(id string) string { return KindSignatureRequest + "-" + id }

// ParseScope splits a scope into its kind and id.
func ParseScope(scope string) (kind, id string, ok bool) {
	// longest kind first: "signature-request-" also contains a dash
	for _, k := range []string{KindSignatureRequest, KindPayment, KindRoom, KindUser} {
		if rest, found := strings.CutPrefix(scope, k+"-"); found && rest != "" {
			return k, rest, true
		}
	}
	return "", "", false
}
