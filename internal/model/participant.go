package model

import "time"

// Participant roles.  Exactly one owner exists per room.
const (
	RoleOwner  = "owner"
	RoleNormal = "normal"
)

// Participant is a user's membership in a room.  The weight decides the
// share of the room total the participant owes; Payed flips to true once
// the share has been paid (by webhook reconciliation or manually).
//
// Fields:
//  ID        – primary key identifier (uuid).
//  RoomID    – room the participant belongs to.
//  UserID    – account backing the participant.
//  ProfileID – profile supplying name and wallet.
//  Role      – owner or normal.
//  Weight    – positive integer weight, default 1.
//  Payed     – whether the full share has been paid.
//  CreatedAt – creation timestamp.
type Participant struct {
	ID        string    `json:"id"`         // participants.id
	RoomID    string    `json:"room_id"`    // participants.room_id
	UserID    string    `json:"user_id"`    // participants.user_id
	ProfileID string    `json:"profile_id"` // participants.profile_id
	Role      string    `json:"role"`       // participants.role
	Weight    int       `json:"weight"`     // participants.weight
	Payed     bool      `json:"payed"`      // participants.payed
	CreatedAt time.Time `json:"created_at"` // participants.created_at
}

// IsOwner reports whether the participant holds the owner role.
func (p Participant) IsOwner() bool { return p.Role == RoleOwner }

// HasEveryonePayed reports whether every participant in the slice has
// paid.  An empty slice is never considered paid.
func HasEveryonePayed(ps []Participant) bool {
	if len(ps) == 0 {
		return false
	}
	for _, p := range ps {
		if !p.Payed {
			return false
		}
	}
	return true
}

// ParticipantDetail is a participant joined with its profile, as shown
// inside a room view.
type ParticipantDetail struct {
	Participant
	Name   string  `json:"name"`   // user_profiles.name
	Wallet *string `json:"wallet"` // user_profiles.wallet
}
