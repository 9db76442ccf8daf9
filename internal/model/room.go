package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Room is a shared-expense session.  A room owns exactly one settlement
// lifecycle: it is open or closed while members join and adjust their
// weights, then becomes ready for settlement (shares frozen) and is
// finally settled once every participant has paid.
//
// Fields:
//  ID                   – primary key identifier (uuid).
//  Name                 – display name of the room.
//  Description          – free text describing the expense.
//  TotalPrice           – total cost to split, two decimal places.
//  IsOpen               – whether non-owners may join.
//  IsReadyForSettlement – shares are frozen and payments may be issued.
//  HasSettled           – every participant paid and the owner closed the bill.
//  CreatedAt            – creation timestamp.
//  UpdatedAt            – last update timestamp.
type Room struct {
	ID                   string          `json:"id"`                      // rooms.id
	Name                 string          `json:"name"`                    // rooms.name
	Description          string          `json:"description"`             // rooms.description
	TotalPrice           decimal.Decimal `json:"total_price"`             // rooms.total_price
	IsOpen               bool            `json:"is_open"`                 // rooms.is_open
	IsReadyForSettlement bool            `json:"is_ready_for_settlement"` // rooms.is_ready_for_settlement
	HasSettled           bool            `json:"has_settled"`             // rooms.has_settled
	CreatedAt            time.Time       `json:"created_at"`              // rooms.created_at
	UpdatedAt            time.Time       `json:"updated_at"`              // rooms.updated_at
}

// RoomState names the lifecycle phase derived from the room flags.
type RoomState string

const (
	RoomStateOpen               RoomState = "OPEN"
	RoomStateClosed             RoomState = "CLOSED"
	RoomStateReadyForSettlement RoomState = "READY_FOR_SETTLEMENT"
	RoomStateSettled            RoomState = "SETTLED"
)

// State collapses the three room flags into a single lifecycle phase.
func (r Room) State() RoomState {
	switch {
	case r.HasSettled:
		return RoomStateSettled
	case r.IsReadyForSettlement:
		return RoomStateReadyForSettlement
	case r.IsOpen:
		return RoomStateOpen
	default:
		return RoomStateClosed
	}
}
