package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Correlation record statuses.  A record starts PENDING and is moved to
// a terminal status at most once by the webhook reconciler.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Payment is the pending correlation record created when a participant
// is sent to the wallet provider to pay their share.  PayloadID is the
// provider-issued uuid and the only key the asynchronous callback
// carries.
//
// Fields:
//  ID            – primary key identifier (uuid).
//  PayloadID     – provider payload uuid (unique).
//  ParticipantID – paying participant; nil once the participant is deleted.
//  Amount        – amount requested in currency units.
//  Destination   – wallet address the payment is addressed to.
//  Status        – PENDING, COMPLETED or FAILED.
//  NetworkID     – settlement network id reported by the provider.
//  TransactionID – ledger transaction id reported by the provider.
//  Account       – paying account reported by the provider.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Payment struct {
	ID            string          `json:"id"`
	PayloadID     string          `json:"payload_id"`
	ParticipantID *string         `json:"participant_id"`
	Amount        decimal.Decimal `json:"amount"`
	Destination   string          `json:"destination"`
	Status        string          `json:"status"`
	NetworkID     *string         `json:"network_id"`
	TransactionID *string         `json:"transaction_id"`
	Account       *string         `json:"account"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SignatureRequest is the pending correlation record for a wallet-link
// (sign-in) request.  Signing it proves control of the account, which
// is then stored on the profile.
type SignatureRequest struct {
	ID            string    `json:"id"`
	PayloadID     string    `json:"payload_id"`
	ProfileID     string    `json:"profile_id"`
	Status        string    `json:"status"`
	NetworkID     *string   `json:"network_id"`
	TransactionID *string   `json:"transaction_id"`
	Account       *string   `json:"account"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Resolution carries the terminal values written onto a correlation
// record by the reconciler.
type Resolution struct {
	Status        string
	NetworkID     *string
	TransactionID *string
	Account       *string
}
