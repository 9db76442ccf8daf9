package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/provider"
	"github.com/iliyamo/room-settlement/internal/repository"
	"github.com/iliyamo/room-settlement/internal/split"
)

// PaymentService issues sign requests at the wallet provider and keeps
// the local PENDING record that the webhook later resolves.
type PaymentService struct {
	store       repository.Store
	provider    Provider
	notifier    notify.Notifier
	publicURL   string
	baseUnitExp int32
}

// PaymentConfig configures a PaymentService.  PublicURL is where the
// provider sends the user back; BaseUnitExp is the number of decimal
// places between the currency unit and the network base unit.
type PaymentConfig struct {
	PublicURL   string
	BaseUnitExp int32
}

func NewPaymentService(store repository.Store, p Provider, notifier notify.Notifier, cfg PaymentConfig) *PaymentService {
	exp := cfg.BaseUnitExp
	if exp <= 0 {
		exp = 6
	}
	return &PaymentService{
		store:       store,
		provider:    p,
		notifier:    notifier,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		baseUnitExp: exp,
	}
}

// SignRequest is what the caller needs to send the user to the signer.
type SignRequest struct {
	ID        string           `json:"id"`
	PayloadID string           `json:"payload_id"`
	SignURL   string           `json:"sign_url"`
	QRURL     string           `json:"qr_url,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	BaseUnits string           `json:"base_units,omitempty"`
}

// IssuePaymentRequest starts an off-band payment of the participant's
// share to the owner's wallet.  The amount is computed here from the
// frozen weights; callers never supply it.
func (s *PaymentService) IssuePaymentRequest(ctx context.Context, userID, roomID, participantID string) (SignRequest, error) {
	var (
		rs     roomState
		payer  model.Participant
		wallet string
		amount decimal.Decimal
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		rs, err = lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		var ok bool
		payer, ok = rs.participant(participantID)
		if !ok {
			return ErrParticipantNotFound
		}
		if payer.UserID != userID {
			return ErrPermissionDenied
		}
		if rs.room.HasSettled {
			return ErrAlreadySettled
		}
		if !rs.room.IsReadyForSettlement {
			return ErrNotReady
		}
		if payer.Payed {
			return ErrAlreadyPaid
		}
		if payer.IsOwner() {
			return fmt.Errorf("%w: the owner receives payments and marks their own share paid", ErrInvalidInput)
		}
		owner, _ := rs.owner()
		profile, err := tx.GetProfile(ctx, owner.ProfileID)
		if err != nil {
			return err
		}
		if !profile.HasWallet() {
			return ErrOwnerWalletNotFound
		}
		wallet = *profile.Wallet
		amount, err = shareOf(rs, participantID)
		return err
	})
	if err != nil {
		return SignRequest{}, err
	}

	baseUnits := split.ToBaseUnits(amount, s.baseUnitExp)
	returnURL := s.publicURL + "/rooms/" + roomID
	created, err := s.provider.CreatePayload(ctx, provider.PayloadRequest{
		TxJSON: provider.TxJSON{
			TransactionType: provider.TxPayment,
			Amount:          baseUnits,
			Destination:     wallet,
			Memos:           []provider.Memo{provider.NewMemo("memo", rs.room.Name)},
		},
		Options: provider.Options{ReturnURL: provider.ReturnURL{App: returnURL, Web: returnURL}},
	})
	if err != nil {
		log.Printf("payments: create payload for participant %s: %v", participantID, err)
		return SignRequest{}, fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	payment := model.Payment{
		ID:            newID(),
		PayloadID:     created.UUID,
		ParticipantID: strPtr(participantID),
		Amount:        amount,
		Destination:   wallet,
		Status:        model.StatusPending,
	}
	if err := s.store.CreatePayment(ctx, &payment); err != nil {
		return SignRequest{}, err
	}
	notifyRoom(ctx, s.notifier, roomID, notify.PaymentUpdated,
		map[string]any{"participant_id": participantID, "payment_id": payment.ID})

	return SignRequest{
		ID:        payment.ID,
		PayloadID: created.UUID,
		SignURL:   created.Next.Always,
		QRURL:     created.Refs.QRPNG,
		Amount:    &amount,
		BaseUnits: baseUnits,
	}, nil
}

// IssueWalletLinkRequest asks the user to sign in with a wallet; the
// signing account becomes the profile's wallet once reconciled.
func (s *PaymentService) IssueWalletLinkRequest(ctx context.Context, userID string) (SignRequest, error) {
	profile, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		return SignRequest{}, err
	}
	returnURL := s.publicURL + "/profile"
	created, err := s.provider.CreatePayload(ctx, provider.PayloadRequest{
		TxJSON:  provider.TxJSON{TransactionType: provider.TxSignIn},
		Options: provider.Options{ReturnURL: provider.ReturnURL{App: returnURL, Web: returnURL}},
	})
	if err != nil {
		log.Printf("payments: create sign-in payload for profile %s: %v", profile.ID, err)
		return SignRequest{}, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	sr := model.SignatureRequest{
		ID:        newID(),
		PayloadID: created.UUID,
		ProfileID: profile.ID,
		Status:    model.StatusPending,
	}
	if err := s.store.CreateSignatureRequest(ctx, &sr); err != nil {
		return SignRequest{}, err
	}
	s.notifier.Notify(ctx, notify.UserScope(userID), notify.SignatureRequestUpdated,
		map[string]any{"signature_request_id": sr.ID})
	return SignRequest{ID: sr.ID, PayloadID: created.UUID, SignURL: created.Next.Always, QRURL: created.Refs.QRPNG}, nil
}

// LiveStatus is the provider's view of a payment still in flight.
type LiveStatus struct {
	Resolved         bool    `json:"resolved"`
	Signed           bool    `json:"signed"`
	Cancelled        bool    `json:"cancelled"`
	Expired          bool    `json:"expired"`
	TxID             *string `json:"txid"`
	ResolvedAt       *string `json:"resolved_at"`
	DispatchedResult *string `json:"dispatched_result"`
	DispatchedToNode *bool   `json:"dispatched_to_node"`
	NetworkID        *string `json:"network_id"`
}

// PaymentStatus is the local record plus, while PENDING, the provider's
// live view.  Reading status never mutates state; only the webhook does.
type PaymentStatus struct {
	Payment model.Payment `json:"payment"`
	Live    *LiveStatus   `json:"live,omitempty"`
}

// Status returns a payment to its participant or to the room owner.
func (s *PaymentService) Status(ctx context.Context, userID, paymentID string) (PaymentStatus, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return PaymentStatus{}, err
	}
	if err := s.canSeePayment(ctx, userID, payment); err != nil {
		return PaymentStatus{}, err
	}
	out := PaymentStatus{Payment: payment}
	if payment.Status != model.StatusPending {
		return out, nil
	}
	d, err := s.provider.GetPayload(ctx, payment.PayloadID)
	if err != nil {
		log.Printf("payments: poll payload %s: %v", payment.PayloadID, err)
		return PaymentStatus{}, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	out.Live = &LiveStatus{
		Resolved:         d.Meta.Resolved,
		Signed:           d.Meta.Signed,
		Cancelled:        d.Meta.Cancelled,
		Expired:          d.Meta.Expired,
		TxID:             d.Response.TxID,
		ResolvedAt:       d.Response.ResolvedAt,
		DispatchedResult: d.Response.DispatchedResult,
		DispatchedToNode: d.Response.DispatchedToNode,
		NetworkID:        d.NetworkID(),
	}
	return out, nil
}

func (s *PaymentService) canSeePayment(ctx context.Context, userID string, p model.Payment) error {
	if p.ParticipantID == nil {
		return ErrPermissionDenied
	}
	payer, err := s.store.GetParticipant(ctx, *p.ParticipantID)
	if err != nil {
		if isNotFound(err, repository.ErrParticipantNotFound) {
			return ErrPermissionDenied
		}
		return err
	}
	if payer.UserID == userID {
		return nil
	}
	ps, err := s.store.ListParticipants(ctx, payer.RoomID)
	if err != nil {
		return err
	}
	rs := roomState{participants: ps}
	if _, err := rs.requireOwner(userID); err != nil {
		return err
	}
	return nil
}
