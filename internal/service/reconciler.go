package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/provider"
	"github.com/iliyamo/room-settlement/internal/repository"
)

// WebhookPayload is the callback body the provider POSTs once a sign
// request is resolved.  Only the correlation id and the signed flag are
// relied on; the flag is used for routing and is re-checked against the
// provider before anything is marked paid.
type WebhookPayload struct {
	Meta struct {
		URL              string `json:"url"`
		ApplicationUUID  string `json:"application_uuidv4"`
		PayloadUUID      string `json:"payload_uuidv4"`
		OpenedByDeeplink bool   `json:"opened_by_deeplink"`
	} `json:"meta"`
	CustomMeta struct {
		Identifier  *string `json:"identifier"`
		Blob        *string `json:"blob"`
		Instruction *string `json:"instruction"`
	} `json:"custom_meta"`
	PayloadResponse struct {
		PayloadUUID       string `json:"payload_uuidv4" validate:"required,max=64"`
		ReferenceCallUUID string `json:"reference_call_uuidv4"`
		Signed            *bool  `json:"signed" validate:"required"`
		UserToken         bool   `json:"user_token"`
		ReturnURL         struct {
			App *string `json:"app"`
			Web *string `json:"web"`
		} `json:"return_url"`
		TxID *string `json:"txid"`
	} `json:"payloadResponse"`
	UserToken *struct {
		UserToken       string `json:"user_token"`
		TokenIssued     int64  `json:"token_issued"`
		TokenExpiration int64  `json:"token_expiration"`
	} `json:"userToken"`
}

// Reconcile actions.
const (
	ActionCompleted = "completed"
	ActionFailed    = "failed"
	ActionUnchanged = "unchanged"
)

// ReconcileResult is the structured outcome returned to the provider.
type ReconcileResult struct {
	Action           string                  `json:"action"`
	Payment          *model.Payment          `json:"payment,omitempty"`
	SignatureRequest *model.SignatureRequest `json:"signature_request,omitempty"`
}

// Reconciler applies provider callbacks to local state.  It runs
// unattended: every path ends in a result or one of the package's
// sentinel errors, which the HTTP layer maps to the status code the
// provider's retry policy keys on.
type Reconciler struct {
	store    repository.Store
	provider Provider
	notifier notify.Notifier
	validate *validator.Validate
}

func NewReconciler(store repository.Store, p Provider, notifier notify.Notifier) *Reconciler {
	return &Reconciler{store: store, provider: p, notifier: notifier, validate: validator.New()}
}

// Decode parses and validates a raw callback body.
func (r *Reconciler) Decode(body []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := r.validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

// Handle decodes body and reconciles it.
func (r *Reconciler) Handle(ctx context.Context, body []byte) (ReconcileResult, error) {
	p, err := r.Decode(body)
	if err != nil {
		return ReconcileResult{}, err
	}
	return r.Reconcile(ctx, p)
}

// Reconcile routes the callback to the payment or the wallet-link path
// by its correlation id.
func (r *Reconciler) Reconcile(ctx context.Context, p WebhookPayload) (ReconcileResult, error) {
	payloadID := p.PayloadResponse.PayloadUUID
	signed := *p.PayloadResponse.Signed

	payment, err := r.store.GetPaymentByPayloadID(ctx, payloadID)
	if err == nil {
		return r.reconcilePayment(ctx, payment, signed, p.PayloadResponse.TxID)
	}
	if !errors.Is(err, repository.ErrPaymentNotFound) {
		return ReconcileResult{}, err
	}

	sr, err := r.store.GetSignatureRequestByPayloadID(ctx, payloadID)
	if err == nil {
		return r.reconcileSignatureRequest(ctx, sr, signed, p.PayloadResponse.TxID)
	}
	if errors.Is(err, repository.ErrSignatureRequestNotFound) {
		return ReconcileResult{}, fmt.Errorf("%w: %s", ErrWebhookEventNotFound, payloadID)
	}
	return ReconcileResult{}, err
}

// confirm fetches the provider's detail for a signed callback and checks
// it really is a signed request of the expected type.  It runs before
// any local transaction so a provider failure mutates nothing.
func (r *Reconciler) confirm(ctx context.Context, payloadID, txType string) (*provider.Detail, error) {
	d, err := r.provider.GetPayload(ctx, payloadID)
	if err != nil {
		log.Printf("reconciler: fetch payload %s: %v", payloadID, err)
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	switch {
	case !d.Meta.Signed:
		return nil, fmt.Errorf("%w: payload %s is not signed", ErrNotSigned, payloadID)
	case d.Meta.UUID != payloadID:
		return nil, fmt.Errorf("%w: detail uuid %s does not match %s", ErrNotSigned, d.Meta.UUID, payloadID)
	case d.Response.Account == nil || *d.Response.Account == "":
		return nil, fmt.Errorf("%w: payload %s has no signing account", ErrNotSigned, payloadID)
	case d.Payload.TxType != txType:
		return nil, fmt.Errorf("%w: payload %s is a %s, want %s", ErrNotSigned, payloadID, d.Payload.TxType, txType)
	}
	return d, nil
}

func (r *Reconciler) reconcilePayment(ctx context.Context, payment model.Payment, signed bool, txid *string) (ReconcileResult, error) {
	if payment.Status != model.StatusPending {
		return ReconcileResult{Action: ActionUnchanged, Payment: &payment}, nil
	}
	if payment.ParticipantID == nil {
		return ReconcileResult{}, fmt.Errorf("%w: payment %s has no participant", ErrMissingReference, payment.ID)
	}
	participantID := *payment.ParticipantID
	roomID, err := roomOf(ctx, r.store, participantID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return ReconcileResult{}, fmt.Errorf("%w: participant %s", ErrMissingReference, participantID)
		}
		return ReconcileResult{}, err
	}

	res := model.Resolution{Status: model.StatusFailed, TransactionID: txid}
	if signed {
		d, err := r.confirm(ctx, payment.PayloadID, provider.TxPayment)
		if err != nil {
			return ReconcileResult{}, err
		}
		res = model.Resolution{
			Status:        model.StatusCompleted,
			NetworkID:     d.NetworkID(),
			TransactionID: firstNonEmpty(d.Response.TxID, txid),
			Account:       d.Response.Account,
		}
	}

	changed := true
	err = r.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockRoom(ctx, roomID); err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return fmt.Errorf("%w: room %s", ErrMissingReference, roomID)
			}
			return err
		}
		if err := tx.ResolvePayment(ctx, payment.ID, res); err != nil {
			if errors.Is(err, repository.ErrNoChange) {
				changed = false
				return nil
			}
			return err
		}
		if !signed {
			return nil
		}
		if err := tx.MarkParticipantPayed(ctx, participantID); err != nil {
			if errors.Is(err, repository.ErrParticipantNotFound) {
				return fmt.Errorf("%w: participant %s", ErrMissingReference, participantID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	updated, err := r.store.GetPayment(ctx, payment.ID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if !changed {
		return ReconcileResult{Action: ActionUnchanged, Payment: &updated}, nil
	}

	payload := map[string]any{"participant_id": participantID, "payment_id": payment.ID}
	if signed {
		log.Printf("reconciler: payment %s completed, participant %s payed", payment.ID, participantID)
		notifyRoom(ctx, r.notifier, roomID, notify.ParticipantPayed, payload)
		r.notifier.Notify(ctx, notify.PaymentScope(payment.ID), notify.PaymentUpdated, map[string]any{"payment_id": payment.ID})
		return ReconcileResult{Action: ActionCompleted, Payment: &updated}, nil
	}
	log.Printf("reconciler: payment %s rejected by signer", payment.ID)
	notifyRoom(ctx, r.notifier, roomID, notify.PaymentUpdated, payload)
	r.notifier.Notify(ctx, notify.PaymentScope(payment.ID), notify.PaymentUpdated, map[string]any{"payment_id": payment.ID})
	return ReconcileResult{Action: ActionFailed, Payment: &updated}, nil
}

func (r *Reconciler) reconcileSignatureRequest(ctx context.Context, sr model.SignatureRequest, signed bool, txid *string) (ReconcileResult, error) {
	if sr.Status != model.StatusPending {
		return ReconcileResult{Action: ActionUnchanged, SignatureRequest: &sr}, nil
	}

	res := model.Resolution{Status: model.StatusFailed, TransactionID: txid}
	if signed {
		d, err := r.confirm(ctx, sr.PayloadID, provider.TxSignIn)
		if err != nil {
			return ReconcileResult{}, err
		}
		res = model.Resolution{
			Status:        model.StatusCompleted,
			NetworkID:     d.NetworkID(),
			TransactionID: firstNonEmpty(d.Response.TxID, txid),
			Account:       d.Response.Account,
		}
	}

	changed := true
	var ownerUserID string
	err := r.store.InTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, sr.ProfileID)
		if err != nil {
			if errors.Is(err, repository.ErrProfileNotFound) {
				return fmt.Errorf("%w: profile %s", ErrMissingReference, sr.ProfileID)
			}
			return err
		}
		ownerUserID = profile.UserID
		if err := tx.ResolveSignatureRequest(ctx, sr.ID, res); err != nil {
			if errors.Is(err, repository.ErrNoChange) {
				changed = false
				return nil
			}
			return err
		}
		if !signed {
			return nil
		}
		return tx.SetProfileWallet(ctx, profile.ID, *res.Account)
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	updated, err := r.store.GetSignatureRequest(ctx, sr.ID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if !changed {
		return ReconcileResult{Action: ActionUnchanged, SignatureRequest: &updated}, nil
	}

	action := ActionFailed
	if signed {
		action = ActionCompleted
		log.Printf("reconciler: wallet linked for profile %s", sr.ProfileID)
	}
	payload := map[string]any{"signature_request_id": sr.ID, "status": updated.Status}
	r.notifier.Notify(ctx, notify.SignatureRequestScope(sr.ID), notify.SignatureRequestUpdated, payload)
	r.notifier.Notify(ctx, notify.UserScope(ownerUserID), notify.SignatureRequestUpdated, payload)
	return ReconcileResult{Action: action, SignatureRequest: &updated}, nil
}

func firstNonEmpty(vals ...*string) *string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}
