package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/provider"
	"github.com/iliyamo/room-settlement/internal/testutil"
)

// webhookBody renders a provider callback for payloadID.
func webhookBody(payloadID string, signed bool) []byte {
	body := map[string]any{
		"meta": map[string]any{
			"url":                "https://app.test/v1/webhooks/xumm",
			"application_uuidv4": "11111111-2222-4333-8444-555555555555",
			"payload_uuidv4":     payloadID,
			"opened_by_deeplink": true,
		},
		"custom_meta": map[string]any{"identifier": nil, "blob": nil, "instruction": nil},
		"payloadResponse": map[string]any{
			"payload_uuidv4":        payloadID,
			"reference_call_uuidv4": "66666666-7777-4888-9999-000000000000",
			"signed":                signed,
			"user_token":            false,
			"return_url":            map[string]any{"app": nil, "web": nil},
			"txid":                  "CALLBACKTX",
		},
	}
	b, _ := json.Marshal(body)
	return b
}

// pendingPayment returns a ready two-person room where bob holds a
// PENDING payment request.
func pendingPayment(t *testing.T, f *fixture) (model.Room, []member, SignRequest) {
	t.Helper()
	room, ms := f.readyRoom(t, "20", "alice", "bob")
	req, err := f.payments.IssuePaymentRequest(context.Background(), ms[1].user.ID, room.ID, ms[1].participant.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.notes.Reset()
	return room, ms, req
}

func signedProvider(f *fixture, txType string) {
	f.prov.GetPayloadFunc = func(_ context.Context, uuid string) (*provider.Detail, error) {
		return testutil.SignedDetail(uuid, txType, "rSigner", "LEDGERTX"), nil
	}
}

func TestReconcileSignedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, ms, req := pendingPayment(t, f)
	signedProvider(f, provider.TxPayment)

	res, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Action != ActionCompleted || res.Payment == nil {
		t.Fatalf("result = %+v", res)
	}
	p := res.Payment
	if p.Status != model.StatusCompleted || *p.TransactionID != "LEDGERTX" || *p.Account != "rSigner" || *p.NetworkID != "1" {
		t.Errorf("payment = %+v", p)
	}
	if !f.participant(t, ms[1].participant.ID).Payed {
		t.Error("participant not marked payed")
	}
	if !f.notes.Has(notify.RoomScope(room.ID), notify.ParticipantPayed) {
		t.Errorf("participant-payed missing: %v", f.notes.Names())
	}
	if !f.notes.Has(notify.PaymentScope(req.ID), notify.PaymentUpdated) {
		t.Errorf("payment-updated missing: %v", f.notes.Names())
	}
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, req := pendingPayment(t, f)
	signedProvider(f, provider.TxPayment)

	if _, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true)); err != nil {
		t.Fatal(err)
	}
	f.notes.Reset()
	calls := f.prov.GetCalls

	res, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if res.Action != ActionUnchanged || res.Payment.Status != model.StatusCompleted {
		t.Fatalf("redelivery result = %+v", res)
	}
	if len(f.notes.Names()) != 0 {
		t.Errorf("redelivery notified: %v", f.notes.Names())
	}
	if f.prov.GetCalls != calls {
		t.Error("redelivery called the provider")
	}

	// A late rejection for an already completed payment is ignored too.
	res, err = f.rec.Handle(ctx, webhookBody(req.PayloadID, false))
	if err != nil || res.Action != ActionUnchanged || res.Payment.Status != model.StatusCompleted {
		t.Fatalf("late rejection: %+v %v", res, err)
	}
}

func TestReconcileRejectedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, ms, req := pendingPayment(t, f)

	res, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, false))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Action != ActionFailed || res.Payment.Status != model.StatusFailed {
		t.Fatalf("result = %+v", res)
	}
	if f.participant(t, ms[1].participant.ID).Payed {
		t.Error("rejected payment marked participant payed")
	}
	if f.prov.GetCalls != 0 {
		t.Error("rejection consulted the provider")
	}
	if !f.notes.Has(notify.RoomScope(room.ID), notify.PaymentUpdated) || f.notes.Has(notify.RoomScope(room.ID), notify.ParticipantPayed) {
		t.Errorf("notifications = %v", f.notes.Names())
	}

	// The participant can try again after a rejection.
	if _, err := f.payments.IssuePaymentRequest(ctx, ms[1].user.ID, room.ID, ms[1].participant.ID); err != nil {
		t.Fatalf("reissue after rejection: %v", err)
	}
}

func TestReconcileUnknownPayload(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.Handle(context.Background(), webhookBody(testutil.PayloadUUID(99), true))
	if !errors.Is(err, ErrWebhookEventNotFound) {
		t.Fatalf("err = %v, want ErrWebhookEventNotFound", err)
	}
}

func TestReconcileInvalidPayload(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"not json":       `{"meta":`,
		"missing uuid":   `{"payloadResponse":{"signed":true}}`,
		"missing signed": `{"payloadResponse":{"payload_uuidv4":"abc"}}`,
		"empty object":   `{}`,
		"wrong type":     `{"payloadResponse":{"payload_uuidv4":"abc","signed":"yes"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.rec.Handle(context.Background(), []byte(body)); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("err = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestReconcileProviderFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ms, req := pendingPayment(t, f)

	if _, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true)); !errors.Is(err, ErrProviderError) {
		t.Fatalf("err = %v, want ErrProviderError", err)
	}
	p, _ := f.store.GetPayment(ctx, req.ID)
	if p.Status != model.StatusPending || f.participant(t, ms[1].participant.ID).Payed {
		t.Fatalf("state mutated: payment %s", p.Status)
	}

	// The provider's retry succeeds once it is reachable again.
	signedProvider(f, provider.TxPayment)
	res, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true))
	if err != nil || res.Action != ActionCompleted {
		t.Fatalf("retry: %+v %v", res, err)
	}
}

func TestReconcileRejectsUnconfirmedDetail(t *testing.T) {
	cases := map[string]func(*provider.Detail){
		"not signed":   func(d *provider.Detail) { d.Meta.Signed = false },
		"uuid differs": func(d *provider.Detail) { d.Meta.UUID = "other" },
		"no account":   func(d *provider.Detail) { d.Response.Account = nil },
		"wrong type":   func(d *provider.Detail) { d.Payload.TxType = provider.TxSignIn },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			_, _, req := pendingPayment(t, f)
			f.prov.GetPayloadFunc = func(_ context.Context, uuid string) (*provider.Detail, error) {
				d := testutil.SignedDetail(uuid, provider.TxPayment, "rSigner", "TX")
				mutate(d)
				return d, nil
			}
			if _, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true)); !errors.Is(err, ErrNotSigned) {
				t.Fatalf("err = %v, want ErrNotSigned", err)
			}
			if p, _ := f.store.GetPayment(ctx, req.ID); p.Status != model.StatusPending {
				t.Fatalf("payment status = %s", p.Status)
			}
		})
	}
}

func TestReconcileMissingParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, ms, req := pendingPayment(t, f)
	signedProvider(f, provider.TxPayment)
	if err := f.rooms.Delete(ctx, ms[0].user.ID, room.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true)); !errors.Is(err, ErrMissingReference) {
		t.Fatalf("err = %v, want ErrMissingReference", err)
	}
	if p, _ := f.store.GetPayment(ctx, req.ID); p.Status != model.StatusPending {
		t.Fatalf("payment status = %s", p.Status)
	}
}

func TestReconcileRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ms, req := pendingPayment(t, f)
	signedProvider(f, provider.TxPayment)
	boom := errors.New("disk full")
	f.store.FailOn("MarkParticipantPayed", boom)

	if _, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true)); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if p, _ := f.store.GetPayment(ctx, req.ID); p.Status != model.StatusPending {
		t.Fatalf("payment committed without participant: %s", p.Status)
	}
	if f.participant(t, ms[1].participant.ID).Payed {
		t.Fatal("participant payed after rollback")
	}
	if len(f.notes.Names()) != 0 {
		t.Fatalf("notified after rollback: %v", f.notes.Names())
	}
}

func TestReconcileWalletLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, profile := f.store.AddUser("alice")
	req, err := f.payments.IssueWalletLinkRequest(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	signedProvider(f, provider.TxSignIn)
	f.notes.Reset()

	res, err := f.rec.Handle(ctx, webhookBody(req.PayloadID, true))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Action != ActionCompleted || res.SignatureRequest == nil || res.SignatureRequest.Status != model.StatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	got, _ := f.store.GetProfile(ctx, profile.ID)
	if !got.HasWallet() || *got.Wallet != "rSigner" {
		t.Fatalf("wallet = %v", got.Wallet)
	}
	if !f.notes.Has(notify.UserScope(u.ID), notify.SignatureRequestUpdated) {
		t.Fatalf("notifications = %v", f.notes.Names())
	}

	// A payment-typed detail cannot link a wallet.
	req2, _ := f.payments.IssueWalletLinkRequest(ctx, u.ID)
	signedProvider(f, provider.TxPayment)
	if _, err := f.rec.Handle(ctx, webhookBody(req2.PayloadID, true)); !errors.Is(err, ErrNotSigned) {
		t.Fatalf("err = %v, want ErrNotSigned", err)
	}
}
