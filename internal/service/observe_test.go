package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/room-settlement/internal/notify"
)

func TestAuthorizeScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, ms, req := pendingPayment(t, f)
	alice, bob := ms[0], ms[1]
	mallory, _ := f.store.AddUser("mallory")
	link, err := f.payments.IssueWalletLinkRequest(ctx, bob.user.ID)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		user  string
		scope string
		want  error
	}{
		{"member sees room", bob.user.ID, notify.RoomScope(room.ID), nil},
		{"owner sees room", alice.user.ID, notify.RoomScope(room.ID), nil},
		{"stranger denied room", mallory.ID, notify.RoomScope(room.ID), ErrPermissionDenied},
		{"unknown room", bob.user.ID, notify.RoomScope("missing"), ErrRoomNotFound},
		{"own user scope", bob.user.ID, notify.UserScope(bob.user.ID), nil},
		{"other user scope", bob.user.ID, notify.UserScope(alice.user.ID), ErrPermissionDenied},
		{"payer sees payment", bob.user.ID, notify.PaymentScope(req.ID), nil},
		{"owner denied payment scope", alice.user.ID, notify.PaymentScope(req.ID), ErrPermissionDenied},
		{"own signature request", bob.user.ID, notify.SignatureRequestScope(link.ID), nil},
		{"other signature request", alice.user.ID, notify.SignatureRequestScope(link.ID), ErrPermissionDenied},
		{"garbage scope", bob.user.ID, "lobby", ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.observe.Authorize(ctx, tt.user, tt.scope)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Authorize: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
