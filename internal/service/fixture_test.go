package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/testutil"
)

type fixture struct {
	store *testutil.MemStore
	notes *testutil.RecordingNotifier
	prov  *testutil.MockProvider

	rooms    *RoomService
	parts    *ParticipantService
	payments *PaymentService
	rec      *Reconciler
	observe  *ObserverService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMemStore()
	notes := &testutil.RecordingNotifier{}
	prov := &testutil.MockProvider{}
	return &fixture{
		store:    store,
		notes:    notes,
		prov:     prov,
		rooms:    NewRoomService(store, notes),
		parts:    NewParticipantService(store, notes),
		payments: NewPaymentService(store, prov, notes, PaymentConfig{PublicURL: "http://app.test/", BaseUnitExp: 6}),
		rec:      NewReconciler(store, prov, notes),
		observe:  NewObserverService(store),
	}
}

type member struct {
	user        model.User
	profile     model.UserProfile
	participant model.Participant
}

// roomWith creates a room priced at price owned by the first name and
// joined by the rest, all with weight 1.
func (f *fixture) roomWith(t *testing.T, price string, names ...string) (model.Room, []member) {
	t.Helper()
	ctx := context.Background()
	members := make([]member, len(names))
	for i, n := range names {
		members[i].user, members[i].profile = f.store.AddUser(n)
	}
	room, err := f.rooms.Create(ctx, members[0].user.ID, RoomInput{Name: "pizza", TotalPrice: decimal.RequireFromString(price)})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ps, _ := f.store.ListParticipants(ctx, room.ID)
	members[0].participant = ps[0]
	for i := 1; i < len(members); i++ {
		p, err := f.parts.Add(ctx, members[i].user.ID, room.ID, "")
		if err != nil {
			t.Fatalf("join %s: %v", names[i], err)
		}
		members[i].participant = p
	}
	f.notes.Reset()
	return room, members
}

// readyRoom is roomWith plus a linked owner wallet and the room moved to
// ready-for-settlement.
func (f *fixture) readyRoom(t *testing.T, price string, names ...string) (model.Room, []member) {
	t.Helper()
	room, ms := f.roomWith(t, price, names...)
	f.store.LinkWallet(ms[0].profile.ID, "rOwnerWallet")
	room, err := f.rooms.SetReadyForSettlement(context.Background(), ms[0].user.ID, room.ID)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	f.notes.Reset()
	return room, ms
}

func (f *fixture) participant(t *testing.T, id string) model.Participant {
	t.Helper()
	p, err := f.store.GetParticipant(context.Background(), id)
	if err != nil {
		t.Fatalf("get participant %s: %v", id, err)
	}
	return p
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
