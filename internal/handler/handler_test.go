package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/room-settlement/internal/config"
	"github.com/iliyamo/room-settlement/internal/middleware"
	"github.com/iliyamo/room-settlement/internal/provider"
	"github.com/iliyamo/room-settlement/internal/service"
	"github.com/iliyamo/room-settlement/internal/testutil"
	"github.com/iliyamo/room-settlement/internal/utils"
)

const testSecret = "handler-test-secret"

type testAPI struct {
	e        *echo.Echo
	store    *testutil.MemStore
	prov     *testutil.MockProvider
	payments *service.PaymentService
	rooms    *service.RoomService
	parts    *service.ParticipantService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := testutil.NewMemStore()
	prov := &testutil.MockProvider{}
	notes := &testutil.RecordingNotifier{}

	roomSvc := service.NewRoomService(store, notes)
	paySvc := service.NewPaymentService(store, prov, notes, service.PaymentConfig{PublicURL: "http://app.test", BaseUnitExp: 6})
	rooms := NewRoomHandler(roomSvc)
	partSvc := service.NewParticipantService(store, notes)
	parts := NewParticipantHandler(partSvc)
	webhook := NewWebhookHandler(service.NewReconciler(store, prov, notes))
	auth := NewAuthHandler(config.Config{JWTSecret: testSecret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: utils.MinPasswordCost}, store)

	e := echo.New()
	e.Validator = NewRequestValidator()
	e.Any("/v1/webhooks/xumm", webhook.Handle)
	e.POST("/v1/auth/register", auth.Register)
	e.POST("/v1/auth/login", auth.Login)
	e.POST("/v1/auth/refresh", auth.Refresh)
	g := e.Group("/v1", middleware.JWTAuth(testSecret))
	g.GET("/me", auth.Me)
	g.POST("/rooms", rooms.Create)
	g.GET("/rooms/:id", rooms.Get)
	g.PATCH("/rooms/:id", rooms.Update)
	g.POST("/rooms/:id/ready", rooms.Ready)
	g.PATCH("/rooms/:id/participants/:pid", parts.Update)

	return &testAPI{e: e, store: store, prov: prov, payments: paySvc, rooms: roomSvc, parts: partSvc}
}

func (a *testAPI) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	at, err := utils.NewAccessToken(testSecret, userID, 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	return at.Token
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	if code == "" {
		return
	}
	if got := decode(t, rec)["code"]; got != code {
		t.Fatalf("code = %v, want %s", got, code)
	}
}

func TestWebhookRejectsOtherMethods(t *testing.T) {
	api := newTestAPI(t)
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := api.do(m, "/v1/webhooks/xumm", "", "")
		expectCode(t, rec, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
		if allow := rec.Header().Get(echo.HeaderAllow); allow != http.MethodPost {
			t.Errorf("%s: Allow = %q", m, allow)
		}
	}
}

func callbackBody(payloadID string, signed bool) string {
	return fmt.Sprintf(`{
		"meta": {"url": "https://app.test/v1/webhooks/xumm", "application_uuidv4": "11111111-2222-4333-8444-555555555555", "payload_uuidv4": %q, "opened_by_deeplink": true},
		"custom_meta": {"identifier": null, "blob": null, "instruction": null},
		"payloadResponse": {"payload_uuidv4": %q, "reference_call_uuidv4": "66666666-7777-4888-9999-000000000000", "signed": %t, "user_token": false, "return_url": {"app": null, "web": null}, "txid": "CALLBACKTX"}
	}`, payloadID, payloadID, signed)
}

func TestWebhookStatusCodes(t *testing.T) {
	api := newTestAPI(t)

	t.Run("malformed body", func(t *testing.T) {
		expectCode(t, api.do(http.MethodPost, "/v1/webhooks/xumm", "", "{not json"), http.StatusBadRequest, "INVALID_PAYLOAD")
	})
	t.Run("unknown payload", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/v1/webhooks/xumm", "", callbackBody(testutil.PayloadUUID(99), true))
		expectCode(t, rec, http.StatusNotFound, "WEBHOOK_EVENT_NOT_FOUND")
	})
}

// pendingPayment builds a ready room of alice and bob with bob's payment
// request issued.
func (a *testAPI) pendingPayment(t *testing.T) service.SignRequest {
	t.Helper()
	ctx := context.Background()
	alice, aliceProfile := a.store.AddUser("alice")
	bob, _ := a.store.AddUser("bob")
	room, err := a.rooms.Create(ctx, alice.ID, service.RoomInput{Name: "dinner", TotalPrice: mustDecimal(t, "20")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	parts := service.NewParticipantService(a.store, &testutil.RecordingNotifier{})
	p, err := parts.Add(ctx, bob.ID, room.ID, "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	a.store.LinkWallet(aliceProfile.ID, "rOwnerWallet")
	if _, err := a.rooms.SetReadyForSettlement(ctx, alice.ID, room.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}
	req, err := a.payments.IssuePaymentRequest(ctx, bob.ID, room.ID, p.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return req
}

func TestWebhookCompletesPayment(t *testing.T) {
	api := newTestAPI(t)
	req := api.pendingPayment(t)

	t.Run("provider down", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/v1/webhooks/xumm", "", callbackBody(req.PayloadID, true))
		expectCode(t, rec, http.StatusInternalServerError, "PROVIDER_ERROR")
		if strings.Contains(rec.Body.String(), testutil.ErrMockProvider.Error()) {
			t.Fatalf("provider detail leaked: %s", rec.Body.String())
		}
	})

	api.prov.GetPayloadFunc = func(_ context.Context, uuid string) (*provider.Detail, error) {
		return testutil.SignedDetail(uuid, provider.TxPayment, "rBob", "LEDGERTX"), nil
	}
	rec := api.do(http.MethodPost, "/v1/webhooks/xumm", "", callbackBody(req.PayloadID, true))
	expectCode(t, rec, http.StatusOK, "")
	body := decode(t, rec)
	if body["status"] != "success" || body["action"] != service.ActionCompleted {
		t.Fatalf("body = %v", body)
	}

	rec = api.do(http.MethodPost, "/v1/webhooks/xumm", "", callbackBody(req.PayloadID, true))
	expectCode(t, rec, http.StatusOK, "")
	if got := decode(t, rec)["action"]; got != service.ActionUnchanged {
		t.Fatalf("replay action = %v", got)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	api := newTestAPI(t)
	reg := `{"email":"Carol@Example.com","password":"correct-horse","name":"Carol"}`

	rec := api.do(http.MethodPost, "/v1/auth/register", "", reg)
	expectCode(t, rec, http.StatusCreated, "")
	var created authResp
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.User.Email != "carol@example.com" || created.User.ProfileID == "" || created.Access.Token == "" || created.Refresh.Token == "" {
		t.Fatalf("register resp = %+v", created)
	}

	expectCode(t, api.do(http.MethodPost, "/v1/auth/register", "", reg), http.StatusConflict, "EMAIL_EXISTS")
	expectCode(t, api.do(http.MethodPost, "/v1/auth/register", "", `{"email":"x","password":"short","name":""}`), http.StatusBadRequest, "INVALID_INPUT")

	expectCode(t, api.do(http.MethodPost, "/v1/auth/login", "", `{"email":"carol@example.com","password":"wrong-horse"}`), http.StatusUnauthorized, "UNAUTHORIZED")
	rec = api.do(http.MethodPost, "/v1/auth/login", "", `{"email":"carol@example.com","password":"correct-horse"}`)
	expectCode(t, rec, http.StatusOK, "")

	rec = api.do(http.MethodGet, "/v1/me", created.Access.Token, "")
	expectCode(t, rec, http.StatusOK, "")
	profile, _ := decode(t, rec)["profile"].(map[string]any)
	if profile["name"] != "Carol" || profile["id"] != created.User.ProfileID {
		t.Fatalf("profile = %v", profile)
	}

	// refresh rotates: the old token stops working
	rec = api.do(http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+created.Refresh.Token+`"}`)
	expectCode(t, rec, http.StatusOK, "")
	expectCode(t, api.do(http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+created.Refresh.Token+`"}`), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRoomEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice, _ := api.store.AddUser("alice")
	bob, _ := api.store.AddUser("bob")
	aliceTok, bobTok := tokenFor(t, alice.ID), tokenFor(t, bob.ID)

	expectCode(t, api.do(http.MethodPost, "/v1/rooms", "", `{"name":"pizza"}`), http.StatusUnauthorized, "UNAUTHORIZED")
	expectCode(t, api.do(http.MethodPost, "/v1/rooms", aliceTok, `{"name":""}`), http.StatusBadRequest, "INVALID_INPUT")
	expectCode(t, api.do(http.MethodPost, "/v1/rooms", aliceTok, `{"name":"pizza","total_price":"12.345"}`), http.StatusBadRequest, "INVALID_INPUT")

	rec := api.do(http.MethodPost, "/v1/rooms", aliceTok, `{"name":"pizza","total_price":"30"}`)
	expectCode(t, rec, http.StatusCreated, "")
	id, _ := decode(t, rec)["id"].(string)
	if id == "" {
		t.Fatalf("no id in %s", rec.Body.String())
	}

	rec = api.do(http.MethodGet, "/v1/rooms/"+id, bobTok, "")
	expectCode(t, rec, http.StatusOK, "")
	view := decode(t, rec)
	if view["state"] != "OPEN" || view["my_participant_id"] != nil {
		t.Fatalf("view for outsider = %v", view)
	}
	parts, _ := view["participants"].([]any)
	if len(parts) != 1 {
		t.Fatalf("participants = %v", view["participants"])
	}

	expectCode(t, api.do(http.MethodPatch, "/v1/rooms/"+id, bobTok, `{"name":"mine now"}`), http.StatusForbidden, "PERMISSION_DENIED")
	expectCode(t, api.do(http.MethodGet, "/v1/rooms/no-such-room", aliceTok, ""), http.StatusNotFound, "ROOM_NOT_FOUND")

	// the owner has no wallet yet
	expectCode(t, api.do(http.MethodPost, "/v1/rooms/"+id+"/ready", aliceTok, ""), http.StatusConflict, "OWNER_WALLET_NOT_FOUND")
}

func TestUpdateParticipantWeight(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	alice, _ := api.store.AddUser("alice")
	bob, _ := api.store.AddUser("bob")
	room, err := api.rooms.Create(ctx, alice.ID, service.RoomInput{Name: "pizza", TotalPrice: mustDecimal(t, "30")})
	if err != nil {
		t.Fatal(err)
	}
	p, err := api.parts.Add(ctx, bob.ID, room.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	path := "/v1/rooms/" + room.ID + "/participants/" + p.ID
	tok := tokenFor(t, bob.ID)

	for _, body := range []string{
		`{"weight":1.5}`,
		`{"weight":0}`,
		`{"weight":-1}`,
		`{"weight":2147483648}`,
		`{"weight":5000000000}`,
	} {
		t.Run(body, func(t *testing.T) {
			expectCode(t, api.do(http.MethodPatch, path, tok, body), http.StatusBadRequest, "INVALID_WEIGHT")
		})
	}
	expectCode(t, api.do(http.MethodPatch, path, tok, `{"weight":true}`), http.StatusBadRequest, "INVALID_INPUT")
	expectCode(t, api.do(http.MethodPatch, path, tok, `{}`), http.StatusBadRequest, "INVALID_INPUT")

	rec := api.do(http.MethodPatch, path, tok, `{"weight":2147483647,"payed":true}`)
	expectCode(t, rec, http.StatusOK, "")
	got, err := api.store.GetParticipant(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Weight != service.MaxWeight || !got.Payed {
		t.Fatalf("participant = %+v", got)
	}
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrapped sentinel", fmt.Errorf("room r1: %w", service.ErrRoomClosed), http.StatusConflict, "ROOM_CLOSED"},
		{"permission", service.ErrPermissionDenied, http.StatusForbidden, "PERMISSION_DENIED"},
		{"weight", service.ErrInvalidWeight, http.StatusBadRequest, "INVALID_WEIGHT"},
		{"provider", fmt.Errorf("%w: dial tcp: refused", service.ErrProviderError), http.StatusInternalServerError, "PROVIDER_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			if err := respondError(c, tc.err); err != nil {
				t.Fatalf("respondError: %v", err)
			}
			expectCode(t, rec, tc.status, tc.code)
			if tc.status == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "refused") {
				t.Fatalf("internal detail leaked: %s", rec.Body.String())
			}
		})
	}
}
