// Package testutil provides an in-memory repository.Store and mocks for
// service and handler tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/room-settlement/internal/model"
	"github.com/iliyamo/room-settlement/internal/repository"
)

type refreshRow struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type memData struct {
	users        map[string]model.User
	profiles     map[string]model.UserProfile
	rooms        map[string]model.Room
	participants map[string]model.Participant
	payments     map[string]model.Payment
	signatures   map[string]model.SignatureRequest
	tokens       map[string]refreshRow
}

func (d memData) clone() memData {
	return memData{
		users:        cloneMap(d.users),
		profiles:     cloneMap(d.profiles),
		rooms:        cloneMap(d.rooms),
		participants: cloneMap(d.participants),
		payments:     cloneMap(d.payments),
		signatures:   cloneMap(d.signatures),
		tokens:       cloneMap(d.tokens),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemStore implements repository.Store in memory.  Transactions are
// serialised by a store-wide lock, which gives the same guarantee the
// room row lock gives in MySQL, and roll back on error.
type MemStore struct {
	txMu sync.Mutex

	mu    sync.Mutex
	data  memData
	clock time.Time
	fail  map[string]error
}

var _ repository.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		data: memData{
			users:        map[string]model.User{},
			profiles:     map[string]model.UserProfile{},
			rooms:        map[string]model.Room{},
			participants: map[string]model.Participant{},
			payments:     map[string]model.Payment{},
			signatures:   map[string]model.SignatureRequest{},
			tokens:       map[string]refreshRow{},
		},
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		fail:  map[string]error{},
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (m *MemStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

func (m *MemStore) failure(method string) error { return m.fail[method] }

// tick returns a strictly increasing timestamp.  Caller holds m.mu.
func (m *MemStore) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// --- fixtures ---

// AddUser creates a user with a profile of the given name.
func (m *MemStore) AddUser(name string) (model.User, model.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	u := model.User{ID: uuid.NewString(), Email: strings.ToLower(name) + "@example.com", IsActive: true, CreatedAt: now, UpdatedAt: now}
	p := model.UserProfile{ID: uuid.NewString(), UserID: u.ID, Name: name, CreatedAt: now, UpdatedAt: now}
	m.data.users[u.ID] = u
	m.data.profiles[p.ID] = p
	return u, p
}

// LinkWallet sets a profile's wallet directly.
func (m *MemStore) LinkWallet(profileID, wallet string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.data.profiles[profileID]
	p.Wallet = &wallet
	m.data.profiles[profileID] = p
}

// Counts reports the number of rooms, participants and payments.
func (m *MemStore) Counts() (rooms, participants, payments int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.rooms), len(m.data.participants), len(m.data.payments)
}

// --- rooms ---

func (m *MemStore) CreateRoom(ctx context.Context, r *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateRoom"); err != nil {
		return err
	}
	now := m.tick()
	r.CreatedAt, r.UpdatedAt = now, now
	m.data.rooms[r.ID] = *r
	return nil
}

func (m *MemStore) GetRoom(ctx context.Context, id string) (model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data.rooms[id]
	if !ok {
		return model.Room{}, repository.ErrRoomNotFound
	}
	return r, nil
}

func (m *MemStore) LockRoom(ctx context.Context, id string) (model.Room, error) {
	return m.GetRoom(ctx, id)
}

func (m *MemStore) UpdateRoom(ctx context.Context, r *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpdateRoom"); err != nil {
		return err
	}
	if _, ok := m.data.rooms[r.ID]; !ok {
		return repository.ErrRoomNotFound
	}
	r.UpdatedAt = m.tick()
	m.data.rooms[r.ID] = *r
	return nil
}

func (m *MemStore) DeleteRoom(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("DeleteRoom"); err != nil {
		return err
	}
	if _, ok := m.data.rooms[id]; !ok {
		return repository.ErrRoomNotFound
	}
	for _, p := range m.data.participants {
		if p.RoomID == id {
			// mirrors the foreign key on participants.room_id
			return errFK
		}
	}
	delete(m.data.rooms, id)
	return nil
}

func (m *MemStore) ListRoomsForUser(ctx context.Context, userID string) ([]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Room
	for _, p := range m.data.participants {
		if p.UserID == userID {
			out = append(out, m.data.rooms[p.RoomID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- participants ---

func (m *MemStore) CreateParticipant(ctx context.Context, p *model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateParticipant"); err != nil {
		return err
	}
	for _, other := range m.data.participants {
		if other.RoomID == p.RoomID && other.UserID == p.UserID {
			return repository.ErrDuplicateParticipant
		}
	}
	p.CreatedAt = m.tick()
	m.data.participants[p.ID] = *p
	return nil
}

func (m *MemStore) GetParticipant(ctx context.Context, id string) (model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.participants[id]
	if !ok {
		return model.Participant{}, repository.ErrParticipantNotFound
	}
	return p, nil
}

func (m *MemStore) ListParticipants(ctx context.Context, roomID string) ([]model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participantsOf(roomID), nil
}

func (m *MemStore) participantsOf(roomID string) []model.Participant {
	var out []model.Participant
	for _, p := range m.data.participants {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemStore) ListParticipantDetails(ctx context.Context, roomID string) ([]model.ParticipantDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ParticipantDetail
	for _, p := range m.participantsOf(roomID) {
		prof := m.data.profiles[p.ProfileID]
		out = append(out, model.ParticipantDetail{Participant: p, Name: prof.Name, Wallet: prof.Wallet})
	}
	return out, nil
}

func (m *MemStore) UpdateParticipant(ctx context.Context, p *model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpdateParticipant"); err != nil {
		return err
	}
	cur, ok := m.data.participants[p.ID]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	cur.Weight, cur.Payed = p.Weight, p.Payed
	m.data.participants[p.ID] = cur
	return nil
}

func (m *MemStore) MarkParticipantPayed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("MarkParticipantPayed"); err != nil {
		return err
	}
	cur, ok := m.data.participants[id]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	cur.Payed = true
	m.data.participants[id] = cur
	return nil
}

func (m *MemStore) DeleteParticipant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.participants[id]; !ok {
		return repository.ErrParticipantNotFound
	}
	m.deleteParticipantLocked(id)
	return nil
}

// deleteParticipantLocked mirrors ON DELETE SET NULL on payments.
func (m *MemStore) deleteParticipantLocked(id string) {
	delete(m.data.participants, id)
	for pid, pay := range m.data.payments {
		if pay.ParticipantID != nil && *pay.ParticipantID == id {
			pay.ParticipantID = nil
			m.data.payments[pid] = pay
		}
	}
}

func (m *MemStore) DeleteParticipantsByRoom(ctx context.Context, roomID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("DeleteParticipantsByRoom"); err != nil {
		return 0, err
	}
	var n int64
	for id, p := range m.data.participants {
		if p.RoomID == roomID {
			m.deleteParticipantLocked(id)
			n++
		}
	}
	return n, nil
}

// --- users and profiles ---

func (m *MemStore) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, other := range m.data.users {
		if other.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	now := m.tick()
	u.IsActive, u.CreatedAt, u.UpdatedAt = true, now, now
	m.data.users[u.ID] = *u
	return nil
}

func (m *MemStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.data.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (m *MemStore) GetUserByID(ctx context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *MemStore) CreateProfile(ctx context.Context, p *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateProfile"); err != nil {
		return err
	}
	now := m.tick()
	p.CreatedAt, p.UpdatedAt = now, now
	m.data.profiles[p.ID] = *p
	return nil
}

func (m *MemStore) GetProfile(ctx context.Context, id string) (model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.profiles[id]
	if !ok {
		return model.UserProfile{}, repository.ErrProfileNotFound
	}
	return p, nil
}

func (m *MemStore) GetProfileByUser(ctx context.Context, userID string) (model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.data.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return model.UserProfile{}, repository.ErrProfileNotFound
}

func (m *MemStore) UpdateProfileName(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.profiles[id]
	if !ok {
		return repository.ErrProfileNotFound
	}
	p.Name, p.UpdatedAt = name, m.tick()
	m.data.profiles[id] = p
	return nil
}

func (m *MemStore) SetProfileWallet(ctx context.Context, id, wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SetProfileWallet"); err != nil {
		return err
	}
	p, ok := m.data.profiles[id]
	if !ok {
		return repository.ErrProfileNotFound
	}
	p.Wallet, p.UpdatedAt = &wallet, m.tick()
	m.data.profiles[id] = p
	return nil
}

// --- refresh tokens ---

func (m *MemStore) StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.tokens[tokenHash] = refreshRow{userID: userID, expiresAt: exp}
	return nil
}

func (m *MemStore) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.data.tokens[tokenHash]
	if !ok || row.revoked || time.Now().UTC().After(row.expiresAt) {
		return "", repository.ErrTokenInvalid
	}
	return row.userID, nil
}

func (m *MemStore) RevokeByHash(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.data.tokens[tokenHash]; ok {
		row.revoked = true
		m.data.tokens[tokenHash] = row
	}
	return nil
}

func (m *MemStore) RevokeAllForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, row := range m.data.tokens {
		if row.userID == userID {
			row.revoked = true
			m.data.tokens[h] = row
		}
	}
	return nil
}

// --- payments and signature requests ---

func (m *MemStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreatePayment"); err != nil {
		return err
	}
	for _, other := range m.data.payments {
		if other.PayloadID == p.PayloadID {
			return errDuplicatePayload
		}
	}
	now := m.tick()
	p.CreatedAt, p.UpdatedAt = now, now
	m.data.payments[p.ID] = *p
	return nil
}

func (m *MemStore) GetPayment(ctx context.Context, id string) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.payments[id]
	if !ok {
		return model.Payment{}, repository.ErrPaymentNotFound
	}
	return p, nil
}

func (m *MemStore) GetPaymentByPayloadID(ctx context.Context, payloadID string) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.data.payments {
		if p.PayloadID == payloadID {
			return p, nil
		}
	}
	return model.Payment{}, repository.ErrPaymentNotFound
}

func (m *MemStore) paymentsOf(participantID string, status string) []model.Payment {
	var out []model.Payment
	for _, p := range m.data.payments {
		if p.ParticipantID != nil && *p.ParticipantID == participantID && (status == "" || p.Status == status) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemStore) LatestPaymentForParticipant(ctx context.Context, participantID string) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.paymentsOf(participantID, "")
	if len(ps) == 0 {
		return model.Payment{}, repository.ErrPaymentNotFound
	}
	return ps[0], nil
}

func (m *MemStore) CompletedPaymentForParticipant(ctx context.Context, participantID string) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.paymentsOf(participantID, model.StatusCompleted)
	if len(ps) == 0 {
		return model.Payment{}, repository.ErrPaymentNotFound
	}
	return ps[0], nil
}

func (m *MemStore) ResolvePayment(ctx context.Context, id string, res model.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ResolvePayment"); err != nil {
		return err
	}
	p, ok := m.data.payments[id]
	if !ok || p.Status != model.StatusPending {
		return repository.ErrNoChange
	}
	p.Status, p.NetworkID, p.TransactionID, p.Account = res.Status, res.NetworkID, res.TransactionID, res.Account
	p.UpdatedAt = m.tick()
	m.data.payments[id] = p
	return nil
}

func (m *MemStore) CreateSignatureRequest(ctx context.Context, s *model.SignatureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.data.signatures {
		if other.PayloadID == s.PayloadID {
			return errDuplicatePayload
		}
	}
	now := m.tick()
	s.CreatedAt, s.UpdatedAt = now, now
	m.data.signatures[s.ID] = *s
	return nil
}

func (m *MemStore) GetSignatureRequest(ctx context.Context, id string) (model.SignatureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.signatures[id]
	if !ok {
		return model.SignatureRequest{}, repository.ErrSignatureRequestNotFound
	}
	return s, nil
}

func (m *MemStore) GetSignatureRequestByPayloadID(ctx context.Context, payloadID string) (model.SignatureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.data.signatures {
		if s.PayloadID == payloadID {
			return s, nil
		}
	}
	return model.SignatureRequest{}, repository.ErrSignatureRequestNotFound
}

func (m *MemStore) ResolveSignatureRequest(ctx context.Context, id string, res model.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.signatures[id]
	if !ok || s.Status != model.StatusPending {
		return repository.ErrNoChange
	}
	s.Status, s.NetworkID, s.TransactionID, s.Account = res.Status, res.NetworkID, res.TransactionID, res.Account
	s.UpdatedAt = m.tick()
	m.data.signatures[id] = s
	return nil
}
