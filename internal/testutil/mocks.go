package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/iliyamo/room-settlement/internal/notify"
	"github.com/iliyamo/room-settlement/internal/provider"
)

var (
	errFK               = errors.New("foreign key constraint fails")
	errDuplicatePayload = errors.New("duplicate payload id")

	// ErrMockProvider is returned by MockProvider when configured to fail.
	ErrMockProvider = errors.New("mock provider error")
)

// MockProvider implements the provider calls used by the services.
type MockProvider struct {
	mu sync.Mutex

	CreatePayloadFunc func(ctx context.Context, req provider.PayloadRequest) (*provider.Created, error)
	GetPayloadFunc    func(ctx context.Context, uuid string) (*provider.Detail, error)

	Created  []provider.PayloadRequest
	GetCalls int
	nextUUID int
}

func (m *MockProvider) CreatePayload(ctx context.Context, req provider.PayloadRequest) (*provider.Created, error) {
	m.mu.Lock()
	m.Created = append(m.Created, req)
	m.nextUUID++
	n := m.nextUUID
	m.mu.Unlock()

	if m.CreatePayloadFunc != nil {
		return m.CreatePayloadFunc(ctx, req)
	}
	out := &provider.Created{UUID: PayloadUUID(n)}
	out.Next.Always = "https://xumm.app/sign/" + out.UUID
	out.Refs.QRPNG = "https://xumm.app/sign/" + out.UUID + "_q.png"
	return out, nil
}

func (m *MockProvider) GetPayload(ctx context.Context, uuid string) (*provider.Detail, error) {
	m.mu.Lock()
	m.GetCalls++
	m.mu.Unlock()
	if m.GetPayloadFunc != nil {
		return m.GetPayloadFunc(ctx, uuid)
	}
	return nil, ErrMockProvider
}

// PayloadUUID is the uuid MockProvider assigns to its n-th payload.
func PayloadUUID(n int) string {
	const base = "00000000-0000-4000-8000-000000000000"
	digits := []byte(base)
	for i := len(digits) - 1; n > 0 && i >= 0; i-- {
		if digits[i] == '-' {
			continue
		}
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

// SignedDetail builds a provider detail for a signed payload.
func SignedDetail(uuid, txType, account, txid string) *provider.Detail {
	d := &provider.Detail{}
	d.Meta.Exists = true
	d.Meta.UUID = uuid
	d.Meta.Resolved = true
	d.Meta.Signed = true
	d.Payload.TxType = txType
	d.Response.Account = &account
	d.Response.TxID = &txid
	network := int64(1)
	d.Response.EnvironmentNetworkID = &network
	return d
}

// RecordingNotifier captures notifications.
type RecordingNotifier struct {
	mu     sync.Mutex
	Events []notify.Event
}

func (r *RecordingNotifier) Notify(_ context.Context, scope, name string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, notify.Event{Scope: scope, Name: name, Payload: payload})
}

// Names returns the recorded event names in order.
func (r *RecordingNotifier) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Name
	}
	return out
}

// Has reports whether an event with name was recorded on scope.
func (r *RecordingNotifier) Has(scope, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.Events {
		if ev.Scope == scope && ev.Name == name {
			return true
		}
	}
	return false
}

// Reset drops recorded events.
func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = nil
}
