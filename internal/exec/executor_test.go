package exec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"hedge-bot/internal/exchange"

	"go.uber.org/zap"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Scan(ctx context.Context, prefix string) (map[string]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

type mockVenue struct {
	mu       sync.Mutex
	calls    int
	orderID  string
	err      error
	lastOpen exchange.OpenOrder
}

func (m *mockVenue) report(clientID string) (exchange.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return exchange.Report{}, m.err
	}
	return exchange.Report{
		ClientID: clientID,
		OrderIDs: []string{m.orderID},
		Price:    50000,
		Time:     time.UnixMilli(1700000000000),
	}, nil
}

func (m *mockVenue) SubmitOpen(_ context.Context, order exchange.OpenOrder) (exchange.Report, error) {
	m.lastOpen = order
	return m.report(order.ClientID)
}

func (m *mockVenue) SubmitClose(_ context.Context, order exchange.CloseOrder) (exchange.Report, error) {
	return m.report(order.ClientID)
}

func (m *mockVenue) SubmitRebalance(_ context.Context, order exchange.RebalanceOrder) (exchange.Report, error) {
	return m.report(order.ClientID)
}

func (m *mockVenue) SubmitConversion(_ context.Context, order exchange.ConversionOrder) (exchange.Report, error) {
	return m.report(order.ClientID)
}

func TestExecutorIdempotentSubmission(t *testing.T) {
	store := newMemoryStore()
	venue := &mockVenue{orderID: "oid-1"}
	logger := zap.NewNop()
	executor := New(venue, store, nil, logger)

	ctx := context.Background()
	order := exchange.OpenOrder{Pair: "BTCUSDT", Long: 0.01, Short: 0.01, Price: 50000, ClientID: "abc"}

	rep1, err := executor.Open(ctx, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rep2, err := executor.Open(ctx, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep1.OrderIDs[0] != rep2.OrderIDs[0] {
		t.Fatalf("expected same order id, got %v and %v", rep1.OrderIDs, rep2.OrderIDs)
	}
	if venue.calls != 1 {
		t.Fatalf("expected 1 venue call, got %d", venue.calls)
	}

	venue2 := &mockVenue{orderID: "oid-2"}
	executor2 := New(venue2, store, nil, logger)
	rep3, err := executor2.Open(ctx, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep3.OrderIDs[0] != "oid-1" {
		t.Fatalf("expected stored order id oid-1, got %v", rep3.OrderIDs)
	}
	if !rep3.Time.Equal(rep1.Time) {
		t.Fatalf("expected stored fill time %v, got %v", rep1.Time, rep3.Time)
	}
	if venue2.calls != 0 {
		t.Fatalf("expected no venue calls on restart, got %d", venue2.calls)
	}
}

func TestExecutorFailureIsNotRemembered(t *testing.T) {
	store := newMemoryStore()
	venue := &mockVenue{err: errors.New("rejected")}
	executor := New(venue, store, nil, zap.NewNop())
	ctx := context.Background()
	order := exchange.CloseOrder{Pair: "BTCUSDT", Long: 0.01, Short: 0.01, ClientID: "close-1"}

	if _, err := executor.Close(ctx, order); err == nil {
		t.Fatalf("expected error")
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing persisted, got %v", store.data)
	}
	venue.err = nil
	venue.orderID = "oid-9"
	rep, err := executor.Close(ctx, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.OrderIDs[0] != "oid-9" || venue.calls != 2 {
		t.Fatalf("expected second attempt to reach venue, got %v after %d calls", rep.OrderIDs, venue.calls)
	}
}

func TestExecutorGeneratesClientID(t *testing.T) {
	venue := &mockVenue{orderID: "oid"}
	executor := New(venue, nil, nil, zap.NewNop())

	rep, err := executor.Open(context.Background(), exchange.OpenOrder{Pair: "BTCUSDT", Long: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(venue.lastOpen.ClientID, "hbo") {
		t.Fatalf("expected generated client id, got %q", venue.lastOpen.ClientID)
	}
	if rep.ClientID != venue.lastOpen.ClientID {
		t.Fatalf("report client id %q does not match %q", rep.ClientID, venue.lastOpen.ClientID)
	}
}

func TestNewClientOrderIDIsShortAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewClientOrderID("hb")
		if len(id) > 32 {
			t.Fatalf("client id %q too long", id)
		}
		if seen[id] {
			t.Fatalf("duplicate client id %q", id)
		}
		seen[id] = true
	}
}

func TestIntentClientIDIsStable(t *testing.T) {
	a := IntentClientID("hbo", "acc1", "BTCUSDT", "open", "7")
	if a != IntentClientID("hbo", "acc1", "BTCUSDT", "open", "7") {
		t.Fatalf("expected the same parts to give the same id")
	}
	if a == IntentClientID("hbo", "acc1", "BTCUSDT", "open", "8") {
		t.Fatalf("expected a different cycle to give a different id")
	}
	if !strings.HasPrefix(a, "hbo") || len(a) > 32 {
		t.Fatalf("unexpected client id %q", a)
	}
}

func TestExecutorForgetAllowsResubmission(t *testing.T) {
	store := newMemoryStore()
	venue := &mockVenue{orderID: "oid-1"}
	executor := New(venue, store, nil, zap.NewNop())
	ctx := context.Background()
	order := exchange.OpenOrder{Pair: "BTCUSDT", Long: 0.01, Short: 0.01, ClientID: "hbo-1"}

	if _, err := executor.Open(ctx, order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.data[ReportPrefix+"hbo-1"]; !ok {
		t.Fatalf("expected report persisted, got %v", store.data)
	}
	if err := executor.Forget(ctx, "hbo-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected report removed, got %v", store.data)
	}
	if _, err := executor.Open(ctx, order); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if venue.calls != 2 {
		t.Fatalf("expected a forgotten id to reach the venue again, got %d calls", venue.calls)
	}
}
