package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeBridge struct {
	mu       sync.Mutex
	accounts []string
	chainID  string
	reject   map[string]bool
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch {
	case b.reject[req.Method]:
		resp["error"] = map[string]any{"code": CodeUserRejected, "message": "User rejected the request."}
	case req.Method == "eth_accounts" || req.Method == "eth_requestAccounts":
		resp["result"] = b.accounts
	case req.Method == "eth_chainId":
		resp["result"] = b.chainID
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *fakeBridge) set(accounts []string, chainID string) {
	b.mu.Lock()
	b.accounts, b.chainID = accounts, chainID
	b.mu.Unlock()
}

func TestRPCProvider_RequestAndErrors(t *testing.T) {
	bridge := &fakeBridge{
		accounts: []string{"0x1111111111111111111111111111111111111111"},
		chainID:  "0x1",
		reject:   map[string]bool{"personal_sign": true},
	}
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	ctx := context.Background()
	p, err := DialRPCProvider(ctx, srv.URL, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("DialRPCProvider: %v", err)
	}
	defer p.Close()

	a := NewEVMAdapter(p, zap.NewNop())
	accts, err := a.RequestAccounts(ctx)
	if err != nil || len(accts) != 1 {
		t.Fatalf("RequestAccounts = %v, %v", accts, err)
	}
	if _, err := a.SignMessage(ctx, accts[0], "hi"); !errors.Is(err, ErrUserRejected) {
		t.Errorf("expected ErrUserRejected, got %v", err)
	}

	_, err = p.Request(ctx, "eth_unknown")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Code != -32601 {
		t.Errorf("expected provider error -32601, got %v", err)
	}
}

func TestRPCProvider_DetectsChanges(t *testing.T) {
	bridge := &fakeBridge{accounts: []string{"0xaaaa"}, chainID: "0x1"}
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	ctx := context.Background()
	p, err := DialRPCProvider(ctx, srv.URL, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var mu sync.Mutex
	var events []string
	record := func(name string) func(json.RawMessage) {
		return func(payload json.RawMessage) {
			mu.Lock()
			events = append(events, name+":"+string(payload))
			mu.Unlock()
		}
	}
	offA := p.On(eventAccountsChanged, record("accounts"))
	offC := p.On(eventChainChanged, record("chain"))
	defer offA()
	defer offC()

	// the poller only ticks hourly here, so checks are driven directly
	p.check(ctx)
	mu.Lock()
	if len(events) != 0 {
		t.Fatalf("seeding emitted events: %v", events)
	}
	mu.Unlock()

	bridge.set([]string{"0xbbbb"}, "0x89")
	p.check(ctx)

	mu.Lock()
	defer mu.Unlock()
	want := []string{`accounts:["0xbbbb"]`, `chain:"0x89"`}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}
