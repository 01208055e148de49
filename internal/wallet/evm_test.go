package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

func newTestKeystore(t *testing.T, chainID int64) (*KeystoreProvider, string) {
	t.Helper()
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acc, err := ks.NewAccount("secret")
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	return NewKeystoreProvider(ks, "secret", chainID), acc.Address.Hex()
}

func TestEVMAdapter_KeystoreConnectAndSign(t *testing.T) {
	ctx := context.Background()
	p, addr := newTestKeystore(t, 1)
	a := NewEVMAdapter(p, zap.NewNop())

	accts, err := a.Accounts(ctx)
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accts) != 0 {
		t.Fatalf("expected no accounts before connect, got %v", accts)
	}

	accts, err = a.RequestAccounts(ctx)
	if err != nil {
		t.Fatalf("RequestAccounts: %v", err)
	}
	if len(accts) != 1 || accts[0] != addr {
		t.Fatalf("RequestAccounts = %v, want [%s]", accts, addr)
	}

	chain, err := a.ChainID(ctx)
	if err != nil || chain != 1 {
		t.Fatalf("ChainID = %d, %v", chain, err)
	}

	msg := "Sign in to the marketplace\nnonce: 42"
	sig, err := a.SignMessage(ctx, addr, msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	ok, err := VerifyPersonalSign(addr, msg, sig)
	if err != nil || !ok {
		t.Fatalf("VerifyPersonalSign = %v, %v", ok, err)
	}
	ok, _ = VerifyPersonalSign("0x000000000000000000000000000000000000dEaD", msg, sig)
	if ok {
		t.Error("signature verified for the wrong address")
	}
}

func TestEVMAdapter_SwitchChainPolicy(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestKeystore(t, 1)
	a := NewEVMAdapter(p, zap.NewNop())

	var mu sync.Mutex
	var changes []AccountChange
	unsubscribe := a.SubscribeAccountChange(func(c AccountChange) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	defer unsubscribe()

	// no RPC parameters: switch only, the wallet does not know the chain
	err := a.SwitchChain(ctx, models.ChainParams{ChainID: 5115})
	var notConfigured *ChainNotConfiguredError
	if !errors.As(err, &notConfigured) || notConfigured.ChainID != 5115 {
		t.Fatalf("expected ChainNotConfiguredError, got %v", err)
	}
	if !errors.Is(err, ErrChainNotConfigured) {
		t.Error("ChainNotConfiguredError should match ErrChainNotConfigured")
	}

	// with RPC parameters the chain is added before switching
	layer := models.Layer{Name: "Citrea", ChainID: 5115, RPCURL: "https://rpc.testnet.citrea.xyz", CurrencySymbol: "cBTC"}
	if err := a.SwitchChain(ctx, layer.ChainParams()); err != nil {
		t.Fatalf("SwitchChain: %v", err)
	}
	chain, _ := a.ChainID(ctx)
	if chain != 5115 {
		t.Errorf("ChainID = %d, want 5115", chain)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || !changes[0].ChainChanged || changes[0].ChainID != 5115 {
		t.Errorf("unexpected change notifications: %+v", changes)
	}
}

func TestEVMAdapter_DisconnectRevokes(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestKeystore(t, 1)
	a := NewEVMAdapter(p, zap.NewNop())

	if _, err := a.RequestAccounts(ctx); err != nil {
		t.Fatalf("RequestAccounts: %v", err)
	}

	var got *AccountChange
	off := a.SubscribeAccountChange(func(c AccountChange) { got = &c })
	defer off()

	if err := a.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got == nil || len(got.Accounts) != 0 || got.ChainChanged {
		t.Errorf("expected empty accountsChanged, got %+v", got)
	}
	accts, _ := a.Accounts(ctx)
	if len(accts) != 0 {
		t.Errorf("accounts after disconnect = %v", accts)
	}
}

func TestEVMAdapter_KeystoreCannotPay(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestKeystore(t, 1)
	a := NewEVMAdapter(p, zap.NewNop())
	if _, err := a.RequestAccounts(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SendPayment(ctx, "0x000000000000000000000000000000000000dEaD", 1000); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

// scriptedProvider answers requests from a per-method table and records calls.
type scriptedProvider struct {
	mu      sync.Mutex
	calls   []string
	results map[string]json.RawMessage
	errs    map[string]error
}

func (s *scriptedProvider) Request(_ context.Context, method string, _ ...any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, method)
	if err, ok := s.errs[method]; ok {
		return nil, err
	}
	if r, ok := s.results[method]; ok {
		return r, nil
	}
	return json.RawMessage("null"), nil
}

func (s *scriptedProvider) On(string, func(json.RawMessage)) func() { return func() {} }

func TestEVMAdapter_ErrorMapping(t *testing.T) {
	rejected := &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	params := models.ChainParams{ChainID: 137, RPCURLs: []string{"https://polygon-rpc.com"}}

	tests := []struct {
		name      string
		errs      map[string]error
		call      func(a *EVMAdapter) error
		want      error
		wantCalls []string
	}{
		{
			name: "request accounts rejected",
			errs: map[string]error{"eth_requestAccounts": rejected},
			call: func(a *EVMAdapter) error {
				_, err := a.RequestAccounts(context.Background())
				return err
			},
			want:      ErrUserRejected,
			wantCalls: []string{"eth_requestAccounts"},
		},
		{
			name: "signature rejected",
			errs: map[string]error{"personal_sign": rejected},
			call: func(a *EVMAdapter) error {
				_, err := a.SignMessage(context.Background(), "0xabc", "hello")
				return err
			},
			want:      ErrUserRejected,
			wantCalls: []string{"personal_sign"},
		},
		{
			name: "add chain rejected",
			errs: map[string]error{"wallet_addEthereumChain": rejected},
			call: func(a *EVMAdapter) error {
				return a.SwitchChain(context.Background(), params)
			},
			want:      ErrChainSwitchRejected,
			wantCalls: []string{"wallet_addEthereumChain"},
		},
		{
			name: "switch rejected after add",
			errs: map[string]error{"wallet_switchEthereumChain": rejected},
			call: func(a *EVMAdapter) error {
				return a.SwitchChain(context.Background(), params)
			},
			want:      ErrChainSwitchRejected,
			wantCalls: []string{"wallet_addEthereumChain", "wallet_switchEthereumChain"},
		},
		{
			name: "unknown chain",
			errs: map[string]error{
				"wallet_switchEthereumChain": &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"},
			},
			call: func(a *EVMAdapter) error {
				return a.SwitchChain(context.Background(), models.ChainParams{ChainID: 137})
			},
			want:      ErrChainNotConfigured,
			wantCalls: []string{"wallet_switchEthereumChain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{errs: tt.errs}
			err := tt.call(NewEVMAdapter(p, zap.NewNop()))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(p.calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", p.calls, tt.wantCalls)
			}
			for i := range p.calls {
				if p.calls[i] != tt.wantCalls[i] {
					t.Errorf("call %d = %s, want %s", i, p.calls[i], tt.wantCalls[i])
				}
			}
		})
	}
}

func TestParseChainID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0x1", 1, false},
		{"0x13fb", 5115, false},
		{"137", 137, false},
		{"", 0, true},
		{"0xzz", 0, true},
	}
	for _, tt := range tests {
		got, err := parseChainID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseChainID(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseChainID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
