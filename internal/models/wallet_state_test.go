package models

import (
	"errors"
	"testing"
)

func TestIsValidWalletTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{WalletPhaseDisconnected, WalletPhaseConnecting, true},
		{WalletPhaseConnecting, WalletPhaseChainConfirming, true},
		{WalletPhaseConnecting, WalletPhaseSigning, true},
		{WalletPhaseChainConfirming, WalletPhaseSigning, true},
		{WalletPhaseSigning, WalletPhaseAuthenticated, true},

		// Layer switching
		{WalletPhaseAuthenticated, WalletPhaseSwitchingLayer, true},
		{WalletPhaseSwitchingLayer, WalletPhaseAuthenticated, true},
		{WalletPhaseSwitchingLayer, WalletPhaseChainConfirming, true},
		{WalletPhaseChainConfirming, WalletPhaseAuthenticated, true},

		// Silent restoration
		{WalletPhaseDisconnected, WalletPhaseAuthenticated, true},

		// Linking a new layer
		{WalletPhaseAuthenticated, WalletPhaseConnecting, true},

		// Error recovery
		{WalletPhaseSigning, WalletPhaseError, true},
		{WalletPhaseError, WalletPhaseDisconnected, true},
		{WalletPhaseError, WalletPhaseAuthenticated, true},

		// Invalid transitions
		{WalletPhaseDisconnected, WalletPhaseSigning, false},
		{WalletPhaseDisconnected, WalletPhaseSwitchingLayer, false},
		{WalletPhaseConnecting, WalletPhaseAuthenticated, false},
		{WalletPhaseAuthenticated, WalletPhaseSigning, false},
		{WalletPhaseError, WalletPhaseSigning, false},
		{"nonexistent", WalletPhaseConnecting, false},
		{WalletPhaseDisconnected, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidWalletTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidWalletTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllPhasesHaveTransitionEntry(t *testing.T) {
	all := []WalletState{
		Disconnected{}, Connecting{}, ChainConfirming{}, Signing{},
		Authenticated{}, SwitchingLayer{}, Failed{},
	}
	for _, s := range all {
		if _, ok := ValidWalletTransitions[s.Phase()]; !ok {
			t.Errorf("phase %q missing from ValidWalletTransitions map", s.Phase())
		}
	}
}

func TestNextWalletState(t *testing.T) {
	t.Run("disconnect from any phase", func(t *testing.T) {
		for _, from := range []WalletState{Connecting{}, Signing{}, SwitchingLayer{}, Authenticated{}} {
			next, err := NextWalletState(from, Disconnected{})
			if err != nil {
				t.Fatalf("disconnect from %s: %v", from.Phase(), err)
			}
			if next.Phase() != WalletPhaseDisconnected {
				t.Errorf("got %s, want disconnected", next.Phase())
			}
		}
	})

	t.Run("rejects skipping signing", func(t *testing.T) {
		from := Connecting{Pending: PendingConnection{LayerID: "l1"}}
		next, err := NextWalletState(from, Authenticated{LayerID: "l1"})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if next.Phase() != WalletPhaseConnecting {
			t.Errorf("state changed on invalid transition: %s", next.Phase())
		}
	})

	t.Run("failed must recover to a stable state", func(t *testing.T) {
		_, err := NextWalletState(Signing{}, Failed{Err: errors.New("boom"), Recover: Signing{}})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		next, err := NextWalletState(Signing{}, Failed{Err: errors.New("boom"), Recover: Disconnected{}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if IsStable(next) {
			t.Error("failed state must not be stable")
		}
	})

	t.Run("nil from is disconnected", func(t *testing.T) {
		if _, err := NextWalletState(nil, Connecting{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestSessionValid(t *testing.T) {
	tests := []struct {
		name  string
		s     Session
		valid bool
	}{
		{"empty", Session{}, true},
		{"authenticated without user", Session{Authenticated: true, Tokens: Tokens{AccessToken: "a"}}, false},
		{"authenticated without token", Session{Authenticated: true, User: &User{ID: "u"}}, false},
		{"authenticated", Session{Authenticated: true, User: &User{ID: "u"}, Tokens: Tokens{AccessToken: "a"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := Session{
		User:           &User{ID: "u1"},
		UserLayerCache: map[string]UserLayer{"l1": {ID: "ul1"}},
	}
	c := s.Clone()
	c.User.ID = "changed"
	c.UserLayerCache["l2"] = UserLayer{ID: "ul2"}

	if s.User.ID != "u1" {
		t.Errorf("clone shares user pointer")
	}
	if _, ok := s.UserLayerCache["l2"]; ok {
		t.Errorf("clone shares cache map")
	}
}

func TestLayerKey(t *testing.T) {
	l := Layer{Name: "Citrea", Network: NetworkTestnet}
	if got := l.Key(); got != "CITREA-TESTNET" {
		t.Errorf("Key() = %q", got)
	}
}
