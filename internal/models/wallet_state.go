package models

import (
	"errors"
	"fmt"
)

// Wallet session phases
const (
	WalletPhaseDisconnected    = "disconnected"
	WalletPhaseConnecting      = "connecting"
	WalletPhaseChainConfirming = "chain_confirming"
	WalletPhaseSigning         = "signing"
	WalletPhaseAuthenticated   = "authenticated"
	WalletPhaseSwitchingLayer  = "switching_layer"
	WalletPhaseError           = "error"
)

// Valid phase transitions: from -> []to
var ValidWalletTransitions = map[string][]string{
	WalletPhaseDisconnected:    {WalletPhaseConnecting, WalletPhaseAuthenticated}, // authenticated: silent restoration
	WalletPhaseConnecting:      {WalletPhaseChainConfirming, WalletPhaseSigning, WalletPhaseError, WalletPhaseDisconnected},
	WalletPhaseChainConfirming: {WalletPhaseSigning, WalletPhaseAuthenticated, WalletPhaseError, WalletPhaseDisconnected},
	WalletPhaseSigning:         {WalletPhaseAuthenticated, WalletPhaseError, WalletPhaseDisconnected},
	WalletPhaseAuthenticated:   {WalletPhaseConnecting, WalletPhaseSwitchingLayer, WalletPhaseDisconnected},
	WalletPhaseSwitchingLayer:  {WalletPhaseAuthenticated, WalletPhaseChainConfirming, WalletPhaseConnecting, WalletPhaseError, WalletPhaseDisconnected},
	WalletPhaseError:           {WalletPhaseDisconnected, WalletPhaseAuthenticated},
}

var ErrInvalidTransition = errors.New("invalid wallet state transition")

func IsValidWalletTransition(from, to string) bool {
	allowed, ok := ValidWalletTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// WalletState is one of the concrete state types below. The unexported
// marker keeps the set closed to this package.
type WalletState interface {
	Phase() string
	walletState()
}

type Disconnected struct{}

type Connecting struct {
	Pending PendingConnection
}

type ChainConfirming struct {
	Pending       PendingConnection
	Address       string
	TargetChainID int64
}

type Signing struct {
	Pending PendingConnection
	Address string
}

type Authenticated struct {
	LayerID string
	Address string
}

type SwitchingLayer struct {
	FromLayerID string
	ToLayerID   string
}

// Failed is transient: it always resolves to Recover, which is either
// Disconnected or the Authenticated state held before the attempt.
type Failed struct {
	Err     error
	Recover WalletState
}

func (Disconnected) Phase() string    { return WalletPhaseDisconnected }
func (Connecting) Phase() string      { return WalletPhaseConnecting }
func (ChainConfirming) Phase() string { return WalletPhaseChainConfirming }
func (Signing) Phase() string         { return WalletPhaseSigning }
func (Authenticated) Phase() string   { return WalletPhaseAuthenticated }
func (SwitchingLayer) Phase() string  { return WalletPhaseSwitchingLayer }
func (Failed) Phase() string          { return WalletPhaseError }

func (Disconnected) walletState()    {}
func (Connecting) walletState()      {}
func (ChainConfirming) walletState() {}
func (Signing) walletState()         {}
func (Authenticated) walletState()   {}
func (SwitchingLayer) walletState()  {}
func (Failed) walletState()          {}

// NextWalletState validates a transition and returns the new state.
// Disconnect is accepted from every phase.
func NextWalletState(from, to WalletState) (WalletState, error) {
	if from == nil {
		from = Disconnected{}
	}
	if to == nil {
		return from, fmt.Errorf("%w: nil target", ErrInvalidTransition)
	}
	if _, ok := to.(Disconnected); ok {
		return to, nil
	}
	if f, ok := to.(Failed); ok {
		switch f.Recover.(type) {
		case Disconnected, Authenticated:
		default:
			return from, fmt.Errorf("%w: error state must recover to disconnected or authenticated", ErrInvalidTransition)
		}
	}
	if !IsValidWalletTransition(from.Phase(), to.Phase()) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from.Phase(), to.Phase())
	}
	return to, nil
}

// IsStable reports whether the state is one a flow may rest in.
func IsStable(s WalletState) bool {
	switch s.(type) {
	case Disconnected, Authenticated:
		return true
	}
	return false
}
