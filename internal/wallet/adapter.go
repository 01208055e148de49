package wallet

import (
	"context"

	"github.com/nft-marketplace/client/internal/models"
)

// AccountChange is an externally triggered change reported by the wallet.
type AccountChange struct {
	Accounts     []string
	ChainID      int64
	ChainChanged bool
}

// Adapter is the capability set shared by every wallet kind.
type Adapter interface {
	Kind() models.LayerKind
	// RequestAccounts may prompt the user.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts never prompts; an empty list means the wallet is not connected.
	Accounts(ctx context.Context) ([]string, error)
	// ChainID is 0 for wallets without a chain identifier.
	ChainID(ctx context.Context) (int64, error)
	SwitchChain(ctx context.Context, params models.ChainParams) error
	SignMessage(ctx context.Context, address, message string) (string, error)
	PublicKey(ctx context.Context) (string, error)
	SendPayment(ctx context.Context, to string, amount int64) (string, error)
	SubscribeAccountChange(fn func(AccountChange)) (unsubscribe func())
	Disconnect(ctx context.Context) error
}

// BalanceReader is implemented by adapters that can report a balance.
type BalanceReader interface {
	Balance(ctx context.Context) (Balance, error)
}

type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
	Total       int64 `json:"total"`
}

func primary(accounts []string) (string, error) {
	if len(accounts) == 0 || accounts[0] == "" {
		return "", ErrNoAccounts
	}
	return accounts[0], nil
}
