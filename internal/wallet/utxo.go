package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

// UnisatProvider is a UTXO wallet with the Unisat-style surface.
type UnisatProvider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	GetAccounts(ctx context.Context) ([]string, error)
	SignMessage(ctx context.Context, message string) (string, error)
	GetPublicKey(ctx context.Context) (string, error)
	GetBalance(ctx context.Context) (Balance, error)
	SendBitcoin(ctx context.Context, to string, sats int64) (string, error)
	On(event string, handler func(accounts []string)) (off func())
}

type UTXOAdapter struct {
	provider UnisatProvider
	log      *zap.Logger
}

func NewUTXOAdapter(provider UnisatProvider, log *zap.Logger) *UTXOAdapter {
	return &UTXOAdapter{provider: provider, log: log}
}

func (a *UTXOAdapter) Kind() models.LayerKind {
	return models.LayerKindUTXO
}

func (a *UTXOAdapter) RequestAccounts(ctx context.Context) ([]string, error) {
	accounts, err := a.provider.RequestAccounts(ctx)
	if err != nil {
		return nil, mapRejection(err, ErrUserRejected, "request accounts")
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

func (a *UTXOAdapter) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := a.provider.GetAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	return accounts, nil
}

func (a *UTXOAdapter) ChainID(context.Context) (int64, error) {
	return 0, nil
}

// SwitchChain is a no-op: UTXO layers carry no chain identifier.
func (a *UTXOAdapter) SwitchChain(_ context.Context, params models.ChainParams) error {
	if params.ChainID != 0 {
		return &ChainNotConfiguredError{ChainID: params.ChainID, Params: params}
	}
	return nil
}

// SignMessage signs with the active account, which must be address.
func (a *UTXOAdapter) SignMessage(ctx context.Context, address, message string) (string, error) {
	accounts, err := a.Accounts(ctx)
	if err != nil {
		return "", err
	}
	active, err := primary(accounts)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(active, address) {
		return "", fmt.Errorf("sign with %s: %w", address, ErrAccountMismatch)
	}

	sig, err := a.provider.SignMessage(ctx, message)
	if err != nil {
		return "", mapRejection(err, ErrUserRejected, "sign message")
	}
	return sig, nil
}

func (a *UTXOAdapter) PublicKey(ctx context.Context) (string, error) {
	pub, err := a.provider.GetPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("get public key: %w", err)
	}
	return pub, nil
}

func (a *UTXOAdapter) SendPayment(ctx context.Context, to string, sats int64) (string, error) {
	txid, err := a.provider.SendBitcoin(ctx, to, sats)
	if err != nil {
		return "", mapRejection(err, ErrUserRejected, "send bitcoin")
	}
	return txid, nil
}

func (a *UTXOAdapter) Balance(ctx context.Context) (Balance, error) {
	b, err := a.provider.GetBalance(ctx)
	if err != nil {
		return Balance{}, mapRejection(err, ErrUserRejected, "get balance")
	}
	return b, nil
}

func (a *UTXOAdapter) SubscribeAccountChange(fn func(AccountChange)) func() {
	return a.provider.On(eventAccountsChanged, func(accounts []string) {
		fn(AccountChange{Accounts: accounts})
	})
}

// Disconnect is a no-op; Unisat-style wallets have no revoke call.
func (a *UTXOAdapter) Disconnect(context.Context) error {
	return nil
}
