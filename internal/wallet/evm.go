package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

// EIP1193Provider is an EVM wallet reachable through request/event calls.
type EIP1193Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	On(event string, handler func(payload json.RawMessage)) (off func())
}

const (
	eventAccountsChanged = "accountsChanged"
	eventChainChanged    = "chainChanged"
)

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

type sendTxParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

type EVMAdapter struct {
	provider EIP1193Provider
	log      *zap.Logger
}

func NewEVMAdapter(provider EIP1193Provider, log *zap.Logger) *EVMAdapter {
	return &EVMAdapter{provider: provider, log: log}
}

func (a *EVMAdapter) Kind() models.LayerKind {
	return models.LayerKindEVM
}

func (a *EVMAdapter) RequestAccounts(ctx context.Context) ([]string, error) {
	raw, err := a.provider.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, mapRejection(err, ErrUserRejected, "request accounts")
	}
	accounts, err := decodeAccounts(raw)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

func (a *EVMAdapter) Accounts(ctx context.Context) ([]string, error) {
	raw, err := a.provider.Request(ctx, "eth_accounts")
	if err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return decodeAccounts(raw)
}

func (a *EVMAdapter) ChainID(ctx context.Context) (int64, error) {
	raw, err := a.provider.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	return decodeChainID(raw)
}

// SwitchChain adds the chain first whenever RPC parameters are known, then
// switches. Without RPC parameters only the switch is attempted.
func (a *EVMAdapter) SwitchChain(ctx context.Context, params models.ChainParams) error {
	if params.ChainID == 0 {
		return nil
	}
	chainHex := hexutil.EncodeUint64(uint64(params.ChainID))

	if len(params.RPCURLs) > 0 {
		add := addChainParams{
			ChainID:           chainHex,
			ChainName:         params.ChainName,
			RPCURLs:           params.RPCURLs,
			BlockExplorerURLs: params.ExplorerURLs,
			NativeCurrency: nativeCurrency{
				Name:     params.CurrencyName,
				Symbol:   params.CurrencySymbol,
				Decimals: params.CurrencyDecimals,
			},
		}
		if _, err := a.provider.Request(ctx, "wallet_addEthereumChain", add); err != nil {
			if providerCode(err) == CodeUserRejected {
				return fmt.Errorf("add chain %d: %w", params.ChainID, ErrChainSwitchRejected)
			}
			// some wallets refuse to re-add a known chain; the switch decides
			a.log.Debug("wallet_addEthereumChain failed", zap.Int64("chain_id", params.ChainID), zap.Error(err))
		}
	}

	_, err := a.provider.Request(ctx, "wallet_switchEthereumChain", switchChainParams{ChainID: chainHex})
	if err == nil {
		return nil
	}
	switch providerCode(err) {
	case CodeUserRejected:
		return fmt.Errorf("switch chain %d: %w", params.ChainID, ErrChainSwitchRejected)
	case CodeUnrecognizedChain:
		return &ChainNotConfiguredError{ChainID: params.ChainID, Params: params}
	}
	return fmt.Errorf("switch chain %d: %w", params.ChainID, err)
}

func (a *EVMAdapter) SignMessage(ctx context.Context, address, message string) (string, error) {
	raw, err := a.provider.Request(ctx, "personal_sign", hexutil.Encode([]byte(message)), address)
	if err != nil {
		return "", mapRejection(err, ErrUserRejected, "personal_sign")
	}
	var sig string
	if err := json.Unmarshal(raw, &sig); err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	return sig, nil
}

// PublicKey is not exposed by EVM wallets; the server recovers it from the signature.
func (a *EVMAdapter) PublicKey(context.Context) (string, error) {
	return "", nil
}

// SendPayment sends amount wei from the active account.
func (a *EVMAdapter) SendPayment(ctx context.Context, to string, amount int64) (string, error) {
	accounts, err := a.Accounts(ctx)
	if err != nil {
		return "", err
	}
	from, err := primary(accounts)
	if err != nil {
		return "", err
	}

	tx := sendTxParams{From: from, To: to, Value: hexutil.EncodeBig(big.NewInt(amount))}
	raw, err := a.provider.Request(ctx, "eth_sendTransaction", tx)
	if err != nil {
		return "", mapRejection(err, ErrUserRejected, "eth_sendTransaction")
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("decode transaction hash: %w", err)
	}
	return hash, nil
}

func (a *EVMAdapter) SubscribeAccountChange(fn func(AccountChange)) func() {
	offAccounts := a.provider.On(eventAccountsChanged, func(payload json.RawMessage) {
		accounts, err := decodeAccounts(payload)
		if err != nil {
			a.log.Warn("bad accountsChanged payload", zap.Error(err))
			return
		}
		fn(AccountChange{Accounts: accounts})
	})
	offChain := a.provider.On(eventChainChanged, func(payload json.RawMessage) {
		id, err := decodeChainID(payload)
		if err != nil {
			a.log.Warn("bad chainChanged payload", zap.Error(err))
			return
		}
		fn(AccountChange{ChainID: id, ChainChanged: true})
	})
	return func() {
		offAccounts()
		offChain()
	}
}

func (a *EVMAdapter) Disconnect(ctx context.Context) error {
	_, err := a.provider.Request(ctx, "wallet_revokePermissions", map[string]any{"eth_accounts": map[string]any{}})
	if err != nil {
		return fmt.Errorf("revoke permissions: %w", err)
	}
	return nil
}

// Close releases the provider if it holds a connection.
func (a *EVMAdapter) Close() error {
	if c, ok := a.provider.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func decodeAccounts(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

func decodeChainID(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// some providers report the chain id as a number
		var n int64
		if nerr := json.Unmarshal(raw, &n); nerr == nil {
			return n, nil
		}
		return 0, fmt.Errorf("decode chain id: %w", err)
	}
	return parseChainID(s)
}

func parseChainID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty chain id")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok || !n.IsInt64() {
			return 0, fmt.Errorf("invalid chain id %q", s)
		}
		return n.Int64(), nil
	}
	v, err := hexutil.DecodeUint64(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return int64(v), nil
}
