package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeystoreProvider is an EIP-1193 provider backed by a local go-ethereum
// keystore. It keeps its own registry of chains added through
// wallet_addEthereumChain, so switching to an unknown chain fails with 4902
// the way browser wallets do.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase string

	mu        sync.Mutex
	chainID   int64
	known     map[int64]addChainParams
	connected bool
	listeners *listeners
}

func NewKeystoreProvider(ks *keystore.KeyStore, passphrase string, chainID int64) *KeystoreProvider {
	p := &KeystoreProvider{
		ks:         ks,
		passphrase: passphrase,
		chainID:    chainID,
		known:      make(map[int64]addChainParams),
		listeners:  newListeners(),
	}
	if chainID != 0 {
		p.known[chainID] = addChainParams{ChainID: hexutil.EncodeUint64(uint64(chainID))}
	}
	return p
}

// OpenKeystoreProvider opens the keystore directory with standard scrypt parameters.
func OpenKeystoreProvider(dir, passphrase string, chainID int64) *KeystoreProvider {
	return NewKeystoreProvider(keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), passphrase, chainID)
}

func (p *KeystoreProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		addrs := p.addresses()
		if len(addrs) == 0 {
			return nil, &ProviderError{Code: CodeUnauthorized, Message: "keystore has no accounts"}
		}
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		return json.Marshal(addrs)

	case "eth_accounts":
		p.mu.Lock()
		connected := p.connected
		p.mu.Unlock()
		if !connected {
			return json.Marshal([]string{})
		}
		return json.Marshal(p.addresses())

	case "eth_chainId":
		p.mu.Lock()
		id := p.chainID
		p.mu.Unlock()
		return json.Marshal(hexutil.EncodeUint64(uint64(id)))

	case "personal_sign":
		var data, address string
		if err := decodeParams(params, &data, &address); err != nil {
			return nil, err
		}
		return p.personalSign(data, address)

	case "wallet_addEthereumChain":
		var add addChainParams
		if err := decodeParams(params, &add); err != nil {
			return nil, err
		}
		id, err := parseChainID(add.ChainID)
		if err != nil {
			return nil, &ProviderError{Code: -32602, Message: err.Error()}
		}
		p.mu.Lock()
		p.known[id] = add
		p.mu.Unlock()
		return json.RawMessage("null"), nil

	case "wallet_switchEthereumChain":
		var sw switchChainParams
		if err := decodeParams(params, &sw); err != nil {
			return nil, err
		}
		id, err := parseChainID(sw.ChainID)
		if err != nil {
			return nil, &ProviderError{Code: -32602, Message: err.Error()}
		}
		p.mu.Lock()
		if _, ok := p.known[id]; !ok {
			p.mu.Unlock()
			return nil, &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain %s", sw.ChainID)}
		}
		changed := p.chainID != id
		p.chainID = id
		p.mu.Unlock()
		if changed {
			p.listeners.emit(eventChainChanged, mustJSON(hexutil.EncodeUint64(uint64(id))))
		}
		return json.RawMessage("null"), nil

	case "wallet_revokePermissions":
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		p.listeners.emit(eventAccountsChanged, mustJSON([]string{}))
		return json.RawMessage("null"), nil
	}

	return nil, &ProviderError{Code: CodeUnsupportedMethod, Message: fmt.Sprintf("method %s not supported by keystore signer", method)}
}

func (p *KeystoreProvider) On(event string, handler func(json.RawMessage)) func() {
	return p.listeners.add(event, handler)
}

func (p *KeystoreProvider) addresses() []string {
	accs := p.ks.Accounts()
	out := make([]string, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Address.Hex())
	}
	return out
}

func (p *KeystoreProvider) personalSign(data, address string) (json.RawMessage, error) {
	msg, err := hexutil.Decode(data)
	if err != nil {
		// wallets accept plain text too
		msg = []byte(data)
	}
	if !common.IsHexAddress(address) {
		return nil, &ProviderError{Code: -32602, Message: "invalid address"}
	}
	account := accounts.Account{Address: common.HexToAddress(address)}
	if !p.ks.HasAddress(account.Address) {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "unknown account " + address}
	}

	sig, err := p.ks.SignHashWithPassphrase(account, p.passphrase, accounts.TextHash(msg))
	if err != nil {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: err.Error()}
	}
	sig[crypto.RecoveryIDOffset] += 27
	return json.Marshal(hexutil.Encode(sig))
}

func decodeParams(params []any, out ...any) error {
	if len(params) < len(out) {
		return &ProviderError{Code: -32602, Message: fmt.Sprintf("expected %d params, got %d", len(out), len(params))}
	}
	for i, dst := range out {
		b, err := json.Marshal(params[i])
		if err != nil {
			return &ProviderError{Code: -32602, Message: err.Error()}
		}
		if err := json.Unmarshal(b, dst); err != nil {
			return &ProviderError{Code: -32602, Message: err.Error()}
		}
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// listeners is a small event registry shared by the in-process providers.
type listeners struct {
	mu     sync.Mutex
	nextID int
	byName map[string]map[int]func(json.RawMessage)
}

func newListeners() *listeners {
	return &listeners{byName: make(map[string]map[int]func(json.RawMessage))}
}

func (l *listeners) add(event string, fn func(json.RawMessage)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	if l.byName[event] == nil {
		l.byName[event] = make(map[int]func(json.RawMessage))
	}
	l.byName[event][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.byName[event], id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.byName {
		n += len(m)
	}
	return n
}

func (l *listeners) emit(event string, payload json.RawMessage) {
	l.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(l.byName[event]))
	for _, fn := range l.byName[event] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}
