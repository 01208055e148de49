package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/nft-marketplace/client/internal/models"
)

const bitcoinMessageMagic = "Bitcoin Signed Message:\n"

// LocalBitcoinProvider signs with a single private key held in process. It
// exposes a native segwit (P2WPKH) address and produces BIP-137 compact
// signatures. It has no chain backend, so balance and payment calls return
// ErrUnsupported.
type LocalBitcoinProvider struct {
	key     *btcec.PrivateKey
	address string

	mu        sync.Mutex
	connected bool
}

func NewLocalBitcoinProvider(privateKeyHex string, network models.Network) (*LocalBitcoinProvider, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("invalid bitcoin private key")
	}
	key, _ := btcec.PrivKeyFromBytes(raw)

	addr, err := segwitAddress(key.PubKey(), network)
	if err != nil {
		return nil, err
	}
	return &LocalBitcoinProvider{key: key, address: addr}, nil
}

func chainParams(network models.Network) *chaincfg.Params {
	if network == models.NetworkTestnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

func segwitAddress(pub *btcec.PublicKey, network models.Network) (string, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), chainParams(network))
	if err != nil {
		return "", fmt.Errorf("derive segwit address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

func (p *LocalBitcoinProvider) Address() string {
	return p.address
}

func (p *LocalBitcoinProvider) RequestAccounts(context.Context) ([]string, error) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return []string{p.address}, nil
}

func (p *LocalBitcoinProvider) GetAccounts(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, nil
	}
	return []string{p.address}, nil
}

func (p *LocalBitcoinProvider) SignMessage(_ context.Context, message string) (string, error) {
	sig := ecdsa.SignCompact(p.key, bitcoinMessageHash(message), true)
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (p *LocalBitcoinProvider) GetPublicKey(context.Context) (string, error) {
	return hex.EncodeToString(p.key.PubKey().SerializeCompressed()), nil
}

func (p *LocalBitcoinProvider) GetBalance(context.Context) (Balance, error) {
	return Balance{}, &ProviderError{Code: CodeUnsupportedMethod, Message: "local signer has no chain backend"}
}

func (p *LocalBitcoinProvider) SendBitcoin(context.Context, string, int64) (string, error) {
	return "", &ProviderError{Code: CodeUnsupportedMethod, Message: "local signer has no chain backend"}
}

// On never fires: the key cannot change underneath the process.
func (p *LocalBitcoinProvider) On(string, func([]string)) func() {
	return func() {}
}

func bitcoinMessageHash(message string) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, bitcoinMessageMagic)
	_ = wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}
