package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
)

// Registry holds the wallet adapters that were detected at startup.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.LayerKind]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.LayerKind]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Kind()] = a
	r.mu.Unlock()
}

// Adapter returns the adapter for kind or ErrWalletNotFound.
func (r *Registry) Adapter(kind models.LayerKind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%s wallet: %w", kind, ErrWalletNotFound)
	}
	return a, nil
}

func (r *Registry) Kinds() []models.LayerKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LayerKind, 0, len(r.adapters))
	for _, k := range []models.LayerKind{models.LayerKindUTXO, models.LayerKindEVM} {
		if _, ok := r.adapters[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, a := range r.adapters {
		if c, ok := a.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

type DetectConfig struct {
	EVMRPCURL          string
	KeystoreDir        string
	KeystorePassphrase string
	DefaultChainID     int64
	PollInterval       time.Duration
	BTCPrivateKeyHex   string
	BTCNetwork         models.Network
}

// Detect builds a registry from whichever wallets are configured. A wallet
// that fails to come up is logged and left absent, so flows needing it fail
// with ErrWalletNotFound.
func Detect(ctx context.Context, cfg DetectConfig, log *zap.Logger) *Registry {
	r := NewRegistry()

	switch {
	case cfg.EVMRPCURL != "":
		p, err := DialRPCProvider(ctx, cfg.EVMRPCURL, cfg.PollInterval, log)
		if err != nil {
			log.Warn("EVM wallet bridge unavailable", zap.String("url", cfg.EVMRPCURL), zap.Error(err))
			break
		}
		r.Register(NewEVMAdapter(p, log))
		log.Info("EVM wallet detected", zap.String("provider", "rpc"))
	case cfg.KeystoreDir != "":
		p := OpenKeystoreProvider(cfg.KeystoreDir, cfg.KeystorePassphrase, cfg.DefaultChainID)
		if len(p.addresses()) == 0 {
			log.Warn("EVM keystore has no accounts", zap.String("dir", cfg.KeystoreDir))
			break
		}
		r.Register(NewEVMAdapter(p, log))
		log.Info("EVM wallet detected", zap.String("provider", "keystore"))
	}

	if cfg.BTCPrivateKeyHex != "" {
		p, err := NewLocalBitcoinProvider(cfg.BTCPrivateKeyHex, cfg.BTCNetwork)
		if err != nil {
			log.Warn("bitcoin signer unavailable", zap.Error(err))
		} else {
			r.Register(NewUTXOAdapter(p, log))
			log.Info("UTXO wallet detected", zap.String("provider", "local"), zap.String("address", p.Address()))
		}
	}

	return r
}
