package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// RPCProvider forwards EIP-1193 requests to a JSON-RPC wallet bridge. The
// bridge has no push channel, so account and chain changes are detected by
// polling eth_accounts and eth_chainId while at least one listener exists.
type RPCProvider struct {
	client   *rpc.Client
	interval time.Duration
	log      *zap.Logger

	listeners *listeners

	mu          sync.Mutex
	lastAccts   []string
	lastChain   string
	seeded      bool
	stopPolling context.CancelFunc
}

func DialRPCProvider(ctx context.Context, url string, interval time.Duration, log *zap.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet bridge: %w", err)
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &RPCProvider{
		client:    client,
		interval:  interval,
		log:       log,
		listeners: newListeners(),
	}, nil
}

func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := p.client.CallContext(ctx, &raw, method, params...); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, &ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		}
		return nil, fmt.Errorf("wallet bridge unavailable: %w", err)
	}
	return raw, nil
}

func (p *RPCProvider) On(event string, handler func(json.RawMessage)) func() {
	off := p.listeners.add(event, handler)

	p.mu.Lock()
	if p.stopPolling == nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.stopPolling = cancel
		go p.poll(ctx)
	}
	p.mu.Unlock()

	return func() {
		off()
		if p.listeners.count() > 0 {
			return
		}
		p.mu.Lock()
		if p.stopPolling != nil {
			p.stopPolling()
			p.stopPolling = nil
			p.seeded = false
		}
		p.mu.Unlock()
	}
}

func (p *RPCProvider) poll(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

// check compares the bridge's accounts and chain with the last observation
// and emits the matching events. The first observation only seeds state.
func (p *RPCProvider) check(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	var accts []string
	if err := p.client.CallContext(reqCtx, &accts, "eth_accounts"); err != nil {
		if ctx.Err() == nil {
			p.log.Debug("poll eth_accounts failed", zap.Error(err))
		}
		return
	}
	var chain string
	if err := p.client.CallContext(reqCtx, &chain, "eth_chainId"); err != nil {
		if ctx.Err() == nil {
			p.log.Debug("poll eth_chainId failed", zap.Error(err))
		}
		return
	}

	p.mu.Lock()
	seeded := p.seeded
	acctsChanged := seeded && !slices.Equal(accts, p.lastAccts)
	chainChanged := seeded && chain != p.lastChain
	p.lastAccts, p.lastChain, p.seeded = accts, chain, true
	p.mu.Unlock()

	if acctsChanged {
		p.listeners.emit(eventAccountsChanged, mustJSON(accts))
	}
	if chainChanged {
		p.listeners.emit(eventChainChanged, mustJSON(chain))
	}
}

func (p *RPCProvider) Close() error {
	p.mu.Lock()
	if p.stopPolling != nil {
		p.stopPolling()
		p.stopPolling = nil
	}
	p.mu.Unlock()
	p.client.Close()
	return nil
}
