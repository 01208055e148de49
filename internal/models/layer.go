package models

import (
	"fmt"
	"strings"
)

type LayerKind string

const (
	LayerKindUTXO LayerKind = "UTXO"
	LayerKindEVM  LayerKind = "EVM"
)

type Network string

const (
	NetworkMainnet Network = "MAINNET"
	NetworkTestnet Network = "TESTNET"
)

// Layer is a supported chain/network pair. Reference data, fetched from the API at startup.
type Layer struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Kind             LayerKind `json:"layerType"`
	Network          Network   `json:"network"`
	ChainID          int64     `json:"chainId,omitempty"` // 0 when the layer has no chain identifier
	CurrencyID       string    `json:"currencyId"`
	CurrencySymbol   string    `json:"currencySymbol,omitempty"`
	CurrencyDecimals int       `json:"currencyDecimals,omitempty"`
	RPCURL           string    `json:"rpcUrl,omitempty"`
	ExplorerURL      string    `json:"explorerUrl,omitempty"`
}

// ChainParams describes a chain the way wallet_addEthereumChain expects it.
type ChainParams struct {
	ChainID          int64
	ChainName        string
	RPCURLs          []string
	ExplorerURLs     []string
	CurrencyName     string
	CurrencySymbol   string
	CurrencyDecimals int
}

func (l Layer) HasChainID() bool {
	return l.ChainID != 0
}

// Key returns the layer/network pair persisted as the selected layer, e.g. "CITREA-TESTNET".
func (l Layer) Key() string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(strings.ReplaceAll(l.Name, " ", "_")), l.Network)
}

func (l Layer) ChainParams() ChainParams {
	p := ChainParams{
		ChainID:          l.ChainID,
		ChainName:        l.Name,
		CurrencyName:     l.CurrencySymbol,
		CurrencySymbol:   l.CurrencySymbol,
		CurrencyDecimals: l.CurrencyDecimals,
	}
	if l.RPCURL != "" {
		p.RPCURLs = []string{l.RPCURL}
	}
	if l.ExplorerURL != "" {
		p.ExplorerURLs = []string{l.ExplorerURL}
	}
	if p.CurrencyDecimals == 0 {
		p.CurrencyDecimals = 18
	}
	return p
}
