package wallet

import (
	"errors"
	"fmt"

	"github.com/nft-marketplace/client/internal/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrChainSwitchRejected = errors.New("chain switch rejected")
	ErrChainNotConfigured  = errors.New("chain not configured in wallet")
	ErrNoAccounts          = errors.New("wallet returned no accounts")
	ErrAccountMismatch     = errors.New("address is not the active wallet account")
	ErrUnsupported         = errors.New("operation not supported by wallet")
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

// ProviderError is an error reported by a wallet provider.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet provider error %d: %s", e.Code, e.Message)
}

// ChainNotConfiguredError means the wallet has never seen the chain. Params
// carries what the user needs to add it manually.
type ChainNotConfiguredError struct {
	ChainID int64
	Params  models.ChainParams
}

func (e *ChainNotConfiguredError) Error() string {
	return fmt.Sprintf("chain %d is not configured in the wallet", e.ChainID)
}

func (e *ChainNotConfiguredError) Is(target error) bool {
	return target == ErrChainNotConfigured
}

func providerCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// mapRejection converts a 4001 into the given sentinel and leaves everything
// else wrapped as is.
func mapRejection(err error, rejected error, op string) error {
	if err == nil {
		return nil
	}
	switch providerCode(err) {
	case CodeUserRejected:
		return fmt.Errorf("%s: %w", op, rejected)
	case CodeUnsupportedMethod:
		return fmt.Errorf("%s: %w", op, ErrUnsupported)
	}
	return fmt.Errorf("%s: %w", op, err)
}
