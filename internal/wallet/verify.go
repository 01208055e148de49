package wallet

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nft-marketplace/client/internal/models"
)

// VerifyPersonalSign reports whether signature is an EIP-191 personal_sign
// signature of message by address.
func VerifyPersonalSign(address, message, signature string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	sig = bytes.Clone(sig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false, fmt.Errorf("recover public key: %w", err)
	}
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}
	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(address), nil
}

// VerifyBitcoinMessage checks a BIP-137 compact signature against a P2WPKH address.
func VerifyBitcoinMessage(address, message, signature string, network models.Network) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}
	pub, _, err := ecdsa.RecoverCompact(sig, bitcoinMessageHash(message))
	if err != nil {
		return false, fmt.Errorf("recover public key: %w", err)
	}
	derived, err := segwitAddress(pub, network)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(derived, address), nil
}

// VerifySignature dispatches on the layer kind.
func VerifySignature(layer models.Layer, address, message, signature string) (bool, error) {
	switch layer.Kind {
	case models.LayerKindEVM:
		return VerifyPersonalSign(address, message, signature)
	case models.LayerKindUTXO:
		return VerifyBitcoinMessage(address, message, signature, layer.Network)
	}
	return false, fmt.Errorf("unknown layer kind %q", layer.Kind)
}
