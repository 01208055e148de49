package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/session"
)

var (
	ErrConnectionInProgress = errors.New("a wallet connection is already in progress")
	ErrNotAuthenticated     = session.ErrNotAuthenticated
	ErrFlowCancelled        = errors.New("wallet flow cancelled by disconnect")
	ErrSignatureMismatch    = errors.New("wallet signature does not match the address")
	ErrLayerNotFound        = errors.New("layer not found")
	ErrAlreadyLinked        = errors.New("address is linked to another user")
	ErrUploadInProgress     = errors.New("an upload is already running for this collection")
)

// LinkConflictError is returned when the signed address belongs to another
// user. Request already carries the signature, so confirming the move does
// not prompt the wallet again.
type LinkConflictError struct {
	Layer   models.Layer
	Request api.SignInRequest
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("address %s on layer %s is linked to another user", e.Request.Address, e.Layer.Name)
}

func (e *LinkConflictError) Is(target error) bool {
	return target == ErrAlreadyLinked
}

// MissingFieldsError lists the required wizard fields left empty.
type MissingFieldsError struct {
	Step   string
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: missing required fields: %s", e.Step, strings.Join(e.Fields, ", "))
}

// BatchError identifies the batch that aborted an upload. Earlier batches
// stay on the server.
type BatchError struct {
	Phase      string
	BatchIndex int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upload %s batch %d failed: %v", e.Phase, e.BatchIndex+1, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
