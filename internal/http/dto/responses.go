package dto

import "github.com/nft-marketplace/client/internal/models"

type ErrorResponse struct {
	Error     string   `json:"error"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type SessionResponse struct {
	Phase     string         `json:"phase"`
	LastError string         `json:"last_error,omitempty"`
	Session   models.Session `json:"session"`
}

// LinkConflictResponse asks the user whether to move the address to the
// current account. POST /session/link-confirm accepts it.
type LinkConflictResponse struct {
	Error   string `json:"error"`
	LayerID string `json:"layer_id"`
	Address string `json:"address"`
}

type UploadAcceptedResponse struct {
	RunID        string `json:"run_id"`
	CollectionID string `json:"collection_id"`
}

type PriceResponse struct {
	BTCUSD float64 `json:"btc_usd"`
}

type WizardResponse struct {
	Step string              `json:"step"`
	Flow models.CreationFlow `json:"flow"`
}

type LaunchResponse struct {
	CollectionID  string                 `json:"collection_id"`
	OrderID       string                 `json:"order_id"`
	TxID          string                 `json:"txid,omitempty"`
	ManualPayment bool                   `json:"manual_payment"`
	Progress      *models.UploadProgress `json:"progress,omitempty"`
	MintError     string                 `json:"mint_error,omitempty"`
}
