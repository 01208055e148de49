package models

import "time"

// Upload run statuses
const (
	UploadStatusRunning  = "RUNNING"
	UploadStatusDone     = "DONE"
	UploadStatusFailed   = "FAILED"
	UploadStatusMintWarn = "DONE_MINT_FAILED"
)

// Upload phases, in submission order
const (
	UploadPhaseTraitTypes  = "trait_types"
	UploadPhaseTraitValues = "trait_values"
	UploadPhaseRecursive   = "recursive"
	UploadPhaseOneOfOne    = "one_of_one"
	UploadPhaseMint        = "mint"
)

// UploadRun is the locally recorded history of one batch upload.
type UploadRun struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collectionId"`
	Status       string    `json:"status"`
	Done         int       `json:"done"`
	Total        int       `json:"total"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UploadProgress is the monotonic current/total counter of a running upload.
type UploadProgress struct {
	RunID   string `json:"runId"`
	Phase   string `json:"phase"`
	Batch   int    `json:"batch"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}
