package models

import "time"

type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol,omitempty"`
	Description string    `json:"description,omitempty"`
	LogoKey     string    `json:"logoKey,omitempty"`
	Supply      int       `json:"supply"`
	Type        string    `json:"type,omitempty"` // INSCRIPTION / RECURSIVE_INSCRIPTION / IPFS
	LayerID     string    `json:"layerId"`
	CreatorID   string    `json:"creatorId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListedCollection is a collection row on the marketplace overview.
type ListedCollection struct {
	Collection
	FloorPrice  float64 `json:"floor"`
	Volume      float64 `json:"volume"`
	ListedCount int     `json:"listedCount"`
	OwnerCount  int     `json:"ownerCount"`
}

type Collectible struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	CollectionID    string   `json:"collectionId"`
	UniqueIdx       string   `json:"uniqueIdx,omitempty"`
	FileKey         string   `json:"fileKey,omitempty"`
	HighResImageURL string   `json:"highResolutionImageUrl,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	ListID          *string  `json:"listId,omitempty"`
	ListedAt        *string  `json:"listedAt,omitempty"`
}

type ListableCollectibles struct {
	Collectibles []Collectible `json:"collectibles"`
	TotalCount   int           `json:"totalCount"`
	ListCount    int           `json:"listCount"`
}

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusInProgress = "IN_PROGRESS"
	OrderStatusDone       = "DONE"
	OrderStatusExpired    = "EXPIRED"
)

type Order struct {
	ID             string    `json:"id"`
	CollectionID   string    `json:"collectionId"`
	UserLayerID    string    `json:"userLayerId"`
	FundingAddress string    `json:"fundingAddress"`
	FundingAmount  int64     `json:"fundingAmount"` // smallest currency unit
	FeeRate        float64   `json:"feeRate"`
	Status         string    `json:"orderStatus"`
	CreatedAt      time.Time `json:"createdAt"`
}

type InscriptionProgress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

func (p InscriptionProgress) Finished() bool {
	return p.Total > 0 && p.Done >= p.Total
}
