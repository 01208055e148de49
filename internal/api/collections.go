package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/nft-marketplace/client/internal/models"
)

type ListedCollectionsQuery struct {
	LayerID        string
	Interval       string // 1h / 24h / 7d / 30d / all
	OrderBy        string
	OrderDirection string
	Limit          int
	Offset         int
}

func (q ListedCollectionsQuery) values() url.Values {
	v := url.Values{}
	if q.LayerID != "" {
		v.Set("layerId", q.LayerID)
	}
	if q.Interval != "" {
		v.Set("interval", q.Interval)
	}
	if q.OrderBy != "" {
		v.Set("orderBy", q.OrderBy)
	}
	if q.OrderDirection != "" {
		v.Set("orderDirection", q.OrderDirection)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

func (c *Client) ListedCollections(ctx context.Context, q ListedCollectionsQuery) ([]models.ListedCollection, error) {
	var out []models.ListedCollection
	if err := c.getJSON(ctx, "/api/v1/collections/listed", q.values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type ListableQuery struct {
	UserID         string
	IsListed       *bool
	OrderBy        string
	OrderDirection string
	Limit          int
	Offset         int
}

// ListableCollectibles returns the collectibles of a collection together with listing data.
func (c *Client) ListableCollectibles(ctx context.Context, collectionID string, q ListableQuery) (*models.ListableCollectibles, error) {
	v := url.Values{}
	if q.UserID != "" {
		v.Set("userId", q.UserID)
	}
	if q.IsListed != nil {
		v.Set("isListed", strconv.FormatBool(*q.IsListed))
	}
	if q.OrderBy != "" {
		v.Set("orderBy", q.OrderBy)
	}
	if q.OrderDirection != "" {
		v.Set("orderDirection", q.OrderDirection)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}

	var out models.ListableCollectibles
	path := "/api/v1/collectibles/" + url.PathEscape(collectionID) + "/collection/listable"
	if err := c.getJSON(ctx, path, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type CreateCollectionRequest struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol,omitempty"`
	Description string `json:"description,omitempty"`
	Supply      int    `json:"supply"`
	Type        string `json:"type"`
	LayerID     string `json:"layerId"`
	UserLayerID string `json:"userLayerId"`
}

func (c *Client) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*models.Collection, error) {
	var out models.Collection
	if err := c.postJSON(ctx, "/api/v1/collections", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) InscriptionProgress(ctx context.Context, collectionID, userLayerID string) (*models.InscriptionProgress, error) {
	v := url.Values{}
	v.Set("userLayerId", userLayerID)

	var out models.InscriptionProgress
	path := "/api/v1/collections/" + url.PathEscape(collectionID) + "/inscription-progress"
	if err := c.getJSON(ctx, path, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
