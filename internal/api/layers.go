package api

import (
	"context"
	"net/url"

	"github.com/nft-marketplace/client/internal/models"
)

func (c *Client) ListLayers(ctx context.Context) ([]models.Layer, error) {
	var layers []models.Layer
	if err := c.getJSON(ctx, "/api/v1/layers/", nil, &layers); err != nil {
		return nil, err
	}
	return layers, nil
}

func (c *Client) GetLayer(ctx context.Context, id string) (*models.Layer, error) {
	var layer models.Layer
	if err := c.getJSON(ctx, "/api/v1/layers/"+url.PathEscape(id), nil, &layer); err != nil {
		return nil, err
	}
	return &layer, nil
}
