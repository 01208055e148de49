package api

import (
	"context"
	"net/url"

	"github.com/nft-marketplace/client/internal/models"
)

type CreateOrderRequest struct {
	CollectionID string  `json:"collectionId"`
	UserLayerID  string  `json:"userLayerId"`
	FeeRate      float64 `json:"feeRate"`
	TxID         string  `json:"txid,omitempty"`
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	var out models.Order
	if err := c.postJSON(ctx, "/api/v1/orders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckOrderPaid(ctx context.Context, orderID string) (bool, error) {
	var out struct {
		IsPaid bool `json:"isPaid"`
	}
	if err := c.getJSON(ctx, "/api/v1/orders/"+url.PathEscape(orderID)+"/check-paid", nil, &out); err != nil {
		return false, err
	}
	return out.IsPaid, nil
}

func (c *Client) InvokeMint(ctx context.Context, orderID string) (*models.Order, error) {
	var out models.Order
	if err := c.postJSON(ctx, "/api/v1/orders/"+url.PathEscape(orderID)+"/invoke-mint", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
