package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/http/dto"
	"github.com/nft-marketplace/client/internal/middleware"
	"github.com/nft-marketplace/client/internal/models"
)

type MarketAPI interface {
	ListedCollections(ctx context.Context, q api.ListedCollectionsQuery) ([]models.ListedCollection, error)
	ListableCollectibles(ctx context.Context, collectionID string, q api.ListableQuery) (*models.ListableCollectibles, error)
}

type ProgressReader interface {
	Current(ctx context.Context, collectionID, userLayerID string) (models.InscriptionProgress, error)
}

type PriceReader interface {
	BTCUSD(ctx context.Context) (float64, error)
}

type MarketHandler struct {
	market   MarketAPI
	progress ProgressReader
	prices   PriceReader
}

func NewMarketHandler(market MarketAPI, progress ProgressReader, prices PriceReader) *MarketHandler {
	return &MarketHandler{market: market, progress: progress, prices: prices}
}

func (h *MarketHandler) ListedCollections(c *fiber.Ctx) error {
	q := api.ListedCollectionsQuery{
		LayerID:        c.Query("layer_id"),
		Interval:       c.Query("interval", "all"),
		OrderBy:        c.Query("order_by"),
		OrderDirection: c.Query("order_direction"),
		Limit:          c.QueryInt("limit", 20),
		Offset:         c.QueryInt("offset", 0),
	}
	if q.LayerID == "" {
		q.LayerID = middleware.GetLayerID(c)
	}
	if q.LayerID == "" {
		return badRequest(c, "layer_id is required")
	}

	collections, err := h.market.ListedCollections(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: collections})
}

func (h *MarketHandler) ListableCollectibles(c *fiber.Ctx) error {
	q := api.ListableQuery{
		UserID:         c.Query("user_id"),
		OrderBy:        c.Query("order_by"),
		OrderDirection: c.Query("order_direction"),
		Limit:          c.QueryInt("limit", 20),
		Offset:         c.QueryInt("offset", 0),
	}
	if v := c.Query("is_listed"); v != "" {
		listed := c.QueryBool("is_listed")
		q.IsListed = &listed
	}

	out, err := h.market.ListableCollectibles(c.UserContext(), c.Params("id"), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

// Progress requires a session: inscription progress is per user layer.
func (h *MarketHandler) Progress(c *fiber.Ctx) error {
	p, err := h.progress.Current(c.UserContext(), c.Params("id"), middleware.GetUserLayerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"done":     p.Done,
		"total":    p.Total,
		"finished": p.Finished(),
	}})
}

func (h *MarketHandler) Price(c *fiber.Ctx) error {
	usd, err := h.prices.BTCUSD(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PriceResponse{BTCUSD: usd}})
}
