package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-marketplace/client/internal/http/dto"
	"github.com/nft-marketplace/client/internal/models"
)

type LayerCatalog interface {
	List(ctx context.Context) ([]models.Layer, error)
	Refresh(ctx context.Context) ([]models.Layer, error)
	Layer(ctx context.Context, id string) (models.Layer, error)
}

type LayerHandler struct {
	layers LayerCatalog
}

func NewLayerHandler(layers LayerCatalog) *LayerHandler {
	return &LayerHandler{layers: layers}
}

func (h *LayerHandler) ListLayers(c *fiber.Ctx) error {
	list := h.layers.List
	if c.QueryBool("refresh") {
		list = h.layers.Refresh
	}
	layers, err := list(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: layers})
}

func (h *LayerHandler) GetLayer(c *fiber.Ctx) error {
	layer, err := h.layers.Layer(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: layer})
}
