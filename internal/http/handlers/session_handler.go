package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-marketplace/client/internal/http/dto"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/services"
	"go.uber.org/zap"
)

type SessionManager interface {
	State() models.WalletState
	LastError() error
	Session() models.Session
	Connect(ctx context.Context, layerID string, isLinking bool) (models.Session, error)
	SwitchLayer(ctx context.Context, layerID string) (models.Session, error)
	ConfirmLinkToAnotherUser(ctx context.Context, conflict *services.LinkConflictError) (models.Session, error)
	Disconnect(ctx context.Context) error
	Restore(ctx context.Context) (models.Session, error)
}

type SessionHandler struct {
	sessions SessionManager
	log      *zap.Logger

	mu       sync.Mutex
	conflict *services.LinkConflictError
}

func NewSessionHandler(sessions SessionManager, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

func (h *SessionHandler) response() dto.SessionResponse {
	resp := dto.SessionResponse{
		Phase:   h.sessions.State().Phase(),
		Session: h.sessions.Session(),
	}
	if err := h.sessions.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.response()})
}

func (h *SessionHandler) Connect(c *fiber.Ctx) error {
	var req dto.ConnectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.LayerID == "" {
		return badRequest(c, "layer_id is required")
	}

	_, err := h.sessions.Connect(c.UserContext(), req.LayerID, req.IsLinking)
	if err != nil {
		return h.connectError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.response()})
}

func (h *SessionHandler) SwitchLayer(c *fiber.Ctx) error {
	var req dto.SwitchLayerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.LayerID == "" {
		return badRequest(c, "layer_id is required")
	}

	if _, err := h.sessions.SwitchLayer(c.UserContext(), req.LayerID); err != nil {
		return h.connectError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.response()})
}

// ConfirmLink moves the address from the last link conflict to the current user.
func (h *SessionHandler) ConfirmLink(c *fiber.Ctx) error {
	h.mu.Lock()
	conflict := h.conflict
	h.mu.Unlock()
	if conflict == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no link conflict to confirm"})
	}

	if _, err := h.sessions.ConfirmLinkToAnotherUser(c.UserContext(), conflict); err != nil {
		return respondError(c, err)
	}

	h.mu.Lock()
	if h.conflict == conflict {
		h.conflict = nil
	}
	h.mu.Unlock()
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.response()})
}

func (h *SessionHandler) Restore(c *fiber.Ctx) error {
	if _, err := h.sessions.Restore(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.response()})
}

func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	if err := h.sessions.Disconnect(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	h.mu.Lock()
	h.conflict = nil
	h.mu.Unlock()
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.response()})
}

func (h *SessionHandler) connectError(c *fiber.Ctx, err error) error {
	var conflict *services.LinkConflictError
	if errors.As(err, &conflict) {
		h.mu.Lock()
		h.conflict = conflict
		h.mu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(dto.LinkConflictResponse{
			Error:   err.Error(),
			LayerID: conflict.Layer.ID,
			Address: conflict.Request.Address,
		})
	}
	h.log.Debug("wallet flow failed", zap.Error(err))
	return respondError(c, err)
}

// Phase is the current wallet session phase.
func (h *SessionHandler) Phase() string {
	return h.sessions.State().Phase()
}
