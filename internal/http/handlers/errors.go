package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/http/dto"
	"github.com/nft-marketplace/client/internal/middleware"
	"github.com/nft-marketplace/client/internal/repositories"
	"github.com/nft-marketplace/client/internal/services"
	"github.com/nft-marketplace/client/internal/wallet"
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var missing *services.MissingFieldsError
	var apiErr *api.Error
	switch {
	case errors.As(err, &missing):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrConnectionInProgress),
		errors.Is(err, services.ErrUploadInProgress),
		errors.Is(err, services.ErrFlowCancelled),
		errors.Is(err, services.ErrAlreadyLinked):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrNotAuthenticated), errors.Is(err, api.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrLayerNotFound),
		errors.Is(err, repositories.ErrUploadRunNotFound),
		errors.Is(err, api.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, wallet.ErrWalletNotFound):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, wallet.ErrUserRejected),
		errors.Is(err, wallet.ErrChainSwitchRejected),
		errors.Is(err, wallet.ErrChainNotConfigured),
		errors.Is(err, wallet.ErrAccountMismatch),
		errors.Is(err, services.ErrSignatureMismatch):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &apiErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	resp := dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)}
	var missing *services.MissingFieldsError
	if errors.As(err, &missing) {
		resp.Fields = missing.Fields
	}
	return c.Status(statusFor(err)).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
