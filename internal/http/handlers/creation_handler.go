package handlers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-marketplace/client/internal/http/dto"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/services"
	"go.uber.org/zap"
)

type Launcher interface {
	Launch(ctx context.Context, flow models.CreationFlow, onProgress func(models.UploadProgress)) (*services.LaunchResult, error)
}

type CreationHandler struct {
	wizard   *services.CreationWizard
	launcher Launcher
	baseCtx  context.Context
	log      *zap.Logger

	launching atomic.Bool
	wg        sync.WaitGroup

	mu         sync.Mutex
	lastLaunch *dto.LaunchResponse
	lastErr    error
}

func NewCreationHandler(baseCtx context.Context, wizard *services.CreationWizard, launcher Launcher, log *zap.Logger) *CreationHandler {
	return &CreationHandler{wizard: wizard, launcher: launcher, baseCtx: baseCtx, log: log}
}

func (h *CreationHandler) wizardResponse() dto.WizardResponse {
	flow := h.wizard.Flow()
	return dto.WizardResponse{Step: flow.CurrentStep.String(), Flow: flow}
}

func (h *CreationHandler) GetFlow(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.wizardResponse()})
}

func (h *CreationHandler) SetCollection(c *fiber.Ctx) error {
	var req dto.CollectionDetailsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	h.wizard.SetCollection(models.CollectionDetails{
		Name:        req.Name,
		Symbol:      req.Symbol,
		Description: req.Description,
		Supply:      req.Supply,
		Type:        req.Type,
	})
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.wizardResponse()})
}

func (h *CreationHandler) SetTraits(c *fiber.Ctx) error {
	var req dto.TraitUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	h.wizard.SetTraits(models.TraitUploadInput{
		TraitsDir:    req.TraitsDir,
		MetadataPath: req.MetadataPath,
		OneOfOneDir:  req.OneOfOneDir,
	})
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.wizardResponse()})
}

func (h *CreationHandler) SetInscription(c *fiber.Ctx) error {
	var req dto.InscriptionPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	h.wizard.SetInscription(models.InscriptionPayment{FeeRate: req.FeeRate, PayFromWallet: req.PayFromWallet})
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.wizardResponse()})
}

func (h *CreationHandler) Continue(c *fiber.Ctx) error {
	if _, err := h.wizard.Continue(); err != nil {
		if errors.Is(err, services.ErrLastStep) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.wizardResponse()})
}

func (h *CreationHandler) Back(c *fiber.Ctx) error {
	h.wizard.Back()
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.wizardResponse()})
}

func (h *CreationHandler) Reset(c *fiber.Ctx) error {
	if h.launching.Load() {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "a launch is running"})
	}
	h.wizard.Reset()
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.wizardResponse()})
}

// Launch starts the launch of the wizard flow in the background. Only one
// launch runs at a time; GET /create/launch reports the outcome.
func (h *CreationHandler) Launch(c *fiber.Ctx) error {
	flow := h.wizard.Flow()
	if flow.CurrentStep != models.StepLaunch {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "finish the wizard steps before launching"})
	}
	if err := services.ValidateFlow(flow); err != nil {
		return respondError(c, err)
	}
	if !h.launching.CompareAndSwap(false, true) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "a launch is already running"})
	}

	h.mu.Lock()
	h.lastLaunch, h.lastErr = nil, nil
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.launching.Store(false)

		res, err := h.launcher.Launch(h.baseCtx, flow, nil)
		if err != nil {
			h.log.Error("collection launch failed", zap.String("collection", flow.Collection.Name), zap.Error(err))
		}
		h.mu.Lock()
		h.lastLaunch, h.lastErr = launchResponse(res), err
		h.mu.Unlock()
	}()

	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true})
}

func (h *CreationHandler) LaunchStatus(c *fiber.Ctx) error {
	h.mu.Lock()
	res, err := h.lastLaunch, h.lastErr
	h.mu.Unlock()

	data := fiber.Map{"running": h.launching.Load(), "result": res}
	if err != nil {
		data["error"] = err.Error()
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: data})
}

// Wait blocks until a running launch has returned.
func (h *CreationHandler) Wait() {
	h.wg.Wait()
}

func launchResponse(res *services.LaunchResult) *dto.LaunchResponse {
	if res == nil {
		return nil
	}
	out := &dto.LaunchResponse{TxID: res.TxID, ManualPayment: res.ManualPayment}
	if res.Collection != nil {
		out.CollectionID = res.Collection.ID
	}
	if res.Order != nil {
		out.OrderID = res.Order.ID
	}
	if res.Upload != nil {
		p := res.Upload.Progress
		out.Progress = &p
		if res.Upload.MintErr != nil {
			out.MintError = res.Upload.MintErr.Error()
		}
	}
	return out
}
