package handlers

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nft-marketplace/client/internal/http/dto"
	"github.com/nft-marketplace/client/internal/models"
	"github.com/nft-marketplace/client/internal/services"
	"go.uber.org/zap"
)

type Uploader interface {
	Upload(ctx context.Context, req services.UploadRequest) (*services.UploadResult, error)
	ActiveRun(collectionID string) (string, bool)
}

// UploadRunReader serves upload history. Nil when the session backend keeps no history.
type UploadRunReader interface {
	GetByID(ctx context.Context, id string) (*models.UploadRun, error)
	ListByCollection(ctx context.Context, collectionID string, limit int) ([]models.UploadRun, error)
}

type UploadHandler struct {
	uploads Uploader
	runs    UploadRunReader
	baseCtx context.Context
	log     *zap.Logger
	wg      sync.WaitGroup
}

// NewUploadHandler runs accepted uploads on baseCtx so they outlive the request.
func NewUploadHandler(baseCtx context.Context, uploads Uploader, runs UploadRunReader, log *zap.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, runs: runs, baseCtx: baseCtx, log: log}
}

// StartUpload checks the files, then runs the upload in the background.
// Progress is reported over the websocket.
func (h *UploadHandler) StartUpload(c *fiber.Ctx) error {
	var req dto.StartUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.CollectionID == "" {
		return badRequest(c, "collection_id is required")
	}
	if req.TraitsDir == "" && req.OneOfOneDir == "" {
		return badRequest(c, "traits_dir or one_of_one_dir is required")
	}
	if runID, ok := h.uploads.ActiveRun(req.CollectionID); ok {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: services.ErrUploadInProgress.Error() + " (run " + runID + ")",
		})
	}

	upload, err := services.BuildUploadRequest(models.TraitUploadInput{
		TraitsDir:    req.TraitsDir,
		MetadataPath: req.MetadataPath,
		OneOfOneDir:  req.OneOfOneDir,
	}, req.CollectionID, req.OrderID)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := services.ValidateUpload(upload); err != nil {
		return badRequest(c, err.Error())
	}
	upload.RunID = uuid.NewString()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.uploads.Upload(h.baseCtx, upload); err != nil {
			h.log.Error("background upload failed",
				zap.String("run_id", upload.RunID),
				zap.String("collection_id", upload.CollectionID),
				zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: dto.UploadAcceptedResponse{
		RunID:        upload.RunID,
		CollectionID: upload.CollectionID,
	}})
}

func (h *UploadHandler) GetRun(c *fiber.Ctx) error {
	if h.runs == nil {
		return historyUnavailable(c)
	}
	run, err := h.runs.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: run})
}

func (h *UploadHandler) ListRuns(c *fiber.Ctx) error {
	if h.runs == nil {
		return historyUnavailable(c)
	}
	runs, err := h.runs.ListByCollection(c.UserContext(), c.Query("collection_id"), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	if runs == nil {
		runs = []models.UploadRun{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: runs})
}

// Wait blocks until background uploads have returned.
func (h *UploadHandler) Wait() {
	h.wg.Wait()
}

func historyUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotImplemented).JSON(dto.ErrorResponse{Error: "upload history needs the sqlite session backend"})
}
