package http

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/http/handlers"
	"github.com/nft-marketplace/client/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	sessions middleware.SessionReader,
	sessionHandler *handlers.SessionHandler,
	layerHandler *handlers.LayerHandler,
	marketHandler *handlers.MarketHandler,
	uploadHandler *handlers.UploadHandler,
	creationHandler *handlers.CreationHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "phase": sessionHandler.Phase()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	limited := middleware.RateLimitMiddleware(cfg.LocalAPIRateLimit)

	// Catalog (public)
	api.Get("/layers", layerHandler.ListLayers)
	api.Get("/layers/:id", layerHandler.GetLayer)
	api.Get("/collections/listed", marketHandler.ListedCollections)
	api.Get("/collections/:id/listable", marketHandler.ListableCollectibles)
	api.Get("/price", marketHandler.Price)

	// Wallet session
	api.Get("/session", sessionHandler.GetSession)
	api.Post("/session/connect", limited, sessionHandler.Connect)
	api.Post("/session/restore", limited, sessionHandler.Restore)
	api.Delete("/session", sessionHandler.Logout)

	// Upload history and the wizard draft
	api.Get("/uploads", uploadHandler.ListRuns)
	api.Get("/uploads/:id", uploadHandler.GetRun)
	api.Get("/create", creationHandler.GetFlow)
	api.Put("/create/collection", creationHandler.SetCollection)
	api.Put("/create/traits", creationHandler.SetTraits)
	api.Put("/create/inscription", creationHandler.SetInscription)
	api.Post("/create/continue", creationHandler.Continue)
	api.Post("/create/back", creationHandler.Back)
	api.Delete("/create", creationHandler.Reset)
	api.Get("/create/launch", creationHandler.LaunchStatus)

	// Protected endpoints, registered last: the group middleware runs for
	// every /api/v1 route matched after it.
	protected := api.Group("", middleware.RequireSession(sessions))

	protected.Post("/session/switch", limited, sessionHandler.SwitchLayer)
	protected.Post("/session/link-confirm", limited, sessionHandler.ConfirmLink)
	protected.Get("/collections/:id/progress", marketHandler.Progress)
	protected.Post("/uploads", limited, uploadHandler.StartUpload)
	protected.Post("/create/launch", limited, creationHandler.Launch)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware(cfg.AllowedOrigins))
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
