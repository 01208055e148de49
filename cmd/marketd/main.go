package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-marketplace/client/internal/app"
	"github.com/nft-marketplace/client/internal/config"
	apphttp "github.com/nft-marketplace/client/internal/http"
	"github.com/nft-marketplace/client/internal/http/handlers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	log, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg.Validate(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to start client", zap.Error(err))
	}
	defer a.Close()

	if _, err := a.Layers.Refresh(ctx); err != nil {
		log.Warn("layer catalog not loaded, will retry on demand", zap.Error(err))
	}
	if sess, err := a.Sessions.Restore(ctx); err != nil {
		log.Warn("session not restored", zap.Error(err))
	} else if sess.Authenticated {
		log.Info("session restored", zap.String("user_id", sess.User.ID), zap.String("layer_id", sess.SelectedLayerID))
	}

	// Handlers
	sessionHandler := handlers.NewSessionHandler(a.Sessions, log)
	layerHandler := handlers.NewLayerHandler(a.Layers)
	marketHandler := handlers.NewMarketHandler(a.API, a.Progress, a.Prices)
	var runs handlers.UploadRunReader
	if a.Runs != nil {
		runs = a.Runs
	}
	uploadHandler := handlers.NewUploadHandler(ctx, a.Uploads, runs, log)
	creationHandler := handlers.NewCreationHandler(ctx, a.Wizard, a.Creation, log)
	wsHub := handlers.NewWSHub(a.Subscriber, log)

	// Fiber app
	server := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(server, cfg, log, a.Sessions, sessionHandler, layerHandler, marketHandler, uploadHandler, creationHandler, wsHub)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wsHub.Start(gctx)
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%s", cfg.LocalAPIHost, cfg.LocalAPIPort)
		log.Info("starting local API", zap.String("addr", addr))
		return server.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		err := server.Shutdown()
		uploadHandler.Wait()
		creationHandler.Wait()
		return err
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("client stopped", zap.Error(err))
		os.Exit(1)
	}
}
