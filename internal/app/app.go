// Package app wires the marketplace client together for the daemon and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nft-marketplace/client/internal/api"
	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/db"
	"github.com/nft-marketplace/client/internal/events"
	"github.com/nft-marketplace/client/internal/repositories"
	"github.com/nft-marketplace/client/internal/services"
	"github.com/nft-marketplace/client/internal/session"
	"github.com/nft-marketplace/client/internal/wallet"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type App struct {
	Cfg *config.Config
	Log *zap.Logger

	Store   *session.Store
	API     *api.Client
	Wallets *wallet.Registry
	Bus     *events.LocalBus
	// Subscriber sees events of this process, plus those of other processes
	// sharing the redis backend.
	Subscriber events.Subscriber
	Runs       *repositories.UploadRunRepo // nil without the sqlite backend

	Layers   *services.LayerService
	Sessions *services.SessionService
	Orders   *services.OrderService
	Uploads  *services.UploadService
	Progress *services.ProgressService
	Prices   *services.PriceService
	Creation *services.CreationService
	Wizard   *services.CreationWizard

	sqlDB *sql.DB
	rdb   *redis.Client
}

// NewLogger builds the production logger at the configured level, or the
// development one for debug.
func NewLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if level == "debug" {
		zcfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

// New opens the session backend, loads the persisted session and builds
// every service. It does not restore the wallet session; callers decide.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	storage, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	a.Store = session.NewStore(storage, log.Named("session"))
	if _, err := a.Store.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load session: %w", err)
	}

	a.Bus = events.NewLocalBus(128, log.Named("events"))
	var publisher events.Publisher = a.Bus
	a.Subscriber = a.Bus
	if a.rdb != nil {
		publisher = events.MultiPublisher{a.Bus, events.NewRedisPublisher(a.rdb, log.Named("events"))}
		a.Subscriber = events.NewRedisSubscriber(a.rdb, log.Named("events"))
	}

	a.API = api.NewClient(cfg.APIBaseURL, a.Store, log.Named("api"),
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithGetRetries(cfg.HTTPGetRetries),
	)

	a.Wallets = wallet.Detect(ctx, wallet.DetectConfig{
		EVMRPCURL:          cfg.EVMWalletRPCURL,
		KeystoreDir:        cfg.EVMKeystoreDir,
		KeystorePassphrase: cfg.EVMKeystorePassphrase,
		DefaultChainID:     cfg.EVMDefaultChainID,
		PollInterval:       cfg.WalletPollInterval,
		BTCPrivateKeyHex:   cfg.BTCPrivateKeyHex,
		BTCNetwork:         cfg.BitcoinNetwork(),
	}, log.Named("wallet"))

	a.Layers = services.NewLayerService(a.API, log.Named("layers"))
	a.Sessions = services.NewSessionService(a.API, a.Wallets, a.Layers, a.Store, publisher, cfg, log.Named("wallet_session"))
	a.API.OnUnauthorized(func(ctx context.Context) {
		a.Sessions.ForceLogout(ctx, "session expired")
	})

	var runs services.UploadRunStore
	if a.Runs != nil {
		runs = a.Runs
	}
	a.Orders = services.NewOrderService(a.API, a.Wallets, publisher, cfg, log.Named("orders"))
	a.Uploads = services.NewUploadService(a.API, runs, publisher, cfg, log.Named("upload"))
	a.Progress = services.NewProgressService(a.API, publisher, cfg, log.Named("progress"))
	a.Prices = services.NewPriceService(a.Store, cfg, log.Named("price"))
	a.Creation = services.NewCreationService(a.API, a.Orders, a.Uploads, a.Store, log.Named("create"))
	a.Wizard = services.NewCreationWizard()

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (session.Storage, error) {
	switch a.Cfg.SessionBackend {
	case "memory":
		return session.NewMemoryStorage(), nil
	case "redis":
		rdb, err := db.NewRedisClient(ctx, a.Cfg.RedisURL, a.Log)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		return session.NewRedisStorage(rdb, a.Cfg.RedisKeyPrefix), nil
	case "sqlite", "":
		conn, err := db.OpenSQLite(ctx, a.Cfg.SQLitePath, a.Log)
		if err != nil {
			return nil, err
		}
		a.sqlDB = conn
		a.Runs = repositories.NewUploadRunRepo(conn)
		return session.NewSQLiteStorage(conn), nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", a.Cfg.SessionBackend)
	}
}

// Close releases wallets and the session backend.
func (a *App) Close() error {
	var errs []error
	if a.Wallets != nil {
		errs = append(errs, a.Wallets.Close())
	}
	if a.sqlDB != nil {
		errs = append(errs, a.sqlDB.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	return errors.Join(errs...)
}
