package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"companion/internal/adapter/repo"
	"companion/internal/companion"
	"companion/internal/domain"
	"companion/internal/http/handlers"
	httpapi "companion/internal/http/httpapi"
	"companion/internal/imagegen"
	"companion/internal/infra"
	"companion/internal/infra/google"
	"companion/internal/ledger"
	"companion/internal/metrics"
	"companion/internal/middleware"
	"companion/internal/providers/image"
	"companion/internal/storage"
	"companion/internal/wizard"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Pinger{}
	var walletRepo domain.WalletRepository
	if cfg.LedgerDriver == "memory" {
		logger.Warn().Msg("using in-memory ledger; balances are lost on restart")
		walletRepo = ledger.NewMemoryStore()
	} else {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		if err := infra.EnsureWalletSchema(ctx, dbpool); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare wallet schema")
		}
		walletRepo = repo.NewWalletRepository(infra.NewSQLRunner(dbpool, logger))
		checks["postgres"] = dbpool.Ping
	}

	mongoClient, mongoDB, err := infra.NewMongo(ctx, cfg.MongoURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mongo")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	companions, err := repo.NewCompanionRepository(ctx, mongoDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare companion collection")
	}
	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open object store")
	}

	endpoints, err := newEndpoints(cfg.Generation, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image provider")
	}

	sessions := wizard.NewStore()
	m := metrics.New(sessions.Len)

	wallets := ledger.New(walletRepo, cfg.StartingCoins, logger)
	orchestrator, err := imagegen.New(imagegen.Options{
		Endpoints:   endpoints,
		Ledger:      wallets,
		Retry:       imagegen.RetryPolicy{MaxAttempts: cfg.Generation.MaxAttempts, Delay: cfg.Generation.RetryDelay},
		FaceTimeout: cfg.Generation.FaceTimeout,
		BodyTimeout: cfg.Generation.BodyTimeout,
		Metrics:     m,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	catalog := domain.DefaultCatalog()
	saver, err := companion.NewService(companion.Options{
		Repo:    companions,
		Store:   objects,
		Loader:  storage.NewFetcher(infra.NewHTTPClient(30*time.Second), cfg.Storage.SourceAllowlist),
		Catalog: catalog,
		Metrics: m,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build companion service")
	}
	wiz := wizard.NewService(sessions, catalog, orchestrator, saver, logger)

	tokens := middleware.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	checks["mongo"] = func(ctx context.Context) error {
		return mongoClient.Ping(ctx, readpref.Primary())
	}
	app := &handlers.App{
		Logger:     infra.Component(logger, "http"),
		Verifier:   google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID, infra.NewHTTPClient(10*time.Second)),
		Tokens:     tokens,
		Wallets:    wallets,
		Generator:  orchestrator,
		Companions: saver,
		Wizard:     wiz,
		Catalog:    catalog,
		Checks:     checks,
	}

	deps := httpapi.Deps{
		App:                app,
		Tokens:             tokens,
		Logger:             logger,
		Metrics:            m.Handler(),
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMin:    cfg.RateLimitPerMin,
		DefaultLocale:      cfg.DefaultLocale,
		GenerationDeadline: cfg.Generation.ResponseDeadline(),
	}
	if fs, ok := objects.(*storage.FileStore); ok {
		deps.Static = fs.Handler()
	}

	go pruneSessions(ctx, wiz, cfg.WizardIdleTimeout, logger)

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(deps), logger)
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}

func newEndpoints(cfg infra.GenerationConfig, logger *infra.Logger) (image.Endpoints, error) {
	client := infra.NewHTTPClient(cfg.BodyTimeout + 30*time.Second)
	switch cfg.Provider {
	case "replicate":
		rep, err := image.NewReplicate(image.ReplicateOptions{
			BaseURL:      cfg.ReplicateBaseURL,
			APIToken:     cfg.ReplicateAPIToken,
			Model:        cfg.ReplicateModel,
			PollInterval: cfg.PollInterval,
			HTTPClient:   client,
			Logger:       logger,
		})
		if err != nil {
			return image.Endpoints{}, err
		}
		return image.Endpoints{Face: rep, Body: rep}, nil
	default:
		face, err := image.NewFirebaseCallable(image.FirebaseOptions{URL: cfg.FaceEndpointURL, HTTPClient: client, Logger: logger})
		if err != nil {
			return image.Endpoints{}, err
		}
		body, err := image.NewFirebaseCallable(image.FirebaseOptions{URL: cfg.BodyEndpointURL, HTTPClient: client, Logger: logger})
		if err != nil {
			return image.Endpoints{}, err
		}
		return image.Endpoints{Face: face, Body: body}, nil
	}
}

func pruneSessions(ctx context.Context, wiz *wizard.Service, idle time.Duration, logger infra.Logger) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := wiz.Prune(idle); n > 0 {
				logger.Debug().Int("pruned", n).Msg("wizard sessions pruned")
			}
		}
	}
}
