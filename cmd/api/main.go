package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"zarigaas/internal/adapter/api"
	"zarigaas/internal/adapter/api/handler"
	apimiddleware "zarigaas/internal/adapter/api/middleware"
	"zarigaas/internal/adapter/api/router"
	"zarigaas/internal/adapter/repository"
	domainrepo "zarigaas/internal/domain/repository"
	"zarigaas/internal/infrastructure/firebase"
	"zarigaas/internal/infrastructure/ratelimit"
	"zarigaas/internal/infrastructure/websocket"
	"zarigaas/internal/notification"
	"zarigaas/internal/realtime"
	"zarigaas/internal/usecase"
	"zarigaas/pkg/config"
	"zarigaas/pkg/logger"
	"zarigaas/pkg/response"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Logger()); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, authClient, closeStore := openStore(ctx, cfg)
	defer closeStore()

	verifier, err := firebase.NewVerifier(authClient, cfg.AuthMode)
	if err != nil {
		logger.Fatal("Failed to initialize token verification: %v", err)
	}

	manager := realtime.NewManager(store, realtime.NewTracker())
	defer manager.Close()
	service := realtime.NewService(manager)
	if err := service.Start(ctx); err != nil {
		logger.Fatal("Failed to start sync service: %v", err)
	}
	defer service.Close()

	limiter := ratelimit.NewRateLimiter(ratelimit.DefaultPolicies(cfg.MessageRatePerMinute, cfg.PitchRatePerHour))
	coordinator := usecase.NewWriteCoordinator(store, limiter,
		usecase.WithWriteTimeout(cfg.WriteTimeout()),
		usecase.WithConfirmationTTL(cfg.ConfirmationTTL()),
	)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)
	bridge := websocket.NewBridge(service, wsManager)
	defer bridge.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(echomiddleware.CORS())
	}
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = response.ErrorHandler

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier, coordinator)
	router.Setup(e, router.Handlers{
		Product:   handler.NewProductHandler(service, coordinator),
		Pitch:     handler.NewPitchHandler(service, coordinator),
		Message:   handler.NewMessageHandler(service, coordinator),
		Admin:     handler.NewAdminHandler(service, coordinator),
		Session:   handler.NewSessionHandler(coordinator),
		Health:    handler.NewHealthHandler(service),
		WebSocket: handler.NewWebSocketHandler(wsManager, websocket.NewHandler(wsManager, coordinator), cfg.AllowedOrigins),
	}, authMiddleware, limiter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server on port %s (%s store)", cfg.ServerPort, cfg.StoreDriver)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server")
		return e.Shutdown(shutdownCtx)
	})
	limiter.StartCleanupRoutine(gctx, 10*time.Minute)
	if cfg.NotifyEnabled {
		notifier, err := notification.NewNotifier(manager, store, mailer(cfg), cfg.NotifyCollection, cfg.WebsiteURL)
		if err != nil {
			logger.Fatal("Failed to configure notifications: %v", err)
		}
		g.Go(func() error { return notifier.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// openStore connects the configured document store. The Firebase auth
// client is returned whenever credentials are available.
func openStore(ctx context.Context, cfg *config.Config) (domainrepo.DocumentStore, *auth.Client, func()) {
	var authClient *auth.Client
	opt, haveCredentials := credentials(cfg)
	if haveCredentials {
		app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase: %v", err)
		}
		authClient, err = app.Auth(ctx)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase Auth: %v", err)
		}
	}

	switch cfg.StoreDriver {
	case "firestore":
		if !haveCredentials {
			logger.Fatal("Firestore driver needs FIREBASE_SERVICE_ACCOUNT_JSON or a service account file")
		}
		client, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			logger.Fatal("Failed to create Firestore client: %v", err)
		}
		return repository.NewFirestoreStore(client, cfg.SubscribeRetry()), authClient, func() { client.Close() }
	case "mongo":
		store, err := repository.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.SubscribeRetry())
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB: %v", err)
		}
		return store, authClient, func() { store.Close() }
	default:
		logger.Warn("Using the in-memory store; data is lost on restart")
		store := repository.NewMemoryStore()
		return store, authClient, func() { store.Close() }
	}
}

func credentials(cfg *config.Config) (option.ClientOption, bool) {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON)), true
	}
	if _, err := os.Stat(cfg.FirebaseServiceAccountPath); err == nil {
		logger.Info("Using Firebase service account from file: %s", cfg.FirebaseServiceAccountPath)
		return option.WithCredentialsFile(cfg.FirebaseServiceAccountPath), true
	}
	return nil, false
}

func mailer(cfg *config.Config) notification.Mailer {
	if cfg.SMTPHost == "" || cfg.SMTPUser == "" {
		return notification.LogMailer{}
	}
	return notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: "Zarigaas",
	})
}
