package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/dentastore/api/internal/handlers"
	"github.com/dentastore/api/internal/notifications"
	"github.com/dentastore/api/internal/payments"
	"github.com/dentastore/api/internal/platform/auth"
	"github.com/dentastore/api/internal/platform/config"
	pfirestore "github.com/dentastore/api/internal/platform/firestore"
	"github.com/dentastore/api/internal/platform/observability"
	firestoreRepo "github.com/dentastore/api/internal/repositories/firestore"
	"github.com/dentastore/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	serviceLogger := observability.ServiceLogger()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider, productRepo)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	addressRepo, err := firestoreRepo.NewAddressRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise address repository", zap.Error(err))
	}

	var notifier services.Notifier
	var pubsubClient *pubsub.Client
	if topic := strings.TrimSpace(cfg.Notifications.Topic); topic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		notifier, err = notifications.NewPubSubNotifier(pubsubClient.Topic(topic))
		if err != nil {
			logger.Fatal("failed to initialise notifier", zap.Error(err))
		}
	} else {
		logger.Warn("notifications topic not configured; notifications disabled")
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        payments.Logger(serviceLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	stockService, err := services.NewStockService(services.StockServiceDeps{
		Products: productRepo,
		Logger:   serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise stock service", zap.Error(err))
	}
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    orderRepo,
		Products:  productRepo,
		Carts:     cartRepo,
		Addresses: addressRepo,
		Stock:     stockService,
		Notifier:  notifier,
		Currency:  cfg.Checkout.Currency,
		Logger:    serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}
	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:   orderRepo,
		Provider: stripeProvider,
		URLs: services.CheckoutURLs{
			Success: cfg.Checkout.SuccessURL,
			Cancel:  cfg.Checkout.CancelURL,
		},
		Logger: serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}
	webhookService, err := services.NewWebhookService(services.WebhookServiceDeps{
		Provider: stripeProvider,
		Orders:   orderService,
		Logger:   serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise webhook service", zap.Error(err))
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService, checkoutService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	webhookHandlers := handlers.NewWebhookHandlers(webhookService, serviceLogger)
	healthHandlers := handlers.NewHealthHandlers(func(ctx context.Context) error {
		_, err := firestoreProvider.Client(ctx)
		return err
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("dentastore api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
