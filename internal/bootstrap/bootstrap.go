package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"paylink-server-go/internal/domain/account"
	domainauth "paylink-server-go/internal/domain/auth"
	"paylink-server-go/internal/domain/audit"
	"paylink-server-go/internal/domain/eventbus"
	"paylink-server-go/internal/domain/payment"
	"paylink-server-go/internal/domain/payment/coinbase"
	"paylink-server-go/internal/domain/token"
	"paylink-server-go/internal/domain/token/registry"
	platformconfig "paylink-server-go/internal/platform/config"
	platformerrors "paylink-server-go/internal/platform/errors"
	platformlogging "paylink-server-go/internal/platform/logging"
	platformstorage "paylink-server-go/internal/platform/storage"
	httptransport "paylink-server-go/internal/transport/http"
	httpauthapi "paylink-server-go/internal/transport/http/authapi"
	httppaymentapi "paylink-server-go/internal/transport/http/paymentapi"
	wstransport "paylink-server-go/internal/transport/ws"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID      string
	Title   string
	Kind    platformerrors.Kind
	Execute stepFn
}

type appState struct {
	config      *platformconfig.Config
	logger      *platformlogging.Logger
	db          *gorm.DB
	bus         *eventbus.Bus
	registry    registry.Registry
	accounts    *account.Service
	authManager *domainauth.Manager
	payments    *payment.Service
	recorder    *audit.Recorder
	feed        *wstransport.Feed
}

// Run drives the whole service lifecycle: configuration, dependency
// initialisation, route registration and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, initGraph(), state); err != nil {
		return err
	}

	logger := state.logger
	defer logger.Close()
	defer func() {
		if err := state.authManager.Close(); err != nil {
			logger.ErrorTag("auth", "auth manager did not close cleanly: %v", err)
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("bootstrap", "service stopped")
	return nil
}

func initGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:      "logging:init",
			Title:   "Initialise logging",
			Kind:    platformerrors.KindBootstrap,
			Execute: initLoggingStep,
		},
		{
			ID:      "storage:open-database",
			Title:   "Open database",
			Kind:    platformerrors.KindStorage,
			Execute: openDatabaseStep,
		},
		{
			ID:      "events:init-bus",
			Title:   "Initialise event bus and audit trail",
			Kind:    platformerrors.KindBootstrap,
			Execute: initEventsStep,
		},
		{
			ID:      "auth:init-manager",
			Title:   "Initialise auth manager",
			Kind:    platformerrors.KindBootstrap,
			Execute: initAuthStep,
		},
		{
			ID:      "payments:init-service",
			Title:   "Initialise payment service",
			Kind:    platformerrors.KindBootstrap,
			Execute: initPaymentsStep,
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
	}
	return nil
}

func loadConfigStep(_ context.Context, state *appState) error {
	cfg, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = cfg
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init",
			"failed to initialise logging", err)
	}
	state.logger = logger
	logger.InfoTag("bootstrap", "logging ready [%s]", state.config.Log.Level)
	return nil
}

func openDatabaseStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(state.config.Database.DSN)
	if err != nil {
		return err
	}
	state.db = db
	state.logger.InfoTag("bootstrap", "database ready: %s", state.config.Database.DSN)
	return nil
}

func initEventsStep(_ context.Context, state *appState) error {
	state.bus = eventbus.New()
	state.recorder = audit.NewRecorder(state.db, state.bus, state.logger)
	if err := state.recorder.Start(); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus",
			"failed to start audit recorder", err)
	}
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	cfg := state.config

	accessCodec, err := token.NewCodec(cfg.Auth.AccessSecret, cfg.Auth.AccessTTL.Std())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager",
			"failed to create access token codec", err)
	}
	refreshCodec, err := token.NewCodec(cfg.Auth.RefreshSecret, cfg.Auth.RefreshTTL.Std())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager",
			"failed to create refresh token codec", err)
	}

	reg, err := buildRegistry(cfg, state.logger)
	if err != nil {
		return err
	}
	state.registry = reg

	state.accounts = account.NewService(state.db, state.logger)

	mgr, err := domainauth.NewManager(domainauth.Options{
		AccessCodec:     accessCodec,
		RefreshCodec:    refreshCodec,
		Registry:        reg,
		Credentials:     state.accounts,
		Bus:             state.bus,
		Logger:          state.logger,
		CleanupInterval: cfg.Auth.Registry.Cleanup.Std(),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager",
			"failed to create auth manager", err)
	}
	state.authManager = mgr
	return nil
}

func buildRegistry(cfg *platformconfig.Config, logger *platformlogging.Logger) (registry.Registry, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Auth.Registry.Type))
	regCfg := registry.Config{Driver: driver}

	switch driver {
	case "", registry.DriverMemory:
		regCfg.Driver = registry.DriverMemory
		regCfg.Memory = &registry.MemoryConfig{GCInterval: cfg.Auth.Registry.Cleanup.Std()}
	case registry.DriverRedis:
		if cfg.Auth.Registry.Redis.Addr == "" {
			return nil, platformerrors.New(platformerrors.KindBootstrap, "auth:init-registry",
				"redis registry requires an address")
		}
		regCfg.Redis = &registry.RedisConfig{
			Addr:     cfg.Auth.Registry.Redis.Addr,
			Username: cfg.Auth.Registry.Redis.Username,
			Password: cfg.Auth.Registry.Redis.Password,
			DB:       cfg.Auth.Registry.Redis.DB,
			Prefix:   cfg.Auth.Registry.Redis.Prefix,
		}
	default:
		logger.WarnTag("auth", "unsupported registry driver %q, falling back to memory", driver)
		regCfg.Driver = registry.DriverMemory
		regCfg.Memory = &registry.MemoryConfig{GCInterval: cfg.Auth.Registry.Cleanup.Std()}
	}

	reg, err := registry.New(regCfg)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-registry",
			"failed to create refresh token registry", err)
	}
	return reg, nil
}

func initPaymentsStep(_ context.Context, state *appState) error {
	cfg := state.config

	var charger payment.ChargeCreator
	if cfg.Payments.Coinbase.APIKey != "" {
		client, err := coinbase.NewClient(coinbase.Config{
			APIKey:     cfg.Payments.Coinbase.APIKey,
			BaseURL:    cfg.Payments.Coinbase.BaseURL,
			Timeout:    cfg.Payments.Coinbase.Timeout.Std(),
			MaxRetries: cfg.Payments.Coinbase.MaxRetries,
			ChargeName: cfg.Payments.Coinbase.ChargeName,
		}, state.logger)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "payments:init-service",
				"failed to create coinbase client", err)
		}
		charger = client
	} else {
		state.logger.WarnTag("payment", "no processor api key configured, charge creation disabled")
	}

	state.payments = payment.NewService(state.db, charger, state.bus, state.logger)
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	cfg := state.config
	logger := state.logger

	router, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		Logger:         logger,
		AuthMiddleware: httptransport.BearerAuth(state.authManager, logger),
	})
	if err != nil {
		return err
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		if cfg.Web.Enabled {
			c.File(cfg.Web.StaticDir + "/index.html")
			return
		}
		c.Status(http.StatusNotFound)
	})

	authService, err := httpauthapi.NewService(state.accounts, state.authManager, logger)
	if err != nil {
		return err
	}
	paymentService, err := httppaymentapi.NewService(state.payments, state.accounts, logger)
	if err != nil {
		return err
	}
	feed, err := wstransport.NewFeed(state.authManager, state.bus, logger)
	if err != nil {
		return err
	}
	state.feed = feed

	if err := authService.Register(groupCtx, router); err != nil {
		return err
	}
	if err := paymentService.Register(groupCtx, router); err != nil {
		return err
	}
	if err := feed.Register(groupCtx, router.Engine); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.IP + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "server listening on %s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			_ = state.feed.Close()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("bootstrap", "shutdown signal received, cleaning up")

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("bootstrap", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("bootstrap", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("bootstrap", "shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
	return nil
}
