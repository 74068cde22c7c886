package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/agentlink"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/llm"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/notify"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/storefront"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/warehouse"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/bridge"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/config"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/metrics"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/policy"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pricing"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/repository"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/stages"
	httpserver "github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/transport/http"
	v1 "github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/transport/http/v1"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the run scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			return serve(cfg, rootOpts.listenAddr(cfg))
		},
	}
}

// App is the fully wired service.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *repository.SQLiteStore
	Metrics      *metrics.Metrics
	Bridge       *bridge.Bridge
	Orchestrator *pipeline.Orchestrator
	Scheduler    *pipeline.Scheduler
	Server       *echo.Echo

	socket    *agentlink.Socket
	warehouse *warehouse.Warehouse
	cancel    context.CancelFunc
}

// Build wires every component from cfg. Runs started by the returned app
// are parented to ctx.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	app := &App{Config: cfg, Logger: logger, cancel: cancel}

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	app.Store = db
	app.Metrics = metrics.New()

	// Initialize agent transport
	var transport bridge.Transport
	var socketEndpoint v1.SocketEndpoint
	switch cfg.Agent.Transport {
	case "websocket":
		app.socket = agentlink.NewSocket(agentlink.SocketConfig{}, logger)
		transport = app.socket
		socketEndpoint = app.socket
	default:
		transport = agentlink.NewWebhook(cfg.Agent.WebhookURL, cfg.Agent.APIKey, cfg.Agent.DeliveryTimeout)
	}

	app.Bridge = bridge.New(transport, bridge.Options{
		Timeout:     cfg.Agent.ReplyTimeout,
		Source:      notify.Source,
		ChannelID:   cfg.Agent.ChannelID,
		CallbackURL: cfg.CallbackURL(),
		Logger:      logger,
		Recorder:    app.Metrics,
	})
	if app.socket != nil {
		app.socket.SetResolver(func(req domain.CallbackRequest) {
			app.Bridge.Resolve(req.CorrelationID, req.Result, req.Error)
		})
	}
	if !app.Bridge.Enabled() {
		logger.Warn("agent transport not configured; storefront commands return placeholders")
	}

	proxy := storefront.NewProxy(app.Bridge, logger)
	alerts := storefront.NewAlerts(app.Bridge)

	// Initialize warehouse mirror
	app.warehouse, err = warehouse.Open(ctx, cfg.Warehouse)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	if err := app.warehouse.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to prepare warehouse: %w", err)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	registry := stages.NewRegistry(stages.Deps{
		Catalog:    db,
		Candidates: stages.NewFeedSource(cfg.Sources.TrendFeedURL, cfg.Sources.Timeout),
		Suppliers:  stages.NewCatalogFinder(cfg.Sources.SupplierAPIURL, cfg.Sources.Timeout),
		Pricing:    pricing.NewEngine(cfg.Pricing),
		LLM:        llm.NewLLMClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout),
		LLMConfig:  cfg.LLM,
		Policy:     policyEngine,
		Storefront: proxy,
		Alerts:     alerts,
		Mirror:     app.warehouse,
		Pipeline:   cfg.Pipeline,
		Logger:     logger,
	})

	notifiers := []pipeline.Notifier{alerts}
	if hook := notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyAPIKey, cfg.Agent.DeliveryTimeout, logger); hook.Enabled() {
		notifiers = append(notifiers, hook)
	}

	app.Orchestrator = pipeline.New(db, registry, pipeline.Options{
		DefaultLimits: domain.Limits{
			MaxProducts: cfg.Pipeline.MaxProducts,
			MaxListings: cfg.Pipeline.MaxListings,
			SyncBatch:   cfg.Pipeline.SyncBatch,
		},
		Notifiers:   notifiers,
		Logger:      logger,
		Recorder:    app.Metrics,
		BaseContext: ctx,
	})
	recovered, err := app.Orchestrator.Recover(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	if recovered > 0 {
		logger.Warn("finalized runs interrupted by a previous shutdown", "count", recovered)
	}
	app.Scheduler = pipeline.NewScheduler(app.Orchestrator, domain.RunKindFull, cfg.Pipeline.ScheduleInterval, logger)

	h := v1.NewHandler(app.Orchestrator, app.Bridge, proxy, socketEndpoint, logger)
	app.Server = httpserver.NewServer(h, v1.Auth{
		AdminKey: cfg.AdminAPIKey,
		AgentKey: cfg.Agent.APIKey,
	}, app.Metrics.Handler())

	return app, nil
}

// Shutdown cancels the active run and waits for it to persist its terminal
// state before releasing resources. If ctx expires first the store is left
// open so the run can still be written; Recover finalizes it on next start.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()
	if err := a.Orchestrator.Wait(ctx); err != nil {
		return fmt.Errorf("active run did not stop: %w", err)
	}
	a.Close()
	return nil
}

// Close stops new runs and releases every resource. It does not wait for
// active runs; use Shutdown for that.
func (a *App) Close() {
	a.cancel()
	if a.socket != nil {
		a.socket.Close()
	}
	if a.warehouse != nil {
		a.warehouse.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("failed to close store", "error", err)
		}
	}
}

func serve(cfg *config.Config, addr string) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting pipeline",
		"addr", addr,
		"agent_transport", cfg.Agent.Transport,
		"reply_timeout", cfg.Agent.ReplyTimeout,
		"schedule_interval", cfg.Pipeline.ScheduleInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	go app.Scheduler.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := app.Server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("API started", "addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		app.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("shutting down pipeline")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", "error", err)
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Warn("leaving store open for the active run", "error", err)
	}

	logger.Info("pipeline stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
