package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/adforge/internal/agentclient"
	"github.com/ternarybob/adforge/internal/common"
	"github.com/ternarybob/adforge/internal/handlers"
	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/adforge/internal/services/agent"
	"github.com/ternarybob/adforge/internal/services/campaign"
	"github.com/ternarybob/adforge/internal/services/events"
	"github.com/ternarybob/adforge/internal/services/jobwatch"
	"github.com/ternarybob/adforge/internal/services/llm"
	"github.com/ternarybob/adforge/internal/storage"
	"github.com/ternarybob/adforge/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager *badger.Manager

	// Event-driven services
	EventService interfaces.EventService

	// LLM providers (lazy clients, the server starts without keys)
	LLM            *llm.ProviderFactory
	ScriptService  interfaces.ScriptService
	ImageService   interfaces.ImageService
	GeminiReady    bool // an API key was found for the reasoning provider
	ConnectionTest interfaces.ConnectionTester

	// Generation orchestrator (Phase 1 drafting, Phase 2 images)
	Orchestrator *campaign.Orchestrator

	// Agent backend. AgentManager is nil when agent.backend_url points at a remote backend.
	AgentManager *agent.Manager
	AgentClient  *agentclient.Client
	JobService   interfaces.JobService

	// Job watcher
	Reconciler *jobwatch.Reconciler

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	WSHandler       *handlers.WebSocketHandler
	LogForwarder    *handlers.LogForwarder
	CampaignHandler *handlers.CampaignHandler
	SessionHandler  *handlers.SessionHandler
	BackendHandler  *handlers.BackendHandler // nil with a remote backend
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	app.Logger.Info().
		Bool("remote_backend", app.AgentManager == nil).
		Bool("gemini_key", app.GeminiReady).
		Msg("Application initialized")

	return app, nil
}

// initDatabase opens the Badger store holding agent jobs and their logs
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Bool("in_memory", a.Config.Storage.Badger.InMemory).
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices() error {
	// 1. LLM providers
	a.LLM = llm.NewProviderFactory(&a.Config.Gemini, &a.Config.Claude, &a.Config.LLM, a.Logger)
	if _, err := common.ResolveAPIKey("gemini_api_key", a.Config.Gemini.APIKey); err == nil {
		a.GeminiReady = true
		a.ConnectionTest = a.LLM
	} else {
		a.Logger.Warn().Msg("No Gemini API key configured - generation will fail and the agent uses fallback decisions")
	}

	a.ScriptService = llm.NewScriptService(a.LLM, a.LLM.DefaultTextModel(), a.Logger)
	a.ImageService = llm.NewImageService(a.LLM, llm.ImageOptions{
		Model:       a.Config.Gemini.ImageModel,
		AspectRatio: a.Config.Generation.AspectRatio,
		MIMEType:    a.Config.Generation.ImageMIMEType,
		MinInterval: common.ParseDurationOr(a.Config.Gemini.RateLimit, 0),
	}, a.Logger)

	// 2. Generation orchestrator
	a.Orchestrator = campaign.NewOrchestrator(a.ScriptService, a.ImageService, a.EventService, a.Logger, campaign.Options{
		MaxConcurrentImages: a.Config.Generation.MaxConcurrentImages,
	})

	// 3. Agent job backend: remote over HTTP, or in-process
	if a.Config.Agent.BackendURL != "" {
		client, err := agentclient.NewClient(
			a.Config.Agent.BackendURL,
			common.ParseDurationOr(a.Config.Agent.RequestTimeout, 10*time.Second),
			a.Logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create agent backend client: %w", err)
		}
		a.AgentClient = client
		a.JobService = client
		a.Logger.Info().Str("backend_url", a.Config.Agent.BackendURL).Msg("Using remote agent backend")
	} else {
		reasoner := agent.NewAgent(a.LLM, a.Logger, common.ParseDurationOr(a.Config.Agent.StepDelay, time.Second))
		a.AgentManager = agent.NewManager(a.StorageManager.AgentJobStorage(), reasoner, a.EventService, a.Logger, agent.ManagerOptions{
			DatasetPath:     a.Config.Agent.DatasetPath,
			DemoRows:        a.Config.Agent.DemoRows,
			CleanupSchedule: a.Config.Agent.CleanupSchedule,
			JobRetention:    common.ParseDurationOr(a.Config.Agent.JobRetention, time.Hour),
		})
		if err := a.AgentManager.StartCleanup(); err != nil {
			return fmt.Errorf("failed to start job cleanup: %w", err)
		}
		a.JobService = a.AgentManager
	}

	// 4. Job watcher
	a.Reconciler = jobwatch.NewReconciler(
		a.JobService,
		a.EventService,
		a.Logger,
		common.ParseDurationOr(a.Config.Agent.PollInterval, jobwatch.DefaultPollInterval),
	)

	return nil
}

func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.CampaignHandler = handlers.NewCampaignHandler(a.Orchestrator, a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(a.Reconciler, a.Logger)
	if a.AgentManager != nil {
		a.BackendHandler = handlers.NewBackendHandler(a.AgentManager, a.ConnectionTest, a.Logger)
	}

	// WebSocket: initial snapshots on connect, then live updates
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
	a.WSHandler.RegisterSnapshot(handlers.MessageTypeRunSnapshot, func() interface{} {
		return a.Orchestrator.Snapshot()
	})
	a.WSHandler.RegisterSnapshot(handlers.MessageTypeJobSession, func() interface{} {
		return a.Reconciler.Snapshot()
	})
	if err := a.WSHandler.SubscribeToEvents(); err != nil {
		return fmt.Errorf("failed to subscribe websocket to events: %w", err)
	}

	// Job-scoped log lines (loggers derived with WithCorrelationId) go out as "log" messages
	a.LogForwarder = handlers.NewLogForwarder(a.WSHandler, a.Logger, &a.Config.WebSocket)
	a.Logger.SetChannel("context", a.LogForwarder.Channel())
	a.LogForwarder.Start()

	runUpdates, cancelRuns := a.Orchestrator.Subscribe()
	sessionUpdates, cancelSessions := a.Reconciler.Subscribe()
	context.AfterFunc(a.ctx, func() {
		cancelRuns()
		cancelSessions()
	})

	common.SafeGo(a.Logger, "wsRunFeed", func() {
		handlers.ForwardFeed(a.ctx, a.WSHandler, handlers.MessageTypeRunSnapshot, runUpdates)
	})
	common.SafeGo(a.Logger, "wsSessionFeed", func() {
		handlers.ForwardFeed(a.ctx, a.WSHandler, handlers.MessageTypeJobSession, sessionUpdates)
	})

	return nil
}

// Close shuts components down in dependency order: watchers first, storage last
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
	}

	if a.Reconciler != nil {
		if err := a.Reconciler.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close job watcher")
		}
	}

	if a.Orchestrator != nil {
		if err := a.Orchestrator.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close orchestrator")
		}
	}

	if a.AgentManager != nil {
		if err := a.AgentManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close agent manager")
		} else {
			a.Logger.Info().Msg("Agent manager stopped")
		}
	}

	if a.LogForwarder != nil {
		a.LogForwarder.Close()
	}

	if a.WSHandler != nil {
		if err := a.WSHandler.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close websocket handler")
		}
	}

	if a.LLM != nil {
		if err := a.LLM.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM providers")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
