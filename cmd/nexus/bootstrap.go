package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oriane-labs/hearth/internal/agent"
	agentctx "github.com/oriane-labs/hearth/internal/agent/context"
	"github.com/oriane-labs/hearth/internal/agent/providers"
	"github.com/oriane-labs/hearth/internal/auth"
	"github.com/oriane-labs/hearth/internal/config"
	croncore "github.com/oriane-labs/hearth/internal/cron"
	"github.com/oriane-labs/hearth/internal/memory"
	"github.com/oriane-labs/hearth/internal/memory/embeddings"
	"github.com/oriane-labs/hearth/internal/memory/embeddings/ollama"
	"github.com/oriane-labs/hearth/internal/memory/embeddings/openai"
	ragcontext "github.com/oriane-labs/hearth/internal/rag/context"
	"github.com/oriane-labs/hearth/internal/rag/index"
	"github.com/oriane-labs/hearth/internal/rag/store"
	"github.com/oriane-labs/hearth/internal/rag/store/pgvector"
	"github.com/oriane-labs/hearth/internal/sessions"
	"github.com/oriane-labs/hearth/internal/tasks"
	crontool "github.com/oriane-labs/hearth/internal/tools/cron"
	"github.com/oriane-labs/hearth/internal/tools/homeassistant"
	"github.com/oriane-labs/hearth/internal/tools/memorysearch"
	ragtools "github.com/oriane-labs/hearth/internal/tools/rag"
	"github.com/oriane-labs/hearth/internal/tools/reminders"
	"github.com/oriane-labs/hearth/internal/tools/vectormemory"
	"github.com/oriane-labs/hearth/internal/wsapi"
)

// kernel holds every long-lived component built at startup, wired together
// by runServe and torn down on shutdown.
type kernel struct {
	sessions    sessions.Store
	memory      *memory.Manager
	ragIndex    *index.Manager
	ragInjector *ragcontext.Injector
	scheduler   *croncore.Scheduler
	tasks       tasks.Store
	taskSched   *tasks.Scheduler
	loops       map[string]*agent.AgenticLoop
	auth        *auth.Service
	ws          *wsapi.Server
}

// buildKernel constructs the agent orchestration kernel: session storage,
// vector memory, the RAG index, the canonical tool registry, one
// AgenticLoop per configured LLM provider, the scheduler, and the
// WebSocket control plane sitting on top of all of it.
func buildKernel(cfg *config.Config, logger *slog.Logger) (*kernel, error) {
	k := &kernel{}

	sessionStore, err := buildSessionStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("build session store: %w", err)
	}
	k.sessions = sessionStore

	memManager, err := memory.NewManager(&cfg.VectorMemory)
	if err != nil {
		return nil, fmt.Errorf("build memory manager: %w", err)
	}
	k.memory = memManager

	ragIdx, ragInjector, err := buildRAG(cfg)
	if err != nil {
		logger.Warn("RAG index unavailable, continuing without chunk retrieval", "error", err)
	} else {
		k.ragIndex = ragIdx
		k.ragInjector = ragInjector
	}

	scheduler, err := croncore.NewScheduler(cfg.Scheduler, croncore.WithLogger(logger.With("component", "scheduler")))
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	k.scheduler = scheduler

	haClient, err := buildHomeAssistant(cfg)
	if err != nil {
		logger.Warn("home assistant client unavailable, automation/dashboard tools disabled", "error", err)
	}

	taskStore, taskSched, err := buildTaskScheduler(cfg, logger)
	if err != nil {
		logger.Warn("reminder scheduler unavailable, reminder tools disabled", "error", err)
	} else {
		k.tasks = taskStore
		k.taskSched = taskSched
	}

	blockBuilder := ragcontext.NewBlockBuilder(k.ragInjector, memManager, nil, ragcontext.DefaultBlockConfig())

	loops, err := buildLoops(cfg, k.sessions, k.memory, k.ragIndex, haClient, k.tasks, scheduler, blockBuilder, logger)
	if err != nil {
		return nil, fmt.Errorf("build agent loops: %w", err)
	}
	k.loops = loops

	authSvc := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     apiKeysFromConfig(cfg.Auth.APIKeys),
	})
	k.auth = authSvc

	k.ws = wsapi.NewServer(wsapi.Config{
		Loops:          loops,
		DefaultProv:    cfg.LLM.DefaultProvider,
		Sessions:       k.sessions,
		MemoryManager:  k.memory,
		RAGIndex:       k.ragIndex,
		RAGInjector:    k.ragInjector,
		Scheduler:      k.scheduler,
		Auth:           authSvc,
		DefaultAgentID: cfg.Session.DefaultAgentID,
		Preferences: wsapi.Preferences{
			AgentName:       cfg.Preferences.AgentName,
			UserName:        cfg.Preferences.UserName,
			Language:        cfg.Preferences.Language,
			DefaultProvider: cfg.LLM.DefaultProvider,
			DefaultModel:    defaultModelFor(cfg),
			Theme:           cfg.Preferences.Theme,
		},
		Logger: logger,
	})

	return k, nil
}

// Start brings up background components that run their own goroutines:
// the cron scheduler and, when a reminder store was built, its scheduler.
func (k *kernel) Start(ctx context.Context) error {
	if err := k.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if k.taskSched != nil {
		if err := k.taskSched.Start(ctx); err != nil {
			return fmt.Errorf("start reminder scheduler: %w", err)
		}
	}
	return nil
}

func (k *kernel) Stop(ctx context.Context) error {
	if k.taskSched != nil {
		_ = k.taskSched.Stop(ctx)
	}
	return k.scheduler.Stop(ctx)
}

func buildSessionStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.Database.URL == "" {
		return sessions.NewMemoryStore(), nil
	}
	dbCfg := sessions.DefaultCockroachConfig()
	if cfg.Database.MaxConnections > 0 {
		dbCfg.MaxOpenConns = cfg.Database.MaxConnections
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		dbCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return sessions.NewCockroachStoreFromDSN(cfg.Database.URL, dbCfg)
}

func buildRAG(cfg *config.Config) (*index.Manager, *ragcontext.Injector, error) {
	if !cfg.RAG.Enabled {
		return nil, nil, fmt.Errorf("RAG disabled in config")
	}
	if cfg.RAG.Store.Backend != "postgres" {
		return nil, nil, fmt.Errorf("RAG store backend %q requires pgvector", cfg.RAG.Store.Backend)
	}

	dsn := cfg.RAG.Store.DSN
	if cfg.RAG.Store.UseDatabaseURL {
		dsn = cfg.Database.URL
	}
	docStore, err := pgvector.New(pgvector.Config{
		DSN:           dsn,
		Dimension:     cfg.RAG.Store.Dimension,
		RunMigrations: cfg.RAG.Store.RunMigrations,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open rag document store: %w", err)
	}
	var ds store.DocumentStore = docStore

	embedder, err := buildEmbedder(cfg.RAG.Embeddings)
	if err != nil {
		return nil, nil, fmt.Errorf("build embedder: %w", err)
	}

	mgr := index.NewManager(ds, embedder, &index.Config{
		ChunkSize:    cfg.RAG.Chunking.ChunkSize,
		ChunkOverlap: cfg.RAG.Chunking.ChunkOverlap,
	})

	injector := ragcontext.NewInjector(mgr, &ragcontext.InjectorConfig{
		MaxChunks: cfg.RAG.ContextInjection.MaxChunks,
		MaxTokens: cfg.RAG.ContextInjection.MaxTokens,
		MinScore:  float32(cfg.RAG.ContextInjection.MinScore),
		Scope:     cfg.RAG.ContextInjection.Scope,
	})

	return mgr, injector, nil
}

func buildEmbedder(cfg config.RAGEmbeddingsConfig) (embeddings.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.New(ollama.Config{BaseURL: cfg.BaseURL, Model: cfg.Model})
	case "openai", "":
		return openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}

func buildHomeAssistant(cfg *config.Config) (*homeassistant.Client, error) {
	if cfg.Tools.HomeAssistant.BaseURL == "" {
		return nil, fmt.Errorf("home assistant base_url not configured")
	}
	return homeassistant.NewClient(homeassistant.Config{
		BaseURL: cfg.Tools.HomeAssistant.BaseURL,
		Token:   cfg.Tools.HomeAssistant.Token,
		Timeout: cfg.Tools.HomeAssistant.Timeout,
	})
}

// buildTaskScheduler wires the one-off/reminder scheduling subsystem, a
// second scheduler distinct from the recurring-job croncore.Scheduler:
// tasks.Scheduler drives set_reminder/list_reminders/cancel_reminder.
func buildTaskScheduler(cfg *config.Config, logger *slog.Logger) (tasks.Store, *tasks.Scheduler, error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("reminder scheduler requires a database connection")
	}
	taskStore, err := tasks.NewCockroachStoreFromDSN(cfg.Database.URL, nil)
	if err != nil {
		return nil, nil, err
	}

	noop := &tasks.NoOpExecutor{Response: "reminder fired"}
	executor := tasks.NewRoutingExecutor(noop, noop, logger.With("component", "task-executor"))

	sched := tasks.NewScheduler(taskStore, executor, tasks.SchedulerConfig{})
	return taskStore, sched, nil
}

// buildLoops constructs one AgenticLoop per configured LLM provider, each
// sharing the canonical tool registry and wired for budget-aware history
// packing, RAG-informed context blocks, and compaction monitoring.
func buildLoops(cfg *config.Config, sessionStore sessions.Store, memManager *memory.Manager, ragIdx *index.Manager, haClient *homeassistant.Client, taskStore tasks.Store, scheduler *croncore.Scheduler, blockBuilder *ragcontext.BlockBuilder, logger *slog.Logger) (map[string]*agent.AgenticLoop, error) {
	loops := make(map[string]*agent.AgenticLoop, len(cfg.LLM.Providers))

	packer := agentctx.NewPacker(agentctx.DefaultPackOptions())
	compactor := agent.NewCompactionManager(agent.DefaultCompactionConfig(), packer)

	for name, pcfg := range cfg.LLM.Providers {
		provider, err := buildProvider(name, pcfg, cfg.LLM.Bedrock)
		if err != nil {
			logger.Warn("skipping unconfigured llm provider", "provider", name, "error", err)
			continue
		}

		registry := agent.NewToolRegistry()
		registerCanonicalTools(registry, memManager, ragIdx, haClient, taskStore, scheduler, cfg)

		loop := agent.NewAgenticLoop(provider, registry, sessionStore, &agent.LoopConfig{
			MaxIterations:      cfg.Tools.Execution.MaxIterations,
			MaxToolCalls:       cfg.Tools.Execution.MaxToolCalls,
			EnableBackpressure: true,
			StreamToolResults:  true,
		})
		loop.SetPacker(packer)
		loop.SetContextBlockBuilder(blockBuilder)
		loop.SetCompactor(compactor)
		if pcfg.DefaultModel != "" {
			loop.SetDefaultModel(pcfg.DefaultModel)
		}

		loops[name] = loop
	}

	if len(loops) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	return loops, nil
}

func buildProvider(name string, cfg config.LLMProviderConfig, bedrock config.BedrockConfig) (agent.LLMProvider, error) {
	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	case "openai":
		return providers.NewOpenAIProvider(cfg.APIKey), nil
	case "google", "gemini":
		return providers.NewGoogleProvider(providers.GoogleConfig{APIKey: cfg.APIKey})
	case "openrouter":
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{APIKey: cfg.APIKey, DefaultModel: cfg.DefaultModel})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: cfg.BaseURL, DefaultModel: cfg.DefaultModel}), nil
	case "azure":
		return providers.NewAzureOpenAIProvider(providers.AzureOpenAIConfig{
			Endpoint:     cfg.BaseURL,
			APIKey:       cfg.APIKey,
			APIVersion:   cfg.APIVersion,
			DefaultModel: cfg.DefaultModel,
		})
	case "bedrock":
		return providers.NewBedrockProvider(providers.BedrockConfig{Region: bedrock.Region})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", name)
	}
}

// registerCanonicalTools wires the spec's mandatory tool groups into a
// fresh registry: RAG search/upload/list/delete, vector memory
// remember/recall/forget, memory file search, cron jobs, reminders, and
// the Home Assistant entity/automation/dashboard group when configured.
func registerCanonicalTools(registry *agent.ToolRegistry, memManager *memory.Manager, ragIdx *index.Manager, haClient *homeassistant.Client, taskStore tasks.Store, scheduler *croncore.Scheduler, cfg *config.Config) {
	registry.Register(vectormemory.NewRememberTool(memManager, &cfg.VectorMemory))
	registry.Register(vectormemory.NewRecallTool(memManager, &cfg.VectorMemory))
	registry.Register(vectormemory.NewForgetTool(memManager))

	if cfg.Tools.MemorySearch.Enabled {
		registry.Register(memorysearch.NewMemorySearchTool(&memorysearch.Config{
			MaxResults:    cfg.Tools.MemorySearch.MaxResults,
			MaxSnippetLen: cfg.Tools.MemorySearch.MaxSnippetLen,
		}))
		registry.Register(memorysearch.NewMemoryGetTool(&memorysearch.Config{}))
	}

	if ragIdx != nil {
		registry.Register(ragtools.NewSearchTool(ragIdx, nil))
		registry.Register(ragtools.NewUploadTool(ragIdx, nil))
		registry.Register(ragtools.NewListTool(ragIdx))
		registry.Register(ragtools.NewDeleteTool(ragIdx))
	}

	if scheduler != nil {
		registry.Register(crontool.NewTool(scheduler))
	}

	if taskStore != nil {
		registry.Register(reminders.NewSetTool(taskStore))
		registry.Register(reminders.NewListTool(taskStore))
		registry.Register(reminders.NewCancelTool(taskStore))
	}

	if haClient != nil {
		registry.Register(homeassistant.NewGetStateTool(haClient))
		registry.Register(homeassistant.NewListEntitiesTool(haClient))
		registry.Register(homeassistant.NewCallServiceTool(haClient))
		registry.Register(homeassistant.NewGetHistoryTool(haClient))
		registry.Register(homeassistant.NewCreateAutomationTool(haClient))
		registry.Register(homeassistant.NewListAutomationsTool(haClient))
		registry.Register(homeassistant.NewTriggerAutomationTool(haClient))
		registry.Register(homeassistant.NewCreateDashboardTool(haClient))
	}
}

func apiKeysFromConfig(keys []config.APIKeyConfig) []auth.APIKeyConfig {
	out := make([]auth.APIKeyConfig, 0, len(keys))
	for _, k := range keys {
		out = append(out, auth.APIKeyConfig{Key: k.Key, UserID: k.UserID, Email: k.Email, Name: k.Name})
	}
	return out
}

func defaultModelFor(cfg *config.Config) string {
	if p, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; ok {
		return p.DefaultModel
	}
	return ""
}
