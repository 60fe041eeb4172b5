// Package bootstrap wires configuration into a running application graph.
// Both binaries share it so the API and the worker agree on every
// pipeline parameter.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getclever/docqa-assistant/internal/config"
	"github.com/getclever/docqa-assistant/internal/core/domain"
	"github.com/getclever/docqa-assistant/internal/core/ports"
	"github.com/getclever/docqa-assistant/internal/core/usecase"
	"github.com/getclever/docqa-assistant/internal/infrastructure/chunking"
	"github.com/getclever/docqa-assistant/internal/infrastructure/index/bm25"
	"github.com/getclever/docqa-assistant/internal/infrastructure/llm/ollama"
	"github.com/getclever/docqa-assistant/internal/infrastructure/loader"
	"github.com/getclever/docqa-assistant/internal/infrastructure/queue/nats"
	"github.com/getclever/docqa-assistant/internal/infrastructure/repository/postgres"
	"github.com/getclever/docqa-assistant/internal/infrastructure/resilience"
	"github.com/getclever/docqa-assistant/internal/infrastructure/safety"
	"github.com/getclever/docqa-assistant/internal/infrastructure/vector/qdrant"
	"github.com/getclever/docqa-assistant/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Assistant ports.Assistant
	TurnLog   *postgres.TurnLog

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.New(service, cfg.LogLevel)
	slog.SetDefault(logger)

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialDelay,
		RetryMaxBackoff:     cfg.RetryMaxDelay,
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerMinRequests:  uint32(cfg.BreakerMinRequests),
		BreakerOpenTimeout:  cfg.BreakerOpenFor,
	}, logger)

	llm := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(llm)

	vector := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder, logger, qdrant.Options{
		BatchSize:            cfg.VectorBatchSize,
		BatchInterval:        cfg.VectorBatchPacing,
		DissimilarityCeiling: cfg.DiversifyCeiling,
	})

	chunker := chunking.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	ingestor := usecase.NewIngestor(
		loader.Default(),
		chunker,
		vector,
		func(chunks []domain.Chunk) ports.LexicalIndex { return bm25.Build(chunks) },
		logger,
	)

	retriever := usecase.NewRetriever(vector, logger, cfg.SearchTimeout)

	rules, err := config.LoadRewriteRules(cfg.RewriteRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rewrite rules: %w", err)
	}
	expansions := make([]usecase.ExpansionRule, 0, len(rules.Expansions))
	for _, rule := range rules.Expansions {
		expansions = append(expansions, usecase.ExpansionRule{
			Triggers: rule.Triggers,
			Terms:    rule.Terms,
		})
	}
	rewriter := usecase.NewQueryRewriter(rules.FollowupPhrases, expansions)

	synthesizer := usecase.NewSynthesizer(
		llm,
		safety.NewGuardrail(cfg.MaxQueryChars),
		safety.NewNoAnswerClassifier(),
		logger,
		cfg.PromptBudgetChars,
	)

	var (
		turnLog  *postgres.TurnLog
		turnPort ports.TurnLog
		closeDB  = func() {}
	)
	if cfg.PersistTurns && cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		turnLog = postgres.NewTurnLog(db)
		if err := turnLog.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure turn log schema: %w", err)
		}
		turnPort = turnLog
		closeDB = func() { _ = db.Close() }
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	engine := usecase.NewEngine(
		ingestor,
		retriever,
		rewriter,
		synthesizer,
		turnPort,
		vector,
		logger,
		usecase.EngineConfig{
			TopK:           cfg.TopK,
			SemanticWeight: cfg.SemanticWeight,
			HistoryWindow:  cfg.HistoryWindow,
			HistoryContext: cfg.HistoryContext,
		},
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Assistant: engine,
		TurnLog:   turnLog,
		closeFn: func() {
			queue.Close()
			closeDB()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
