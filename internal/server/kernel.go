// Package server is the composition root. It creates the concrete stores,
// services and registries from a resolved config.Config and exposes the
// kernel over MCP. No business logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HendryAvila/sage/internal/capabilities"
	"github.com/HendryAvila/sage/internal/config"
	"github.com/HendryAvila/sage/internal/orchestrator"
	"github.com/HendryAvila/sage/internal/reasoning"
	"github.com/HendryAvila/sage/internal/router"
	"github.com/HendryAvila/sage/internal/semantic"
	"github.com/HendryAvila/sage/internal/workmem"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Kernel holds the wired components. Close must be called on shutdown.
type Kernel struct {
	Config       config.Config
	Logger       *zap.Logger
	Working      *workmem.Store
	Memory       *semantic.Memory
	Reasoner     *reasoning.Reasoner
	Registry     *router.Registry
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator

	stopSweeper context.CancelFunc
	sweeperDone <-chan struct{}
}

// Build creates every component from cfg. Optional subsystems that fail to
// initialize (semantic memory, the reasoning service) are logged and left in
// degraded mode; only the working memory backend is fatal.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Kernel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &Kernel{Config: cfg, Logger: logger}

	// --- Working memory ---

	var backend workmem.Backend
	switch cfg.WorkingMemory.Backend {
	case "sqlite":
		b, err := workmem.NewSQLiteBackend(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("server: working memory: %w", err)
		}
		backend = b
	default:
		backend = workmem.NewMapBackend()
	}
	k.Working = workmem.New(backend, cfg.WorkingMemory.TTL, workmem.WithLogger(logger.Named("workmem")))

	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	k.stopSweeper = cancel
	k.sweeperDone = k.Working.StartSweeper(sweepCtx, cfg.WorkingMemory.SweepInterval)

	// --- Semantic memory ---
	//
	// Semantic memory is independent: if the embedder or vector store
	// fails, queries still run without project context.

	k.Memory = buildMemory(cfg, logger.Named("semantic"))

	// --- Reasoning ---

	var service reasoning.Service
	svc, err := reasoning.NewGenAIService(ctx, cfg.Reasoning)
	switch {
	case err == nil:
		service = svc
	case errors.Is(err, reasoning.ErrNotConfigured):
		logger.Info("reasoning service not configured, using rule-based fallback")
	default:
		logger.Warn("reasoning service disabled", zap.Error(err))
	}
	k.Reasoner = reasoning.New(service,
		reasoning.WithLogger(logger.Named("reasoning")),
		reasoning.WithMaxTraceChars(cfg.Reasoning.MaxTraceChars),
		reasoning.WithTimeout(cfg.Reasoning.Timeout),
	)

	// --- Capabilities and routing ---

	k.Registry = router.NewRegistry()
	if err := capabilities.Register(k.Registry, k.Memory); err != nil {
		k.Close()
		return nil, fmt.Errorf("server: register capabilities: %w", err)
	}
	k.Router = router.New(k.Registry,
		router.WithConcurrency(cfg.Router.Concurrency),
		router.WithCallTimeout(cfg.Router.CallTimeout),
		router.WithLogger(logger.Named("router")),
	)

	k.Orchestrator = orchestrator.New(
		orchestrator.WithCategories(cfg.Categories),
		orchestrator.WithWorkingMemory(k.Working),
		orchestrator.WithSemanticMemory(k.Memory),
		orchestrator.WithReasoner(k.Reasoner),
		orchestrator.WithRouter(k.Router),
		orchestrator.WithLogger(logger.Named("orchestrator")),
	)

	logger.Info("kernel ready",
		zap.String("working_memory", cfg.WorkingMemory.Backend),
		zap.Bool("semantic_memory", k.Memory.Ready()),
		zap.Bool("reasoning_service", k.Reasoner.Ready()),
		zap.Int("tools", k.Registry.Len()),
	)
	return k, nil
}

func buildMemory(cfg config.Config, logger *zap.Logger) *semantic.Memory {
	if !cfg.SemanticMemory.Enabled {
		logger.Info("semantic memory disabled by config")
		return semantic.New(cfg.SemanticMemory, nil, nil, semantic.WithLogger(logger))
	}
	embedder, err := semantic.NewEmbedder(cfg.Embedding)
	if err != nil {
		logger.Warn("semantic memory disabled: embedder", zap.Error(err))
		return semantic.New(cfg.SemanticMemory, nil, nil, semantic.WithLogger(logger))
	}
	vectors, err := semantic.NewSQLiteVectors(cfg.DataDir)
	if err != nil {
		logger.Warn("semantic memory disabled: vector store", zap.Error(err))
		return semantic.New(cfg.SemanticMemory, nil, embedder, semantic.WithLogger(logger))
	}
	logger.Info("semantic memory enabled", zap.String("embedder", embedder.Name()))
	return semantic.New(cfg.SemanticMemory, vectors, embedder, semantic.WithLogger(logger))
}

// Close stops the sweeper and releases the stores. It is safe to call more
// than once.
func (k *Kernel) Close() error {
	if k.stopSweeper != nil {
		k.stopSweeper()
		<-k.sweeperDone
	}
	var errs []error
	if k.Memory != nil {
		if err := k.Memory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("semantic memory: %w", err))
		}
	}
	if k.Working != nil {
		if err := k.Working.Close(); err != nil {
			errs = append(errs, fmt.Errorf("working memory: %w", err))
		}
	}
	return errors.Join(errs...)
}
