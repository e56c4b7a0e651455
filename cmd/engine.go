package cmd

import (
	"fmt"

	"github.com/nextlevelbuilder/recall/internal/config"
	"github.com/nextlevelbuilder/recall/internal/convo"
	"github.com/nextlevelbuilder/recall/internal/embeddings"
	"github.com/nextlevelbuilder/recall/internal/memory"
	"github.com/nextlevelbuilder/recall/internal/prompt"
	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/store/file"
	"github.com/nextlevelbuilder/recall/internal/store/pg"
	"github.com/nextlevelbuilder/recall/internal/summarize"
)

// engine bundles the wired components a command needs.
type engine struct {
	cfg     *config.Config
	mgr     *memory.Manager
	logs    *convo.Store
	backend *embeddings.Backend
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("loading config: %v", err)
	}
	return cfg
}

// openEngine wires the manager, transcript store and embedding backend
// from config. Callers must Close it.
func openEngine() *engine {
	cfg := loadConfig()

	mgr, err := memory.NewManager(memory.ManagerConfig{
		Workspace:    cfg.Workspace,
		DBPath:       cfg.Memory.DBPath,
		ChunkChars:   cfg.Memory.ChunkChars,
		ChunkOverlap: cfg.Memory.ChunkOverlap,
		Hybrid: memory.HybridSearchConfig{
			VectorWeight: cfg.Memory.VectorWeight,
			TextWeight:   cfg.Memory.TextWeight,
			HalfLifeDays: cfg.Memory.HalfLifeDays,
		},
	})
	if err != nil {
		fatalf("opening memory index: %v", err)
	}

	e := &engine{
		cfg:  cfg,
		mgr:  mgr,
		logs: convo.NewStore(cfg.Workspace),
	}

	if backend := newEmbeddingBackend(cfg); backend != nil {
		e.backend = backend
		mgr.SetEmbeddingProvider(backend)
	}

	return e
}

func (e *engine) Close() {
	if e.mgr != nil {
		e.mgr.Close()
	}
}

// newEmbeddingBackend builds the lazy embedding backend, or nil when
// embeddings are disabled (retrieval then runs text-only).
func newEmbeddingBackend(cfg *config.Config) *embeddings.Backend {
	switch cfg.Embeddings.Provider {
	case "":
		return nil
	case "openai":
		model := cfg.Embeddings.Model
		if model == "" {
			model = embeddings.DefaultEmbeddingModel
		}
		return embeddings.NewBackend("openai", model, func() (embeddings.Provider, error) {
			return embeddings.NewOpenAI(embeddings.OpenAIConfig{
				APIKey:            cfg.Embeddings.APIKey,
				BaseURL:           cfg.Embeddings.BaseURL,
				Model:             model,
				RequestsPerMinute: cfg.Embeddings.RequestsPerMinute,
			})
		})
	default:
		fatalf("unknown embeddings provider: %s", cfg.Embeddings.Provider)
		return nil
	}
}

// newSummarizer builds the compaction summarizer from config.
func newSummarizer(cfg *config.Config) (summarize.Summarizer, error) {
	switch cfg.Summarizer.Provider {
	case "", "openai":
		return summarize.NewOpenAI(summarize.OpenAIConfig{
			APIKey:  cfg.Summarizer.APIKey,
			BaseURL: cfg.Summarizer.BaseURL,
			Model:   cfg.Summarizer.Model,
		})
	default:
		return nil, fmt.Errorf("unknown summarizer provider: %s", cfg.Summarizer.Provider)
	}
}

// openMemoryStore returns the document store: Postgres when a DSN is
// configured (managed mode), the workspace file store otherwise.
func (e *engine) openMemoryStore() (store.MemoryStore, error) {
	if e.cfg.Postgres.DSN != "" {
		db, err := pg.OpenDB(e.cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		pgCfg := pg.DefaultPGMemoryConfig()
		pgCfg.ChunkChars = e.cfg.Memory.ChunkChars
		pgCfg.ChunkOverlap = e.cfg.Memory.ChunkOverlap
		pgCfg.MaxResults = e.cfg.Memory.MaxResults
		pgCfg.VectorWeight = e.cfg.Memory.VectorWeight
		pgCfg.TextWeight = e.cfg.Memory.TextWeight
		pgCfg.HalfLifeDays = e.cfg.Memory.HalfLifeDays
		ms, err := pg.NewPGMemoryStore(db, pgCfg)
		if err != nil {
			return nil, err
		}
		if e.backend != nil {
			ms.SetEmbeddingProvider(e.backend)
		}
		return ms, nil
	}
	return file.NewFileMemoryStore(e.mgr, e.logs), nil
}

// newContextBuilder wires the prompt builder from config.
func (e *engine) newContextBuilder() *prompt.Builder {
	return prompt.NewBuilder(e.mgr, e.logs, prompt.BuilderConfig{
		TokenBudget:    e.cfg.Context.TokenBudget,
		RecentMessages: e.cfg.Context.RecentMessages,
		MessageCharCap: e.cfg.Context.MessageCharCap,
		SearchFloor:    e.cfg.Context.SearchFloor,
		SearchResults:  e.cfg.Context.SearchResults,
		MinScore:       e.cfg.Memory.MinScore,
	})
}
