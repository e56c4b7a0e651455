package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ManagerConfig configures a memory Manager.
type ManagerConfig struct {
	Workspace    string // root directory holding MEMORY.md, memory/, sessions/
	DBPath       string // sqlite index location (default <workspace>/memory.db)
	ChunkChars   int
	ChunkOverlap int
	Hybrid       HybridSearchConfig
}

// DefaultManagerConfig returns a config rooted at the given workspace.
func DefaultManagerConfig(workspace string) ManagerConfig {
	return ManagerConfig{
		Workspace:    workspace,
		DBPath:       filepath.Join(workspace, "memory.db"),
		ChunkChars:   DefaultChunkChars,
		ChunkOverlap: DefaultChunkOverlap,
		Hybrid:       DefaultHybridConfig(),
	}
}

// Manager fronts the index store, chunker and embedding backend.
// Index mutation is serialized by a single mutex; searches may run
// concurrently with an in-progress re-index.
type Manager struct {
	cfg    ManagerConfig
	store  *SQLiteStore
	tracer trace.Tracer

	providerMu sync.RWMutex
	provider   EmbeddingProvider

	indexMu sync.Mutex
}

// NewManager opens the index store for a workspace.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("memory: workspace is required")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.Workspace, "memory.db")
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = DefaultChunkChars
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Hybrid.VectorWeight == 0 && cfg.Hybrid.TextWeight == 0 {
		cfg.Hybrid = DefaultHybridConfig()
	}

	store, err := NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:    cfg,
		store:  store,
		tracer: otel.Tracer("recall/memory"),
	}, nil
}

// SetEmbeddingProvider installs (or replaces) the embedding backend.
// Passing nil switches to text-only retrieval.
func (m *Manager) SetEmbeddingProvider(p EmbeddingProvider) {
	m.providerMu.Lock()
	m.provider = p
	m.providerMu.Unlock()
}

// Provider returns the current embedding backend, or nil.
func (m *Manager) Provider() EmbeddingProvider {
	m.providerMu.RLock()
	defer m.providerMu.RUnlock()
	return m.provider
}

// Search runs a hybrid (FTS + vector) query over the index.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := m.tracer.Start(ctx, "memory.search")
	defer span.End()

	results, err := HybridSearch(ctx, m.store, m.Provider(), query, opts, m.cfg.Hybrid)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// GetFile reads a workspace-relative file, optionally slicing a line
// range: from is the 1-based first line, lines the number of lines.
// from <= 0 and lines <= 0 returns the whole file.
func (m *Manager) GetFile(path string, from, lines int) (string, error) {
	abs, err := m.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	text := string(data)
	if from <= 0 && lines <= 0 {
		return text, nil
	}

	all := strings.Split(text, "\n")
	if from <= 0 {
		from = 1
	}
	if from > len(all) {
		return "", nil
	}
	end := len(all)
	if lines > 0 && from-1+lines < end {
		end = from - 1 + lines
	}
	return strings.Join(all[from-1:end], "\n"), nil
}

// resolve maps a workspace-relative path to an absolute one, rejecting
// escapes above the workspace root.
func (m *Manager) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(m.cfg.Workspace, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("path %s is outside the workspace", path)
		}
		return path, nil
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the workspace", path)
	}
	return filepath.Join(m.cfg.Workspace, clean), nil
}

// ChunkCount returns the number of indexed chunks.
func (m *Manager) ChunkCount() int {
	return m.store.ChunkCount()
}

// FileCount returns the number of indexed files.
func (m *Manager) FileCount() int {
	return m.store.FileCount()
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
