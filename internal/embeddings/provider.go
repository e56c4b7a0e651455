// Package embeddings provides the embedding collaborator for the
// retrieval engine: a provider interface, an OpenAI-compatible
// implementation, and a Backend wrapper that lazily initializes the
// provider and degrades permanently to "unavailable" after a load
// failure instead of erroring on every call.
package embeddings

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Provider embeds batches of text into fixed-length float vectors.
type Provider interface {
	Name() string
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrUnavailable is returned once the backend has entered its permanent
// degraded mode. Callers treat it as "no vector support", not a failure.
var ErrUnavailable = errors.New("embeddings: backend unavailable")

// State is the lifecycle state of a Backend.
type State int

const (
	StateNotLoaded State = iota
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "not-loaded"
	}
}

// Factory constructs the underlying provider on first use.
type Factory func() (Provider, error)

// Backend wraps a lazily-constructed Provider. Construction happens on
// the first Embed call; if it fails, the backend flips to Unavailable
// for the life of the process (logged once). Transient Embed errors do
// not disable the backend.
type Backend struct {
	name  string
	model string

	mu       sync.Mutex
	state    State
	factory  Factory
	provider Provider
}

// NewBackend creates a backend in the NotLoaded state.
func NewBackend(name, model string, factory Factory) *Backend {
	return &Backend{name: name, model: model, factory: factory}
}

func (b *Backend) Name() string  { return b.name }
func (b *Backend) Model() string { return b.model }

// State returns the current lifecycle state.
func (b *Backend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Embed loads the provider if needed and embeds the given texts.
func (b *Backend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p, err := b.load()
	if err != nil {
		return nil, err
	}
	return p.Embed(ctx, texts)
}

func (b *Backend) load() (Provider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateReady:
		return b.provider, nil
	case StateUnavailable:
		return nil, ErrUnavailable
	}

	p, err := b.factory()
	if err != nil {
		b.state = StateUnavailable
		slog.Warn("embeddings backend unavailable, retrieval degrades to text-only",
			"name", b.name, "model", b.model, "error", err)
		return nil, ErrUnavailable
	}

	b.state = StateReady
	b.provider = p
	slog.Info("embeddings backend ready", "name", p.Name(), "model", p.Model())
	return p, nil
}
