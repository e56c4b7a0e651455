package embeddings

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	embedErr error
	calls    int
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-model" }

func (s *stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestBackend_LazyLoad(t *testing.T) {
	stub := &stubProvider{}
	factoryCalls := 0
	b := NewBackend("stub", "stub-model", func() (Provider, error) {
		factoryCalls++
		return stub, nil
	})

	if b.State() != StateNotLoaded {
		t.Errorf("initial state = %v", b.State())
	}
	if factoryCalls != 0 {
		t.Error("factory ran before first Embed")
	}

	out, err := b.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("got %d embeddings, want 2", len(out))
	}
	if b.State() != StateReady {
		t.Errorf("state after load = %v", b.State())
	}

	// Provider is constructed once
	b.Embed(context.Background(), []string{"c"})
	if factoryCalls != 1 {
		t.Errorf("factory ran %d times, want 1", factoryCalls)
	}
}

func TestBackend_FactoryFailureIsPermanent(t *testing.T) {
	factoryCalls := 0
	b := NewBackend("stub", "stub-model", func() (Provider, error) {
		factoryCalls++
		return nil, errors.New("no api key")
	})

	if _, err := b.Embed(context.Background(), []string{"a"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if b.State() != StateUnavailable {
		t.Errorf("state = %v, want unavailable", b.State())
	}

	// Subsequent calls fail fast without retrying the factory
	if _, err := b.Embed(context.Background(), []string{"b"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("second err = %v", err)
	}
	if factoryCalls != 1 {
		t.Errorf("factory retried: %d calls", factoryCalls)
	}
}

func TestBackend_TransientEmbedErrorDoesNotDisable(t *testing.T) {
	stub := &stubProvider{embedErr: errors.New("rate limited")}
	b := NewBackend("stub", "stub-model", func() (Provider, error) {
		return stub, nil
	})

	if _, err := b.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected embed error")
	}
	if b.State() != StateReady {
		t.Errorf("state = %v, transient error must not disable the backend", b.State())
	}

	stub.embedErr = nil
	if _, err := b.Embed(context.Background(), []string{"a"}); err != nil {
		t.Errorf("recovered Embed failed: %v", err)
	}
}
