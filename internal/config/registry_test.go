package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stageleft/convoke/internal/config"
	"github.com/stageleft/convoke/pkg/provider/embeddings"
	"github.com/stageleft/convoke/pkg/provider/llm"
)

type stubLLM struct{}

func (*stubLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}

type stubEmbeddings struct{}

func (*stubEmbeddings) Embed(context.Context, string) ([]float32, error) {
	return []float32{0}, nil
}

func (*stubEmbeddings) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0}
	}
	return out, nil
}

func (*stubEmbeddings) Dimensions() int { return 1 }

func (*stubEmbeddings) ModelID() string { return "stub" }

func TestRegistry_UnknownName(t *testing.T) {
	reg := config.NewRegistry()

	t.Run("llm", func(t *testing.T) {
		_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("err = %v, want ErrProviderNotRegistered", err)
		}
	})
	t.Run("embeddings", func(t *testing.T) {
		_, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "nonexistent"})
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("err = %v, want ErrProviderNotRegistered", err)
		}
	})
}

func TestRegistry_CreateReturnsFactoryResult(t *testing.T) {
	reg := config.NewRegistry()

	wantLLM := &stubLLM{}
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) {
		return wantLLM, nil
	})
	wantEmb := &stubEmbeddings{}
	reg.RegisterEmbeddings("stub", func(config.ProviderEntry) (embeddings.Provider, error) {
		return wantEmb, nil
	})

	gotLLM, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotLLM != wantLLM {
		t.Error("CreateLLM returned a different instance than the factory produced")
	}

	gotEmb, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateEmbeddings: %v", err)
	}
	if gotEmb != wantEmb {
		t.Error("CreateEmbeddings returned a different instance than the factory produced")
	}
}

func TestRegistry_FactoryErrorPassesThrough(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want the factory's error", err)
	}
}
