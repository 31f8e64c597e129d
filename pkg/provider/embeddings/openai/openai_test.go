package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeAPI serves the subset of POST /embeddings the provider uses. Items are
// returned in reverse order to prove index-based reassembly.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input any    `json:"input"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []any:
			for _, item := range v {
				inputs = append(inputs, item.(string))
			}
		}

		type item struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, 0, len(inputs))
		for i := len(inputs) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float64{float64(i + 1), 0}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New("", "text-embedding-3-small"); err == nil {
		t.Fatal("New with empty API key succeeded")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.ModelID(); got != string(DefaultModel) {
		t.Fatalf("ModelID() = %q, want %q", got, DefaultModel)
	}
}

func TestEmbed(t *testing.T) {
	t.Parallel()

	srv := fakeAPI(t)
	defer srv.Close()

	p, err := New("sk-test", "text-embedding-3-small", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 1 {
		t.Fatalf("vector = %v, want [1 0]", vec)
	}
}

func TestEmbedBatch_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := fakeAPI(t)
	defer srv.Close()

	p, err := New("sk-test", "text-embedding-3-small", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	// The fake returns items reversed; reassembly must restore input order.
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Errorf("vecs[%d][0] = %v, want %v", i, v[0], i+1)
		}
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "text-embedding-3-small", WithBaseURL("http://unused:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestDimensions(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]int{
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		"future-model":           1536,
	} {
		p, err := New("sk-test", model)
		if err != nil {
			t.Fatalf("New(%q): %v", model, err)
		}
		if got := p.Dimensions(); got != want {
			t.Errorf("Dimensions(%q) = %d, want %d", model, got, want)
		}
	}
}
