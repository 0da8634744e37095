package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingServer(t *testing.T, vectors map[string][]float32, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)

		vec, ok := vectors[req.Input[0]]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"unknown input","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": vec},
			},
		})
	}))
}

func newTestModel(t *testing.T, url string) *OpenAIModel {
	t.Helper()
	m, err := NewOpenAIModel(config.SemanticConfig{
		Enabled: true,
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "text-embedding-3-small",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return m
}

func TestOpenAIModelSimilarity(t *testing.T) {
	var calls int32
	srv := newEmbeddingServer(t, map[string][]float32{
		"cheddar cheese": {1, 0, 0},
		"tofu":           {1, 1, 0},
		"flour":          {0, 0, 1},
	}, &calls)
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	ctx := context.Background()

	sim, err := m.Similarity(ctx, "cheddar cheese", "tofu")
	require.NoError(t, err)
	assert.InDelta(t, 0.7071, sim, 1e-3)

	sim, err = m.Similarity(ctx, "cheddar cheese", "flour")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)

	// cheddar cheese 的向量已被記住
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	sim, err = m.Similarity(ctx, "tofu", "tofu")
	require.NoError(t, err)
	assert.Equal(t, 1.0, sim)
}

func TestOpenAIModelFailureIsExternalServiceError(t *testing.T) {
	var calls int32
	srv := newEmbeddingServer(t, map[string][]float32{"tofu": {1, 0}}, &calls)
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	_, err := m.Similarity(context.Background(), "tofu", "unknown thing")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExternalService)
}

func TestNewOpenAIModelRequiresKey(t *testing.T) {
	_, err := NewOpenAIModel(config.SemanticConfig{Enabled: true})
	assert.Error(t, err)
}
