package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-search/strata/internal/core/domain"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return provider
}

func embeddingsHandler(t *testing.T, dims int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{}
		// Reverse order: the adapter must reorder by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dims)
			vec[0] = float64(i)
			resp.Data = append(resp.Data, struct {
				Embedding []float64 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	provider, err := New(Config{APIKey: "key"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, provider.ModelName())
	assert.Equal(t, 1536, provider.Dimensions())
}

func TestNew_KnownModelDimensions(t *testing.T) {
	provider, err := New(Config{APIKey: "key", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, provider.Dimensions())
}

func TestNew_DimensionOverride(t *testing.T) {
	provider, err := New(Config{APIKey: "key", Dimensions: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, provider.Dimensions())
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	provider := newTestProvider(t, embeddingsHandler(t, 4))

	embeddings, err := provider.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, embeddings, 3)

	// Response arrived in reverse order; output must follow input order.
	assert.Equal(t, float32(0), embeddings[0][0])
	assert.Equal(t, float32(1), embeddings[1][0])
	assert.Equal(t, float32(2), embeddings[2][0])
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})

	embeddings, err := provider.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestEmbedBatch_RateLimited(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestEmbedBatch_ServerErrorIsUnavailable(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestEmbedBatch_ClientErrorIsInvalidInput(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmbedBatch_UnauthorizedIsInvalidInput(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmbedBatch_OutOfRangeIndexRejected(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{1, 2}, "index": 7},
			},
		})
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmbedBatch_ConnectionRefusedIsUnavailable(t *testing.T) {
	provider, err := New(Config{APIKey: "key", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = provider.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestEmbedBatch_CancelledContextPassesThrough(t *testing.T) {
	provider := newTestProvider(t, embeddingsHandler(t, 4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.EmbedBatch(ctx, []string{"text"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestPing(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, provider.Ping(context.Background()))
}

func TestPing_Unauthorized(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	assert.Error(t, provider.Ping(context.Background()))
}
