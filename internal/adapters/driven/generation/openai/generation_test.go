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

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := New(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)
	return svc
}

func completion(text string) chatResponse {
	var resp chatResponse
	resp.Choices = append(resp.Choices, struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}{})
	resp.Choices[0].Message.Content = text
	return resp
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestGenerate_RendersContextIntoPrompt(t *testing.T) {
	var got chatRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(completion("  the answer  "))
	})

	chunks := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Type: domain.ChunkSummary, Content: "summary text"}, Score: 0.9},
		{Chunk: domain.Chunk{Type: domain.ChunkCode, Content: "func main() {}"}, Score: 0.7},
	}

	answer, err := svc.Generate(context.Background(), "what does main do", chunks)
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)

	user := got.Messages[1].Content
	assert.Contains(t, user, "[1] (summary)")
	assert.Contains(t, user, "summary text")
	assert.Contains(t, user, "[2] (code)")
	assert.Contains(t, user, "func main() {}")
	assert.Contains(t, user, "Question: what does main do")
}

func TestGenerate_APIErrorSurfaced(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "context length exceeded"},
		})
	})

	_, err := svc.Generate(context.Background(), "query", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestGenerate_NonOKStatus(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("{}"))
	})

	_, err := svc.Generate(context.Background(), "query", nil)
	assert.Error(t, err)
}

func TestGenerate_NoChoices(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	})

	_, err := svc.Generate(context.Background(), "query", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completion")
}
