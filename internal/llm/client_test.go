package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient("unknown", WithAPIKey("key"))
	require.Error(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	for _, name := range []string{"tongyi", "groq", "openai"} {
		_, err := NewClient(name)
		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr, name)
		assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)
	}
}

func TestTongyiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req TongyiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Input.Messages[0].Content)

		json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": "hi there"}},
				},
			},
			"usage": map[string]int{"total_tokens": 7},
		})
	}))
	defer server.Close()

	client, err := NewClient("tongyi", WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, 7, resp.TokenCount)
}

func TestTongyiRateLimitNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":"Throttling","message":"quota exceeded"}`))
	}))
	defer server.Close()

	client, err := NewClient("tongyi", WithAPIKey("k"), WithBaseURL(server.URL), WithMaxRetries(3))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTongyiRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"output":{"text":"recovered"}}`))
	}))
	defer server.Close()

	client, err := NewClient("tongyi", WithAPIKey("k"), WithBaseURL(server.URL), WithMaxRetries(2))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGroqGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ModelGemma2, req["model"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"gemma2-9b-it",
			"choices":[{"index":0,"message":{"role":"assistant","content":"a summary"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer server.Close()

	client, err := NewClient("groq", WithAPIKey("k"), WithBaseURL(server.URL))
	require.NoError(t, err)
	assert.Equal(t, ModelGemma2, client.Name())

	resp, err := client.Generate(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "a summary", resp.Text)
	assert.Equal(t, 5, resp.TokenCount)
}

func TestGroqRateLimitMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client, err := NewClient("groq", WithAPIKey("k"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "summarize")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}
