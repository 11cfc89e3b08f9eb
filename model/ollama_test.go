package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req OllamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		if req.Prompt == "bad" {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(OllamaEmbeddingResponse{Embedding: []float64{0.5, -1}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL+"/", "nomic-embed-text", time.Second)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1}, vec)

	_, err = e.Embed(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaEmbedderEmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embedding":[]}`)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "m", time.Second).Embed(context.Background(), "x")
	assert.Error(t, err)
}

func chatServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		for _, l := range lines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	}))
}

func collect(t *testing.T, o *Ollama) ([]string, error) {
	t.Helper()
	var tokens []string
	for tok, err := range o.StreamChat(context.Background(), "llama3.2:3b", []Message{{Role: "user", Content: "hi"}}) {
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func TestStreamChat(t *testing.T) {
	srv := chatServer(t,
		`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
		`{"message":{"role":"assistant","content":"ignored"},"done":false}`,
	)
	defer srv.Close()

	tokens, err := collect(t, NewOllama(srv.URL, time.Second, time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, tokens)
}

func TestStreamChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	tokens, err := collect(t, NewOllama(srv.URL, time.Second, time.Second))
	assert.Empty(t, tokens)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestStreamChatMidStreamError(t *testing.T) {
	srv := chatServer(t,
		`{"message":{"content":"partial"}}`,
		`{"error":"model crashed"}`,
	)
	defer srv.Close()

	tokens, err := collect(t, NewOllama(srv.URL, time.Second, time.Second))
	assert.Equal(t, []string{"partial"}, tokens)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestStreamChatConsumerStops(t *testing.T) {
	srv := chatServer(t,
		`{"message":{"content":"a"}}`,
		`{"message":{"content":"b"}}`,
		`{"message":{"content":"c"}}`,
	)
	defer srv.Close()

	var got []string
	for tok, err := range NewOllama(srv.URL, time.Second, time.Second).StreamChat(context.Background(), "m", nil) {
		require.NoError(t, err)
		got = append(got, tok)
		break
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestStreamChatUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := collect(t, NewOllama(url, time.Second, time.Second))
	assert.Error(t, err)
}

func TestModelsAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:1b"},{"name":"all-minilm:latest"}]}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, time.Second, time.Second)
	assert.True(t, o.Health(context.Background()))

	models, err := o.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 2)

	status, err := o.RequiredModelsStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, "llama3.2:1b", status.InstalledLLM)
	assert.Equal(t, "all-minilm:latest", status.InstalledEmbedding)
	assert.Equal(t, RecommendedLLM, status.RecommendedLLM)
}

func TestModelStatusMissingEmbedding(t *testing.T) {
	status := modelStatus([]string{"mistral:7b"})
	assert.True(t, status.HasLLM)
	assert.False(t, status.HasEmbedding)
	assert.False(t, status.Ready)
}

func TestHealthDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	assert.False(t, NewOllama(url, time.Second, time.Second).Health(context.Background()))
}

func TestPullModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pull", r.URL.Path)
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"downloading","total":100,"completed":40}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	var statuses []string
	for p, err := range NewOllama(srv.URL, time.Second, time.Second).PullModel(context.Background(), "phi3:mini") {
		require.NoError(t, err)
		statuses = append(statuses, p.Status)
	}
	assert.Equal(t, []string{"pulling manifest", "downloading", "success"}, statuses)
}
