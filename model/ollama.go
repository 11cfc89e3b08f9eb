package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Model families accepted by the setup check; any one installed is enough.
var (
	RequiredLLMs       = []string{"llama3.2:3b", "llama3.2:1b", "mistral:7b", "phi3:mini"}
	RequiredEmbeddings = []string{"nomic-embed-text", "mxbai-embed-large", "all-minilm"}
)

const (
	RecommendedLLM       = "llama3.2:3b"
	RecommendedEmbedding = "nomic-embed-text"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStreamer streams a chat completion token by token.
type ChatStreamer interface {
	StreamChat(ctx context.Context, model string, messages []Message) iter.Seq2[string, error]
}

type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	ModifiedAt time.Time `json:"modified_at"`
}

type ModelStatus struct {
	HasLLM               bool   `json:"has_llm"`
	InstalledLLM         string `json:"installed_llm,omitempty"`
	HasEmbedding         bool   `json:"has_embedding"`
	InstalledEmbedding   string `json:"installed_embedding,omitempty"`
	Ready                bool   `json:"ready"`
	RecommendedLLM       string `json:"recommended_llm"`
	RecommendedEmbedding string `json:"recommended_embedding"`
}

type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatChunk struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

// Ollama talks to the chat, model listing and pull endpoints of a local
// Ollama runtime.
type Ollama struct {
	URL string

	client       *http.Client // short requests
	streamClient *http.Client // chat and pull streams
	logger       *slog.Logger
}

func NewOllama(baseURL string, timeout, streamTimeout time.Duration) *Ollama {
	return &Ollama{
		URL:          strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{Timeout: streamTimeout},
		logger:       slog.Default(),
	}
}

// StreamChat posts messages to /api/chat and yields message.content of every
// streamed line. A transport failure or non-200 status ends the sequence
// with an error; stopping the range loop closes the connection.
func (o *Ollama) StreamChat(ctx context.Context, model string, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		defer func() {
			o.logger.Debug("chat stream finished", "model", model, "took", time.Since(start))
		}()

		reqBody, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
		if err != nil {
			yield("", fmt.Errorf("marshal chat request: %w", err))
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL+"/api/chat", bytes.NewReader(reqBody))
		if err != nil {
			yield("", fmt.Errorf("create chat request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.streamClient.Do(req)
		if err != nil {
			yield("", fmt.Errorf("chat request: %w", err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			yield("", apiError(resp.StatusCode, resp.Body))
			return
		}

		stopped := false
		var streamErr error
		err = decodeStream(resp.Body, func(chunk chatChunk) bool {
			if chunk.Error != "" {
				streamErr = fmt.Errorf("ollama chat: %s", chunk.Error)
				return false
			}
			if chunk.Message.Content != "" && !yield(chunk.Message.Content, nil) {
				stopped = true
				return false
			}
			return !chunk.Done
		})
		if stopped {
			return
		}
		if streamErr == nil {
			streamErr = err
		}
		if streamErr != nil {
			yield("", streamErr)
		}
	}
}

// Health reports whether Ollama answers on /api/tags.
func (o *Ollama) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Warn("ollama health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (o *Ollama) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, resp.Body)
	}

	var tags struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return tags.Models, nil
}

// RequiredModelsStatus checks that one chat model and one embedding model
// from the supported families are installed.
func (o *Ollama) RequiredModelsStatus(ctx context.Context) (ModelStatus, error) {
	models, err := o.ListModels(ctx)
	if err != nil {
		return ModelStatus{}, err
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return modelStatus(names), nil
}

func modelStatus(installed []string) ModelStatus {
	status := ModelStatus{
		RecommendedLLM:       RecommendedLLM,
		RecommendedEmbedding: RecommendedEmbedding,
	}
	status.InstalledLLM, status.HasLLM = firstInstalled(RequiredLLMs, installed)
	status.InstalledEmbedding, status.HasEmbedding = firstInstalled(RequiredEmbeddings, installed)
	status.Ready = status.HasLLM && status.HasEmbedding
	return status
}

// firstInstalled matches on the family name before the tag, so
// "llama3.2:1b" satisfies "llama3.2:3b".
func firstInstalled(wanted, installed []string) (string, bool) {
	for _, w := range wanted {
		family, _, _ := strings.Cut(w, ":")
		for _, name := range installed {
			if strings.HasPrefix(name, family) {
				return name, true
			}
		}
	}
	return "", false
}

// PullModel downloads a model and yields Ollama's progress lines.
func (o *Ollama) PullModel(ctx context.Context, name string) iter.Seq2[PullProgress, error] {
	return func(yield func(PullProgress, error) bool) {
		reqBody, _ := json.Marshal(map[string]any{"name": name, "stream": true})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL+"/api/pull", bytes.NewReader(reqBody))
		if err != nil {
			yield(PullProgress{}, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		// Pulls can take far longer than a chat answer.
		resp, err := (&http.Client{}).Do(req)
		if err != nil {
			yield(PullProgress{}, fmt.Errorf("pull %s: %w", name, err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			yield(PullProgress{}, apiError(resp.StatusCode, resp.Body))
			return
		}

		stopped := false
		err = decodeStream(resp.Body, func(p PullProgress) bool {
			if !yield(p, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(PullProgress{}, err)
		}
	}
}
