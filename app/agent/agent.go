package agent

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strings"
	"time"

	"mnemora/model"
	"mnemora/types"
)

const (
	maxSourceRunes = 500

	systemPrompt = `You are Mnemora, a helpful AI assistant that answers questions based on the user's personal documents and files.

Guidelines:
- Base your answers on the provided context from the user's documents
- If the context doesn't contain relevant information, say so honestly
- Be concise but thorough
- Use markdown formatting for better readability
- When referencing information, mention which file it came from
- If you're unsure, acknowledge uncertainty rather than making things up`

	contextPrompt = "Use the following context to answer the user's question:\n\n"
	noContext     = "No relevant documents found in the knowledge base."
	sourceDivider = "\n\n---\n\n"
)

// Searcher finds the chunks nearest to a query vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]types.Chunk, error)
}

type Agent struct {
	embedder  model.EmbedderInterface
	store     Searcher
	chat      model.ChatStreamer
	chatModel string
	topK      int
	tokens    *TokenCounter
	logger    *slog.Logger
}

type Option func(*Agent)

// WithChatModel sets the model used when a query names none.
func WithChatModel(name string) Option {
	return func(a *Agent) {
		a.chatModel = name
	}
}

// WithTopK sets the number of sources retrieved when a query asks for none.
func WithTopK(k int) Option {
	return func(a *Agent) {
		a.topK = k
	}
}

// WithTokenCounter logs the prompt size in tokens before each generation.
func WithTokenCounter(tc *TokenCounter) Option {
	return func(a *Agent) {
		a.tokens = tc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

func New(embedder model.EmbedderInterface, store Searcher, chat model.ChatStreamer, opts ...Option) *Agent {
	a := &Agent{
		embedder:  embedder,
		store:     store,
		chat:      chat,
		chatModel: types.DefaultChatModel,
		topK:      types.DefaultTopK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Retrieve returns the topK chunks closest to query, nearest first. A query
// that cannot be embedded yields no sources rather than an error.
func (a *Agent) Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievedSource, error) {
	vector, err := a.embedder.Embed(ctx, query)
	if err != nil || len(vector) == 0 {
		a.logger.Warn("failed to embed query", "error", err)
		return []types.RetrievedSource{}, nil
	}

	hits, err := a.store.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	sources := make([]types.RetrievedSource, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, types.RetrievedSource{
			FilePath:   h.Meta.FilePath,
			FileName:   h.Meta.FileName,
			Content:    truncate(h.Content, maxSourceRunes),
			Score:      score(h.Distance),
			ChunkIndex: h.Index,
		})
	}
	return sources, nil
}

// Generate streams the answer to query grounded on sources. Each call issues
// a new chat request.
func (a *Agent) Generate(ctx context.Context, query string, sources []types.RetrievedSource, chatModel string) iter.Seq2[string, error] {
	if chatModel == "" {
		chatModel = a.chatModel
	}
	messages := []model.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: contextPrompt + buildContext(sources)},
		{Role: "user", Content: query},
	}
	if a.tokens != nil {
		a.logger.Debug("prompt size", "tokens", a.tokens.count(messages), "sources", len(sources))
	}
	return a.chat.StreamChat(ctx, chatModel, messages)
}

// Ask runs retrieval then generation and reports both as one event stream.
// Params are expected to be validated already.
func (a *Agent) Ask(ctx context.Context, params types.QueryParams) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		start := time.Now()
		if params.Model == "" {
			params.Model = a.chatModel
		}
		if params.TopK == 0 {
			params.TopK = a.topK
		}
		params.ApplyDefaults()

		sources, err := a.Retrieve(ctx, params.Query, params.TopK)
		if err != nil {
			a.logger.Error("query failed", "error", err)
			yield(Error{Message: err.Error()})
			return
		}
		if !yield(Sources{Sources: sources}) {
			return
		}

		tokens := 0
		for token, err := range a.Generate(ctx, params.Query, sources, params.Model) {
			if err != nil {
				a.logger.Error("generation failed", "model", params.Model, "error", err)
				yield(Error{Message: err.Error()})
				return
			}
			tokens++
			if !yield(Token{Content: token}) {
				return
			}
		}
		a.logger.Info("query answered",
			"model", params.Model,
			"sources", len(sources),
			"tokens", tokens,
			"took", time.Since(start),
		)
		yield(Done{})
	}
}

func buildContext(sources []types.RetrievedSource) string {
	if len(sources) == 0 {
		return noContext
	}
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, s.FileName, s.Content)
	}
	return strings.Join(parts, sourceDivider)
}

// score maps a cosine distance to a similarity in [0, 1] with three decimals.
func score(distance float64) float64 {
	s := min(max(1-distance, 0), 1)
	return math.Round(s*1000) / 1000
}

func truncate(s string, limit int) string {
	runes := 0
	for i := range s {
		if runes == limit {
			return s[:i]
		}
		runes++
	}
	return s
}
