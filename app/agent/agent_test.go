package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"testing"

	"mnemora/model"
	"mnemora/store"
	"mnemora/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEmbedder struct {
	vector []float32
	err    error
}

func (s staticEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

type scriptedChat struct {
	tokens   []string
	err      error
	calls    int
	model    string
	messages []model.Message
}

func (c *scriptedChat) StreamChat(_ context.Context, name string, messages []model.Message) iter.Seq2[string, error] {
	c.calls++
	c.model = name
	c.messages = messages
	return func(yield func(string, error) bool) {
		for _, tok := range c.tokens {
			if !yield(tok, nil) {
				return
			}
		}
		if c.err != nil {
			yield("", c.err)
		}
	}
}

type brokenSearcher struct{}

func (brokenSearcher) Search(context.Context, []float32, int) ([]types.Chunk, error) {
	return nil, errors.New("store offline")
}

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Add(context.Background(), []types.Chunk{
		{ID: "1", Content: "Paris is the capital of France.", Index: 0, Meta: types.FileMetadata{FilePath: "/n/france.md", FileName: "france.md", FolderPath: "/n"}, Embedding: []float32{1, 0}},
		{ID: "2", Content: strings.Repeat("é", 800), Index: 3, Meta: types.FileMetadata{FilePath: "/n/long.md", FileName: "long.md", FolderPath: "/n"}, Embedding: []float32{1, 1}},
		{ID: "3", Content: "opposite", Meta: types.FileMetadata{FilePath: "/n/neg.md", FileName: "neg.md", FolderPath: "/n"}, Embedding: []float32{-1, 0}},
	}))
	return mem
}

func collect(seq iter.Seq[Event]) []Event {
	var events []Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func TestRetrieveRanksAndScores(t *testing.T) {
	a := New(staticEmbedder{vector: []float32{1, 0}}, seededStore(t), &scriptedChat{})

	sources, err := a.Retrieve(context.Background(), "capital of France", 3)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	assert.Equal(t, "france.md", sources[0].FileName)
	assert.Equal(t, "/n/france.md", sources[0].FilePath)
	assert.Equal(t, 1.0, sources[0].Score)

	assert.Equal(t, "long.md", sources[1].FileName)
	assert.Equal(t, 0.707, sources[1].Score)
	assert.Equal(t, 3, sources[1].ChunkIndex)
	assert.Equal(t, 500, len([]rune(sources[1].Content)))

	assert.Equal(t, 0.0, sources[2].Score)
}

func TestRetrieveLimit(t *testing.T) {
	a := New(staticEmbedder{vector: []float32{1, 0}}, seededStore(t), &scriptedChat{})
	sources, err := a.Retrieve(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestRetrieveEmbeddingFailureIsEmpty(t *testing.T) {
	a := New(staticEmbedder{err: errors.New("ollama down")}, brokenSearcher{}, &scriptedChat{})
	sources, err := a.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.NotNil(t, sources)
	assert.Empty(t, sources)
}

func TestRetrieveStoreError(t *testing.T) {
	a := New(staticEmbedder{vector: []float32{1}}, brokenSearcher{}, &scriptedChat{})
	_, err := a.Retrieve(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "store offline")
}

func TestGenerateBuildsMessages(t *testing.T) {
	chat := &scriptedChat{tokens: []string{"Par", "is"}}
	a := New(staticEmbedder{}, store.NewMemoryStore(), chat, WithChatModel("mistral"))

	sources := []types.RetrievedSource{
		{FileName: "a.md", Content: "alpha"},
		{FileName: "b.md", Content: "beta"},
	}
	var out []string
	for tok, err := range a.Generate(context.Background(), "what?", sources, "") {
		require.NoError(t, err)
		out = append(out, tok)
	}
	assert.Equal(t, []string{"Par", "is"}, out)
	assert.Equal(t, "mistral", chat.model)

	require.Len(t, chat.messages, 3)
	assert.Equal(t, "system", chat.messages[0].Role)
	assert.True(t, strings.HasPrefix(chat.messages[0].Content, "You are Mnemora"))
	assert.Equal(t, model.Message{
		Role:    "system",
		Content: "Use the following context to answer the user's question:\n\n[Source 1: a.md]\nalpha\n\n---\n\n[Source 2: b.md]\nbeta",
	}, chat.messages[1])
	assert.Equal(t, model.Message{Role: "user", Content: "what?"}, chat.messages[2])
}

func TestGenerateWithoutSourcesUsesPlaceholder(t *testing.T) {
	chat := &scriptedChat{tokens: []string{"I don't know."}}
	a := New(staticEmbedder{}, store.NewMemoryStore(), chat)

	for _, err := range a.Generate(context.Background(), "q", nil, "llama3.2:1b") {
		require.NoError(t, err)
	}
	assert.Equal(t, "llama3.2:1b", chat.model)
	assert.Equal(t, "Use the following context to answer the user's question:\n\nNo relevant documents found in the knowledge base.", chat.messages[1].Content)
}

func TestAskStreamsSourcesTokensDone(t *testing.T) {
	chat := &scriptedChat{tokens: []string{"Paris", "."}}
	a := New(staticEmbedder{vector: []float32{1, 0}}, seededStore(t), chat, WithTopK(2))

	events := collect(a.Ask(context.Background(), types.QueryParams{Query: "capital?"}))
	require.Len(t, events, 4)
	src, ok := events[0].(Sources)
	require.True(t, ok)
	assert.Len(t, src.Sources, 2)
	assert.Equal(t, Token{Content: "Paris"}, events[1])
	assert.Equal(t, Token{Content: "."}, events[2])
	assert.Equal(t, Done{}, events[3])
	assert.Equal(t, types.DefaultChatModel, chat.model)
}

func TestAskEmptyIndexStillAnswers(t *testing.T) {
	chat := &scriptedChat{tokens: []string{"Nothing indexed."}}
	a := New(staticEmbedder{vector: []float32{1, 0}}, store.NewMemoryStore(), chat)

	events := collect(a.Ask(context.Background(), types.QueryParams{Query: "anything", TopK: 5, Model: "phi3"}))
	require.Len(t, events, 3)
	assert.Equal(t, Sources{Sources: []types.RetrievedSource{}}, events[0])
	assert.Equal(t, Done{}, events[2])
	assert.Equal(t, "phi3", chat.model)
}

func TestAskGenerationFailureEndsWithError(t *testing.T) {
	chat := &scriptedChat{tokens: []string{"partial"}, err: errors.New("ollama API error (status 404): model not found")}
	a := New(staticEmbedder{vector: []float32{1, 0}}, seededStore(t), chat)

	events := collect(a.Ask(context.Background(), types.QueryParams{Query: "q"}))
	require.Len(t, events, 3)
	assert.Equal(t, Token{Content: "partial"}, events[1])
	assert.Equal(t, Error{Message: "ollama API error (status 404): model not found"}, events[2])
}

func TestAskSearchFailureIsSingleError(t *testing.T) {
	chat := &scriptedChat{}
	a := New(staticEmbedder{vector: []float32{1}}, brokenSearcher{}, chat)

	events := collect(a.Ask(context.Background(), types.QueryParams{Query: "q"}))
	require.Len(t, events, 1)
	assert.IsType(t, Error{}, events[0])
	assert.Zero(t, chat.calls)
}

func TestAskStopsWhenConsumerStops(t *testing.T) {
	chat := &scriptedChat{tokens: []string{"a", "b", "c"}}
	a := New(staticEmbedder{vector: []float32{1, 0}}, seededStore(t), chat)

	for ev := range a.Ask(context.Background(), types.QueryParams{Query: "q"}) {
		if _, ok := ev.(Sources); ok {
			break
		}
	}
	assert.Zero(t, chat.calls)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 1.0, score(-0.2))
	assert.Equal(t, 0.0, score(1.7))
	assert.Equal(t, 0.877, score(0.12345))
}

// wordEncoder counts one token per whitespace-separated word.
type wordEncoder struct{}

func (wordEncoder) Encode(text string, _, _ []string) []int {
	return make([]int, len(strings.Fields(text)))
}

func TestNewTokenCounterUnknownModel(t *testing.T) {
	tc, err := NewTokenCounter("no-such-model")
	assert.Nil(t, tc)
	assert.ErrorContains(t, err, "no-such-model")
}

func TestGenerateLogsPromptSize(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	chat := &scriptedChat{tokens: []string{"ok"}}
	a := New(staticEmbedder{}, store.NewMemoryStore(), chat,
		WithTokenCounter(&TokenCounter{enc: wordEncoder{}}),
		WithLogger(logger),
	)

	for range a.Generate(context.Background(), "two words", nil, "") {
	}
	want := len(strings.Fields(systemPrompt)) + len(strings.Fields(contextPrompt+noContext)) + 2
	assert.Contains(t, buf.String(), fmt.Sprintf("tokens=%d", want))
	assert.Contains(t, buf.String(), "sources=0")
}
