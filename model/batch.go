package model

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

const DefaultBatchSize = 10

// Batcher embeds many texts through an EmbedderInterface. Items of one batch
// run concurrently, batches run one after another.
type Batcher struct {
	embedder  EmbedderInterface
	batchSize int
	logger    *slog.Logger
}

func NewBatcher(embedder EmbedderInterface, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{
		embedder:  embedder,
		batchSize: batchSize,
		logger:    slog.Default(),
	}
}

// EmbedMany returns one entry per text, in input order. A nil entry means the
// text could not be embedded; it does not affect its neighbours. Once ctx is
// done the remaining entries stay nil and no further calls are made.
func (b *Batcher) EmbedMany(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out
	}

	pool, err := ants.NewPool(min(b.batchSize, len(texts)))
	if err != nil {
		b.logger.Error("embedding pool unavailable, embedding sequentially", "error", err)
	} else {
		defer pool.Release()
	}

	failed := 0
	for start := 0; start < len(texts); start += b.batchSize {
		if ctx.Err() != nil {
			b.logger.Warn("embedding cancelled", "done", start, "total", len(texts))
			break
		}
		end := min(start+b.batchSize, len(texts))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			task := func() {
				defer wg.Done()
				out[i] = b.embedOne(ctx, texts[i])
			}
			if pool == nil || pool.Submit(task) != nil {
				task()
			}
		}
		wg.Wait()

		for i := start; i < end; i++ {
			if out[i] == nil {
				failed++
			}
		}
	}
	if failed > 0 {
		b.logger.Warn("some embeddings failed", "failed", failed, "total", len(texts))
	}
	return out
}

func (b *Batcher) embedOne(ctx context.Context, text string) []float32 {
	if ctx.Err() != nil {
		return nil
	}
	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		b.logger.Debug("embedding failed", "error", err)
		return nil
	}
	if len(vec) == 0 {
		return nil
	}
	return vec
}
