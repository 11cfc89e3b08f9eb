package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"mnemora/config"
	"mnemora/types"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// DBStorer is the vector store used by indexing and retrieval. Search
// results carry the cosine distance to the query in Chunk.Distance, nearest
// first.
type DBStorer interface {
	Add(ctx context.Context, chunks []types.Chunk) error
	Search(ctx context.Context, vector []float32, limit int) ([]types.Chunk, error)
	DeleteByFolder(ctx context.Context, folder string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open builds the store selected by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg config.StoreConfig) (DBStorer, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.Postgres.ConnString(), cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := s.Init(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance is 1 - cosine similarity; mismatched or zero vectors are
// as far as possible.
func cosineDistance(query []float32, queryNorm float64, vec []float32) float64 {
	if len(query) != len(vec) || queryNorm == 0 {
		return 2
	}
	var dot, norm float64
	for i, x := range vec {
		dot += float64(query[i]) * float64(x)
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return 2
	}
	return 1 - dot/(queryNorm*math.Sqrt(norm))
}

// nearest sorts hits by distance and keeps the first limit.
func nearest(hits []types.Chunk, limit int) []types.Chunk {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
