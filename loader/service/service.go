package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mnemora/loader/internal"
	"mnemora/loader/store"
	"mnemora/loader/types"
	doc "mnemora/types"
)

const (
	statusEmbedding = "Generating embeddings..."
	statusSaving    = "Saving to database..."
)

// Extractor turns a file into plain text; an empty result means "nothing to index".
type Extractor interface {
	Extract(ctx context.Context, path string) string
}

// NewFileExtractor returns the extractor for every supported file type.
func NewFileExtractor(logger *slog.Logger) Extractor {
	return internal.NewExtractor(logger)
}

// Embedder embeds texts in order; a nil vector marks a failed item.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) [][]float32
}

type Service struct {
	logger    *slog.Logger
	store     *store.RecordingStore
	extractor Extractor
	embedder  Embedder
	exclude   []string
	now       func() time.Time
}

type Option func(*Service)

// WithRegistry records every completed run in r.
func WithRegistry(r store.FolderRecorder) Option {
	return func(s *Service) {
		s.store = store.NewRecordingStore(s.store.ChunkStorer, r)
	}
}

// WithExclude skips files whose folder-relative path matches one of the
// doublestar patterns.
func WithExclude(patterns []string) Option {
	return func(s *Service) {
		s.exclude = patterns
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(storer store.ChunkStorer, extractor Extractor, embedder Embedder, opts ...Option) *Service {
	s := &Service{
		logger:    slog.Default(),
		store:     store.NewRecordingStore(storer, nil),
		extractor: extractor,
		embedder:  embedder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexFolder re-indexes folder and reports progress as it goes. The run
// does its work while the sequence is being ranged over; stopping the range
// or cancelling ctx stops it before the next file, embedding or store call.
func (s *Service) IndexFolder(ctx context.Context, folder string) iter.Seq[types.ProgressEvent] {
	return func(yield func(types.ProgressEvent) bool) {
		started := s.now()
		fail := func(format string, args ...any) {
			msg := fmt.Sprintf(format, args...)
			s.logger.Error("indexing failed", "folder", folder, "error", msg)
			yield(types.PipelineError{Message: msg})
		}

		root, err := filepath.Abs(folder)
		if err != nil {
			fail("resolve folder: %v", err)
			return
		}
		files, err := internal.DiscoverFiles(root, s.exclude)
		if err != nil {
			fail("discover files: %v", err)
			return
		}
		s.logger.Info("indexing folder", "folder", root, "files", len(files))
		if !yield(types.Discovery{TotalFiles: len(files), Folder: root}) {
			return
		}

		if err := ctx.Err(); err != nil {
			fail("indexing cancelled: %v", err)
			return
		}
		removed, err := s.store.DeleteByFolder(ctx, root)
		if err != nil {
			fail("delete previous chunks: %v", err)
			return
		}
		if removed > 0 {
			s.logger.Debug("removed previous chunks", "folder", root, "chunks", removed)
		}

		var (
			done    types.Done
			pending []doc.Chunk
		)
		total := len(files)
		for i, path := range files {
			if err := ctx.Err(); err != nil {
				fail("indexing cancelled: %v", err)
				return
			}
			current := i + 1
			chunks, err := s.processFile(ctx, root, path)

			var ev types.ProgressEvent
			if err != nil {
				s.logger.Warn("file failed", "file", path, "error", err)
				fe := types.FileError{
					File:    filepath.Base(path),
					Path:    path,
					Message: err.Error(),
					Current: current,
					Total:   total,
				}
				done.ErrorCount++
				done.Errors = append(done.Errors, fe)
				ev = fe
			} else {
				pending = append(pending, chunks...)
				done.Processed++
				ev = types.FileDone{
					File:       filepath.Base(path),
					Path:       path,
					ChunkCount: len(chunks),
					Current:    current,
					Total:      total,
					Percent:    percent(current, total),
				}
			}
			if !yield(ev) {
				return
			}
		}

		saved := 0
		if len(pending) > 0 {
			if !yield(types.EmbeddingStatus{Status: statusEmbedding, Count: len(pending)}) {
				return
			}
			texts := make([]string, len(pending))
			for i, c := range pending {
				texts[i] = c.Content
			}
			vectors := s.embedder.EmbedMany(ctx, texts)
			if err := ctx.Err(); err != nil {
				fail("indexing cancelled: %v", err)
				return
			}

			embedded := withVectors(pending, vectors)
			if dropped := len(pending) - len(embedded); dropped > 0 {
				s.logger.Warn("dropping chunks without embeddings", "folder", root, "chunks", dropped)
			}
			if len(embedded) > 0 {
				if !yield(types.EmbeddingStatus{Status: statusSaving, Count: len(embedded)}) {
					return
				}
				if err := s.store.Add(ctx, embedded); err != nil {
					fail("save chunks: %v", err)
					return
				}
				saved = len(embedded)
			}
		}

		err = s.store.Record(doc.FolderRecord{
			Path:      root,
			Files:     done.Processed,
			Chunks:    saved,
			Errors:    done.ErrorCount,
			IndexedAt: s.now(),
		})
		if err != nil {
			s.logger.Warn("cannot record folder", "folder", root, "error", err)
		}
		s.logger.Info("folder indexed",
			"folder", root,
			"processed", done.Processed,
			"errors", done.ErrorCount,
			"chunks", saved,
			"took", time.Since(started),
		)
		yield(done)
	}
}

// RemoveFolder deletes everything indexed from folder. Unknown folders
// remove nothing.
func (s *Service) RemoveFolder(ctx context.Context, folder string) (int, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return 0, err
	}
	n, err := s.store.RemoveFolder(ctx, root)
	if err != nil {
		return n, fmt.Errorf("remove folder %s: %w", root, err)
	}
	s.logger.Info("folder removed", "folder", root, "chunks", n)
	return n, nil
}

// processFile extracts and chunks one file. Panics are returned as errors
// so one broken file never ends the run.
func (s *Service) processFile(ctx context.Context, root, path string) (chunks []doc.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks, err = nil, fmt.Errorf("%v", r)
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	text := s.extractor.Extract(ctx, path)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts := internal.Chunk(text)
	meta := doc.FileMetadata{
		FilePath:   path,
		FolderPath: root,
		FileName:   filepath.Base(path),
		FileType:   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		ModifiedAt: info.ModTime(),
		IndexedAt:  s.now(),
	}
	chunks = make([]doc.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = doc.Chunk{
			ID:      doc.ChunkID(path, i),
			Content: part,
			Index:   i,
			Total:   len(parts),
			Meta:    meta,
		}
	}
	return chunks, nil
}

// withVectors attaches vectors to chunks and drops those without one.
func withVectors(chunks []doc.Chunk, vectors [][]float32) []doc.Chunk {
	out := make([]doc.Chunk, 0, len(chunks))
	for i, c := range chunks {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		c.Embedding = vectors[i]
		out = append(out, c)
	}
	return out
}

func percent(current, total int) int {
	return int(math.Round(float64(current) / float64(total) * 100))
}
