package store

import (
	"context"

	"mnemora/types"
)

// ChunkStorer is the part of the vector store the indexing pipeline writes to.
type ChunkStorer interface {
	Add(ctx context.Context, chunks []types.Chunk) error
	DeleteByFolder(ctx context.Context, folder string) (int, error)
}

// FolderRecorder keeps the outcome of the last run per folder.
type FolderRecorder interface {
	Record(rec types.FolderRecord) error
	Forget(folder string) error
}

// RecordingStore couples a chunk store with an optional folder recorder so
// that removals and completed runs update both.
type RecordingStore struct {
	ChunkStorer
	recorder FolderRecorder
}

func NewRecordingStore(chunks ChunkStorer, recorder FolderRecorder) *RecordingStore {
	return &RecordingStore{ChunkStorer: chunks, recorder: recorder}
}

// Record stores rec; it is a no-op without a recorder.
func (s *RecordingStore) Record(rec types.FolderRecord) error {
	if s.recorder == nil {
		return nil
	}
	return s.recorder.Record(rec)
}

// RemoveFolder deletes the folder's chunks and forgets its record.
func (s *RecordingStore) RemoveFolder(ctx context.Context, folder string) (int, error) {
	n, err := s.DeleteByFolder(ctx, folder)
	if err != nil {
		return 0, err
	}
	if s.recorder != nil {
		if err := s.recorder.Forget(folder); err != nil {
			return n, err
		}
	}
	return n, nil
}
