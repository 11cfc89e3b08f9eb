package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk ids so they never collide with other name-based UUIDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mnemora:chunk"))

// FileMetadata describes the file a chunk was cut from. Every chunk carries
// its own copy.
type FileMetadata struct {
	FilePath   string    `json:"file_path"`
	FolderPath string    `json:"folder_path"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"` // extension without the dot
	ModifiedAt time.Time `json:"modified_at"`
	IndexedAt  time.Time `json:"indexed_at"`
}

type Chunk struct {
	ID        string
	Content   string
	Index     int // position of the chunk inside its file
	Total     int // number of chunks cut from the file
	Meta      FileMetadata
	Embedding []float32
	Distance  float64 // cosine distance, set on search results only
}

// ChunkID returns the id of the index-th chunk of path. The same pair always
// maps to the same id, so re-indexing overwrites instead of duplicating.
func ChunkID(path string, index int) string {
	return uuid.NewMD5(chunkNamespace, fmt.Appendf(nil, "%s:%d", path, index)).String()
}

type RetrievedSource struct {
	FilePath   string  `json:"file_path"`
	FileName   string  `json:"file_name"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// FolderRecord summarises the last completed indexing run of a folder.
type FolderRecord struct {
	Path      string    `json:"path"`
	Files     int       `json:"files"`
	Chunks    int       `json:"chunks"`
	Errors    int       `json:"errors"`
	IndexedAt time.Time `json:"indexed_at"`
}
