package store

import (
	"context"
	"fmt"
	"log/slog"

	"mnemora/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

func NewPostgresStore(ctx context.Context, connStr string, dimensions int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:       pool,
		dimensions: dimensions,
	}, nil
}

// Add upserts all chunks in one batch round trip.
func (p *PostgresStore) Add(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	query := `INSERT INTO chunks (id, folder_path, file_path, file_name, file_type,
			modified_at, indexed_at, chunk_index, total_chunks, content, embedding)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			folder_path = EXCLUDED.folder_path,
			file_path = EXCLUDED.file_path,
			file_name = EXCLUDED.file_name,
			file_type = EXCLUDED.file_type,
			modified_at = EXCLUDED.modified_at,
			indexed_at = EXCLUDED.indexed_at,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(query,
			c.ID, c.Meta.FolderPath, c.Meta.FilePath, c.Meta.FileName, c.Meta.FileType,
			c.Meta.ModifiedAt, c.Meta.IndexedAt, c.Index, c.Total, c.Content,
			pgvector.NewVector(c.Embedding),
		)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT id::text, folder_path, file_path, file_name, file_type, modified_at,
		       indexed_at, chunk_index, total_chunks, content,
		       embedding <=> $1 AS distance
		FROM chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(
			&c.ID,
			&c.Meta.FolderPath,
			&c.Meta.FilePath,
			&c.Meta.FileName,
			&c.Meta.FileType,
			&c.Meta.ModifiedAt,
			&c.Meta.IndexedAt,
			&c.Index,
			&c.Total,
			&c.Content,
			&c.Distance); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (p *PostgresStore) DeleteByFolder(ctx context.Context, folder string) (int, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE folder_path = $1", folder)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM chunks").Scan(&n)
	return n, err
}

func (p *PostgresStore) createRagTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		folder_path TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		modified_at TIMESTAMP WITH TIME ZONE,
		indexed_at TIMESTAMP WITH TIME ZONE,
		chunk_index INT NOT NULL,
		total_chunks INT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_folder_path ON chunks(folder_path);
	`, p.dimensions)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createRagTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		slog.Info("postgres connection pool is closed")
	}
	return nil
}
