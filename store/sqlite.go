package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mnemora/types"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps chunks in a single local database file and answers
// searches with a brute-force cosine scan.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required for the sqlite store")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Add(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks
		(id, folder_path, file_path, file_name, file_type, modified_at, indexed_at,
		 chunk_index, total_chunks, content, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		vectorJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Meta.FolderPath, c.Meta.FilePath, c.Meta.FileName, c.Meta.FileType,
			c.Meta.ModifiedAt.UnixNano(), c.Meta.IndexedAt.UnixNano(),
			c.Index, c.Total, c.Content, string(vectorJSON),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, limit int) ([]types.Chunk, error) {
	queryNorm := vectorNorm(vector)
	if len(vector) == 0 || queryNorm == 0 {
		return nil, fmt.Errorf("vector query is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, folder_path, file_path, file_name, file_type,
		modified_at, indexed_at, chunk_index, total_chunks, content, vector FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []types.Chunk
	for rows.Next() {
		var (
			c                 types.Chunk
			modified, indexed int64
			vectorJSON        string
		)
		if err := rows.Scan(&c.ID, &c.Meta.FolderPath, &c.Meta.FilePath, &c.Meta.FileName,
			&c.Meta.FileType, &modified, &indexed, &c.Index, &c.Total, &c.Content, &vectorJSON); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
			continue
		}
		c.Meta.ModifiedAt = time.Unix(0, modified)
		c.Meta.IndexedAt = time.Unix(0, indexed)
		c.Distance = cosineDistance(vector, queryNorm, vec)
		hits = append(hits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nearest(hits, limit), nil
}

func (s *SQLiteStore) DeleteByFolder(ctx context.Context, folder string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE folder_path = ?`, folder)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			folder_path TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			modified_at INTEGER,
			indexed_at INTEGER,
			chunk_index INTEGER NOT NULL,
			total_chunks INTEGER NOT NULL,
			content TEXT NOT NULL,
			vector TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_folder ON chunks (folder_path);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init vector db: %w", err)
		}
	}
	return nil
}
