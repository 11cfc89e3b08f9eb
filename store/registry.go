package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mnemora/types"

	"go.etcd.io/bbolt"
)

var bucketFolders = []byte("folders")

// Registry remembers which folders were indexed and how the last run went.
type Registry struct {
	db *bbolt.DB
}

func OpenRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFolders)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Record(rec types.FolderRecord) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFolders).Put([]byte(rec.Path), data)
	})
}

// Forget drops the record of folder; unknown folders are ignored.
func (r *Registry) Forget(folder string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFolders).Delete([]byte(folder))
	})
}

// Folders lists the records ordered by path.
func (r *Registry) Folders() ([]types.FolderRecord, error) {
	var out []types.FolderRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFolders).ForEach(func(_, v []byte) error {
			var rec types.FolderRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (r *Registry) Close() error {
	return r.db.Close()
}
