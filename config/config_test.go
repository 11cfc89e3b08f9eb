package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MNEMORA_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbeddingModel)
	assert.Equal(t, "llama3.2:3b", cfg.Ollama.ChatModel)
	assert.Equal(t, 60*time.Second, cfg.Ollama.Timeout)
	assert.Equal(t, 120*time.Second, cfg.Ollama.ChatTimeout)
	assert.Equal(t, 10, cfg.Index.BatchSize)
	assert.Equal(t, 5, cfg.Query.TopK)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, filepath.IsAbs(cfg.Store.Path), cfg.Store.Path)
}

func TestDefaultExcludesNothing(t *testing.T) {
	t.Setenv("MNEMORA_CONFIG", "")
	assert.Empty(t, Default().Index.Exclude)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Index.Exclude)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnemora.yaml")
	data := `
server:
  addr: ":9000"
index:
  batch_size: 4
  exclude: ["**/drafts/**"]
store:
  driver: memory
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("LLM_MODEL", "phi3:mini")
	t.Setenv("EMBED_BATCH_SIZE", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Index.BatchSize)
	assert.Equal(t, []string{"**/drafts/**"}, cfg.Index.Exclude)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "phi3:mini", cfg.Ollama.ChatModel)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown driver", yaml: "store:\n  driver: chroma\n"},
		{name: "postgres without host", yaml: "store:\n  driver: postgres\n"},
		{name: "bad level", yaml: "log:\n  level: loud\n"},
		{name: "huge batch", yaml: "index:\n  batch_size: 100000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), err.Error())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConnString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "rag"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=rag sslmode=disable", p.ConnString())
}
