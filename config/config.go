package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ollama   OllamaConfig   `yaml:"ollama"`
	Index    IndexConfig    `yaml:"index"`
	Query    QueryConfig    `yaml:"query"`
	Store    StoreConfig    `yaml:"store"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type OllamaConfig struct {
	URL            string        `yaml:"url" validate:"required,url"`
	EmbeddingModel string        `yaml:"embedding_model" validate:"required"`
	ChatModel      string        `yaml:"chat_model" validate:"required"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	ChatTimeout    time.Duration `yaml:"chat_timeout" validate:"gt=0"`
}

type IndexConfig struct {
	BatchSize int      `yaml:"batch_size" validate:"gte=1,lte=256"`
	Exclude   []string `yaml:"exclude"`
}

type QueryConfig struct {
	TopK        int  `yaml:"top_k" validate:"gte=1,lte=100"`
	CountTokens bool `yaml:"count_tokens"`
}

type StoreConfig struct {
	Driver     string         `yaml:"driver" validate:"oneof=sqlite postgres memory"`
	Path       string         `yaml:"path"`
	Dimensions int            `yaml:"dimensions" validate:"gte=1"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type RegistryConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// ConnString builds the pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Registry.Path = expandPath(cfg.Registry.Path)
	return cfg
}

// Load reads the optional YAML file at path, applies defaults and then
// environment overrides. An empty path falls back to $MNEMORA_CONFIG.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MNEMORA_CONFIG")
	}
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(expandPath(path))
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Registry.Path = expandPath(cfg.Registry.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Store.Driver == "postgres" && c.Store.Postgres.Host == "" {
		return fmt.Errorf("%w: store.postgres.host is required for the postgres driver", ErrInvalid)
	}
	return nil
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = "http://localhost:11434"
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Ollama.ChatModel == "" {
		cfg.Ollama.ChatModel = "llama3.2:3b"
	}
	if cfg.Ollama.Timeout == 0 {
		cfg.Ollama.Timeout = 60 * time.Second
	}
	if cfg.Ollama.ChatTimeout == 0 {
		cfg.Ollama.ChatTimeout = 120 * time.Second
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = 10
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.mnemora/vectors.db"
	}
	if cfg.Store.Dimensions == 0 {
		cfg.Store.Dimensions = 768
	}
	if cfg.Store.Postgres.Port == 0 {
		cfg.Store.Postgres.Port = 5432
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "~/.mnemora/registry.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setString(&cfg.Ollama.URL, "OLLAMA_URL")
	setString(&cfg.Ollama.EmbeddingModel, "OLLAMA_EMBEDDING_MODEL")
	setString(&cfg.Ollama.ChatModel, "LLM_MODEL")
	setInt(&cfg.Index.BatchSize, "EMBED_BATCH_SIZE")
	setString(&cfg.Store.Driver, "STORE_DRIVER")
	setString(&cfg.Store.Path, "STORE_PATH")
	setInt(&cfg.Store.Dimensions, "VECTOR_DIMENSIONS")
	setString(&cfg.Store.Postgres.Host, "PG_HOST")
	setInt(&cfg.Store.Postgres.Port, "PG_PORT")
	setString(&cfg.Store.Postgres.User, "PG_USER")
	setString(&cfg.Store.Postgres.Password, "PG_PASS")
	setString(&cfg.Store.Postgres.DBName, "PG_DB_NAME")
	setString(&cfg.Registry.Path, "REGISTRY_PATH")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-numeric environment value", "key", key, "value", v)
		return
	}
	*dst = n
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
