package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mnemora/app/agent"
	"mnemora/config"
	"mnemora/loader/service"
	"mnemora/model"
	"mnemora/store"
	"mnemora/types"
)

// Deps holds the long-lived components built from a Config. Both the HTTP
// server and the command line loader run on top of it.
type Deps struct {
	Store    store.DBStorer
	Registry *store.Registry // nil when no registry path is configured
	Ollama   *model.Ollama
	Indexer  *service.Service
	Agent    *agent.Agent
}

func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	agentOpts := []agent.Option{
		agent.WithChatModel(cfg.Ollama.ChatModel),
		agent.WithTopK(cfg.Query.TopK),
		agent.WithLogger(logger),
	}
	if cfg.Query.CountTokens {
		tc, err := newTokenCounter(agent.TokenEncodingModel)
		if err != nil {
			return nil, err
		}
		agentOpts = append(agentOpts, agent.WithTokenCounter(tc))
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	d := &Deps{Store: db}

	opts := []service.Option{
		service.WithExclude(cfg.Index.Exclude),
		service.WithLogger(logger),
	}
	if cfg.Registry.Path != "" {
		d.Registry, err = store.OpenRegistry(cfg.Registry.Path)
		if err != nil {
			db.Close()
			return nil, err
		}
		opts = append(opts, service.WithRegistry(d.Registry))
	}

	embedder := model.NewOllamaEmbedder(cfg.Ollama.URL, cfg.Ollama.EmbeddingModel, cfg.Ollama.Timeout)
	d.Ollama = model.NewOllama(cfg.Ollama.URL, cfg.Ollama.Timeout, cfg.Ollama.ChatTimeout)
	d.Indexer = service.New(
		db,
		service.NewFileExtractor(logger),
		model.NewBatcher(embedder, cfg.Index.BatchSize),
		opts...,
	)

	d.Agent = agent.New(embedder, db, d.Ollama, agentOpts...)
	return d, nil
}

var newTokenCounter = agent.NewTokenCounter

// Folders lists the registry; without one nothing is listed.
func (d *Deps) Folders() ([]types.FolderRecord, error) {
	if d.Registry == nil {
		return nil, nil
	}
	return d.Registry.Folders()
}

func (d *Deps) Close() error {
	var errs []error
	if d.Registry != nil {
		errs = append(errs, d.Registry.Close())
	}
	errs = append(errs, d.Store.Close())
	return errors.Join(errs...)
}
