package server

import (
	"context"
	"log/slog"
	"time"

	"mnemora/app/api"
	"mnemora/app/middleware"
	"mnemora/config"

	"github.com/gofiber/fiber/v2"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	listenAddr string
	logger     *slog.Logger
	deps       *Deps
	app        *fiber.App

	// ctx is the base context of every request; Stop cancels it so open
	// streams end before shutdown waits on them.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	deps, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listenAddr: cfg.Server.Addr,
		logger:     logger,
		deps:       deps,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.app = s.routes()
	return s, nil
}

func (s *Server) routes() *fiber.App {
	var (
		app = fiber.New(fiber.Config{
			ErrorHandler:          api.ErrorHandler,
			DisableStartupMessage: true,
		})
		checkHandler   = api.NewCheckHandler(s.deps.Ollama, s.deps.Store)
		requestHandler = api.NewRequestHandler(s.deps.Agent)
		indexHandler   = api.NewIndexHandler(s.deps.Indexer)
		folderHandler  = api.NewFolderHandler(s.deps.Indexer, s.deps)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)
	app.Use(middleware.RequestLogger(s.logger), middleware.BaseContext(s.ctx))

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Get("/health", checkHandler.HandleHealth)
	apiv1.Get("/models", checkHandler.HandleModels)
	apiv1.Get("/setup/status", checkHandler.HandleSetupStatus)
	apiv1.Post("/setup/pull-model", checkHandler.HandlePullModel)

	apiv1.Post("/index", indexHandler.HandleIndex)
	apiv1.Get("/folders", folderHandler.HandleListFolders)
	apiv1.Delete("/folders", folderHandler.HandleRemoveFolder)

	apiv1.Post("/query", requestHandler.HandleQuery)
	return app
}

// Run serves until Stop is called or the listener fails.
func (s *Server) Run() error {
	s.logger.Info("server started", "addr", s.listenAddr)
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Stop() {
	s.cancel()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Error("error to shut down server", "error", err)
	}
	if err := s.deps.Close(); err != nil {
		s.logger.Error("error to close storage", "error", err)
	}
	s.logger.Info("server stopped")
}
