package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mnemora/app/server"
	"mnemora/config"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config (default $MNEMORA_CONFIG)")
	flag.Parse()

	loadEnvVariables()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("error to load config: ", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	s, err := server.NewServer(context.Background(), cfg, logger)
	if err != nil {
		log.Fatal("error to start server: ", err)
	}

	go func() {
		if err := s.Run(); err != nil {
			logger.Error("error to start server", "error", err.Error())
			os.Exit(1)
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	logger.Info("received shutdown signal, shutting down server...")
	s.Stop()
}

// loadEnvVariables reads .env when present; the environment wins.
func loadEnvVariables() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("error loading .env file:", err)
	}
}
