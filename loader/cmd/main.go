package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mnemora/app/agent"
	"mnemora/app/server"
	"mnemora/config"
	"mnemora/loader/types"
	doc "mnemora/types"

	"github.com/joho/godotenv"
)

const usage = `usage: mnemora-loader [-config path] <command> [args]

commands:
  index <folder>     re-index a folder
  remove <folder>    remove a folder from the index
  folders            list indexed folders
  ask <question>     ask a question about the indexed documents
`

func main() {
	configPath := flag.String("config", "", "path to the yaml config (default $MNEMORA_CONFIG)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	loadEnvVariables()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("error to load config: ", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := server.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	code := run(ctx, deps, logger, flag.Arg(0), flag.Args()[1:])
	if err := deps.Close(); err != nil {
		logger.Error("error to close storage", "error", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, deps *server.Deps, logger *slog.Logger, cmd string, args []string) int {
	switch cmd {
	case "index":
		if len(args) != 1 {
			break
		}
		reporter := newProgressReporter(os.Stdout, logger)
		code := 0
		for ev := range deps.Indexer.IndexFolder(ctx, args[0]) {
			reporter.Report(ev)
			if types.IsTerminal(ev) {
				reporter.Summary(ev)
				if _, failed := ev.(types.PipelineError); failed {
					code = 1
				}
			}
		}
		return code

	case "remove":
		if len(args) != 1 {
			break
		}
		n, err := deps.Indexer.RemoveFolder(ctx, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("removed %d chunks\n", n)
		return 0

	case "folders":
		folders, err := deps.Folders()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, f := range folders {
			fmt.Printf("%s\t%d files\t%d chunks\t%d errors\t%s\n",
				f.Path, f.Files, f.Chunks, f.Errors, f.IndexedAt.Format("2006-01-02 15:04"))
		}
		return 0

	case "ask":
		if len(args) == 0 {
			break
		}
		return ask(ctx, deps.Agent, strings.Join(args, " "))
	}
	fmt.Fprint(os.Stderr, usage)
	return 2
}

func ask(ctx context.Context, a *agent.Agent, question string) int {
	var sources []doc.RetrievedSource
	for ev := range a.Ask(ctx, doc.QueryParams{Query: question}) {
		switch e := ev.(type) {
		case agent.Sources:
			sources = e.Sources
		case agent.Token:
			fmt.Print(e.Content)
		case agent.Error:
			fmt.Fprintln(os.Stderr, "\nerror:", e.Message)
			return 1
		case agent.Done:
			fmt.Println()
		}
	}
	if len(sources) > 0 {
		fmt.Println("\nsources:")
		for i, s := range sources {
			fmt.Printf("  [%d] %s (chunk %d, score %.3f)\n", i+1, s.FilePath, s.ChunkIndex, s.Score)
		}
	}
	return 0
}

// loadEnvVariables reads .env when present; the environment wins.
func loadEnvVariables() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("error loading .env file:", err)
	}
}
