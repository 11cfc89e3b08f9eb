package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"mnemora/loader/types"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// progressReporter renders indexing events, as a bar on a terminal and as
// log lines otherwise.
type progressReporter struct {
	out    io.Writer
	logger *slog.Logger
	bar    *progressbar.ProgressBar
	tty    bool
}

func newProgressReporter(out io.Writer, logger *slog.Logger) *progressReporter {
	return &progressReporter{
		out:    out,
		logger: logger,
		tty:    term.IsTerminal(int(os.Stderr.Fd())),
	}
}

func (p *progressReporter) Report(ev types.ProgressEvent) {
	if !p.tty {
		p.log(ev)
		return
	}
	switch e := ev.(type) {
	case types.Discovery:
		if e.TotalFiles > 0 {
			p.bar = progressbar.NewOptions(e.TotalFiles,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("indexing"),
				progressbar.OptionSetWidth(32),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
		}
	case types.FileDone:
		p.add()
	case types.FileError:
		p.add()
	case types.EmbeddingStatus:
		p.finish()
		fmt.Fprintf(os.Stderr, "%s (%d chunks)\n", e.Status, e.Count)
	default:
		p.finish()
	}
}

func (p *progressReporter) add() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

func (p *progressReporter) log(ev types.ProgressEvent) {
	switch e := ev.(type) {
	case types.Discovery:
		p.logger.Info("discovered files", "folder", e.Folder, "files", e.TotalFiles)
	case types.FileDone:
		p.logger.Info("indexed file", "file", e.Path, "chunks", e.ChunkCount, "percent", e.Percent)
	case types.FileError:
		p.logger.Warn("file failed", "file", e.Path, "error", e.Message)
	case types.EmbeddingStatus:
		p.logger.Info(e.Status, "chunks", e.Count)
	}
}

// Summary prints the outcome of the run to out.
func (p *progressReporter) Summary(ev types.ProgressEvent) {
	switch e := ev.(type) {
	case types.Done:
		fmt.Fprintf(p.out, "processed %d files, %d errors\n", e.Processed, e.ErrorCount)
		for _, fe := range e.Errors {
			fmt.Fprintf(p.out, "  %s: %s\n", fe.Path, fe.Message)
		}
	case types.PipelineError:
		fmt.Fprintf(p.out, "indexing failed: %s\n", e.Message)
	}
}
